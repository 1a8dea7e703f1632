package service

import "github.com/patientcheck/patientcheck/internal/model"

// DemoPatient is a synthetic record answered without touching the store.
type DemoPatient struct {
	DateOfBirth model.Date
	Member      bool
}

// DemoPatients are the synthetic national numbers used by partner test environments.
// 9658218881 carries a deliberately wrong date of birth (the login provider's
// fixture is born 1921-08-08) so partners can exercise the mismatch path.
var DemoPatients = map[string]DemoPatient{
	"9686368973": {DateOfBirth: model.Date{Year: 1968, Month: 2, Day: 12}, Member: true},
	"9686368906": {DateOfBirth: model.Date{Year: 1942, Month: 2, Day: 1}, Member: true},
	"9658218873": {DateOfBirth: model.Date{Year: 1927, Month: 6, Day: 19}, Member: true},
	"9661034524": {DateOfBirth: model.Date{Year: 1992, Month: 10, Day: 22}, Member: true},
	"9658218881": {DateOfBirth: model.Date{Year: 1920, Month: 8, Day: 8}, Member: true},
}

// answer applies the same no-leak rule as a store check.
func (p DemoPatient) answer(dob model.Date) model.CheckResult {
	if !p.Member {
		return model.CheckResult{}
	}
	return model.CheckResult{NumberMatched: true, DateMatched: p.DateOfBirth == dob}
}
