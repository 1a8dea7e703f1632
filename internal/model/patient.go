// Package model defines domain entities for the application.
package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date layout accepted on the wire.
const DateLayout = "2006-01-02"

// NumberTypeNational is the number type for national identifiers (e.g. NHS numbers).
const NumberTypeNational = "NI"

// ErrInvalidDate indicates a date string is not an ISO calendar date.
var ErrInvalidDate = errors.New("invalid calendar date")

// Date is a calendar date with no time or location component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ExternalNumber is a caller-facing identifying number such as an NHS number.
// One number may be registered on several records.
type ExternalNumber struct {
	Value string
	Type  string
}

// PatientRecord is one person entry in the record store.
type PatientRecord struct {
	PID       string     `json:"pid"`
	BirthTime *time.Time `json:"-"`
}

// BirthDate returns the calendar date of birth, if recorded.
func (p *PatientRecord) BirthDate() (Date, bool) {
	if p.BirthTime == nil {
		return Date{}, false
	}
	return DateOf(*p.BirthTime), true
}

// Membership associates a record with a registry program.
type Membership struct {
	PID         string
	ProgramName string
	FromTime    *time.Time
	ToTime      *time.Time
}

// IsActive returns true if no end time has been recorded.
// A future end time still counts as ended.
func (m *Membership) IsActive() bool {
	return m.ToTime == nil
}
