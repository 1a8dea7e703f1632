package model

// Check result sources.
const (
	SourceStore = "store"
	SourceDemo  = "demo"
)

// CheckRequest is a validated verification request.
type CheckRequest struct {
	ExternalNumber string
	DateOfBirth    Date
}

// CheckResult is the only information ever returned about a record.
// DateMatched is never true while NumberMatched is false.
type CheckResult struct {
	NumberMatched bool
	DateMatched   bool
}

// CheckOutcome carries a result together with non-identifying metadata.
type CheckOutcome struct {
	ID     string
	Source string
	Result CheckResult
}
