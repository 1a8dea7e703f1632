// Package tracing provides a small span abstraction over OpenTelemetry.
//
// Callers never attach identifying input to spans in clear. Numbers pass
// through a NumberHasher first and dates of birth are not recorded at all.
package tracing

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// End must be called exactly once.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// NumberHasher fingerprints external numbers with HMAC-SHA256 so traces
// and logs can be correlated. The fingerprint is pseudonymous: anyone
// holding the key can recover a number by enumerating the number space.
type NumberHasher struct {
	key []byte
}

// NewNumberHasher returns a hasher keyed with key. An empty key is replaced
// by a random one, so fingerprints only correlate within one process.
func NewNumberHasher(key []byte) *NumberHasher {
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &NumberHasher{key: key}
}

// Hash returns a 16 hex character fingerprint of number, or "" for "".
func (h *NumberHasher) Hash(number string) string {
	if number == "" {
		return ""
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(number))
	return hex.EncodeToString(mac.Sum(nil)[:8])
}

// Span names.
const (
	SpanCheck           = "check"
	SpanResolveNumber   = "check.resolve_number"
	SpanMembership      = "check.membership"
	SpanBirthDates      = "check.birth_dates"
	SpanCredentialCheck = "auth.validate"
)

// Attribute keys.
const (
	AttrNumberHash   = "number_hash"
	AttrCheckID      = "check_id"
	AttrSource       = "source"
	AttrRecordCount  = "record_count"
	AttrNumberType   = "number_type"
	AttrCredentialID = "credential_id"
)
