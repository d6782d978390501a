// Package otp stores one-time email verification codes. Records live for ten
// minutes and allow three verification attempts; the record is deleted on a
// match or once the attempt budget is gone, so a stale client can never
// succeed afterwards.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Outcome is the result of a verification attempt.
type Outcome string

const (
	// OutcomeValid means the code matched; the record has been deleted.
	OutcomeValid Outcome = "valid"
	// OutcomeMismatch means the code did not match; the attempt counter grew.
	OutcomeMismatch Outcome = "mismatch"
	// OutcomeExhausted means this mismatch consumed the last attempt; the
	// record has been deleted.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeNotFound means no active record exists: never generated,
	// expired, or already consumed. Expired records are indistinguishable
	// from absent ones.
	OutcomeNotFound Outcome = "not_found"
)

const (
	// CodeLength is the number of digits in a generated code.
	CodeLength = 6
	// DefaultTTL is how long a code stays valid.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxAttempts is the verification attempt budget per code.
	DefaultMaxAttempts = 3
)

// Record is the stored state of one active code.
type Record struct {
	Code      string    `json:"code"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds active codes keyed by email. Generate overwrites any previous
// record and resets the attempt counter; Verify applies the attempt budget.
type Store interface {
	Generate(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) (Outcome, error)
}

// generateCode returns a uniformly random 6-digit code, zero-padded.
func generateCode() (string, error) {
	bound := big.NewInt(1)
	for range CodeLength {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
