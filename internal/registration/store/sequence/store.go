// Package sequence stores the short-lived per-phone registration state. The
// store is pure key/value with expiry; all step logic lives in the
// orchestrator, which is the only writer.
package sequence

import (
	"context"
	"time"

	"onboard/internal/registration/models"
)

// Store persists SequenceState keyed by phone number. Because verify_email
// arrives keyed by email, implementations also maintain a secondary index
// email -> phone, written by Put whenever the state carries an email and
// removed by Clear. Writes are last-write-wins.
//
// Absent or expired records are reported as sentinel.ErrNotFound.
type Store interface {
	Get(ctx context.Context, phone string) (*models.SequenceState, error)
	Put(ctx context.Context, state *models.SequenceState, ttl time.Duration) error
	Clear(ctx context.Context, phone string) error
	PhoneByEmail(ctx context.Context, email string) (string, error)
}
