package notification

import (
	"context"
	"sync"
	"time"
)

// Recorder captures sent codes for tests. FailNext makes the next dispatch
// fail, for exercising the no-advance-on-failure path.
type Recorder struct {
	mu       sync.Mutex
	sent     []SentOTP
	failNext error
}

// SentOTP is one recorded dispatch.
type SentOTP struct {
	Email string
	Code  string
	TTL   time.Duration
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SendOTP(_ context.Context, email, code string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.sent = append(r.sent, SentOTP{Email: email, Code: code, TTL: ttl})
	return nil
}

// FailNext makes the next SendOTP return err.
func (r *Recorder) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// Sent returns a copy of all recorded dispatches.
func (r *Recorder) Sent() []SentOTP {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentOTP{}, r.sent...)
}

// LastCode returns the most recently dispatched code for email, or "".
func (r *Recorder) LastCode(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Email == email {
			return r.sent[i].Code
		}
	}
	return ""
}
