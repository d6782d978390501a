package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	dErrors "onboard/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("unclassified error hides detail", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.ErrBodyNotAllowed)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body Envelope
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.ErrorCode != string(dErrors.CodeSystemError) {
			t.Fatalf("expected error code SYSTEM_ERROR, got %q", body.ErrorCode)
		}
		if body.Message == http.ErrBodyNotAllowed.Error() {
			t.Fatalf("expected internal error message to be hidden")
		}
	})

	t.Run("sequence violation includes message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeSequenceViolation, "check_email must follow check_phone"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body Envelope
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Status != StatusFailed {
			t.Fatalf("expected failed status, got %q", body.Status)
		}
		if body.ErrorCode != string(dErrors.CodeSequenceViolation) {
			t.Fatalf("expected error code SEQUENCE_VIOLATION, got %q", body.ErrorCode)
		}
		if body.Message != "check_email must follow check_phone" {
			t.Fatalf("expected message to be returned, got %q", body.Message)
		}
	})
}
