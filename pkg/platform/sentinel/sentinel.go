package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and gateway clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store or upstream directory
// - ErrExpired: sequence state or OTP record outlived its TTL
// - ErrConflict: upstream rejected a create because the record already exists
// - ErrUnavailable: dependency temporarily unreachable or returning 5xx
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
