package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
//   - ErrNotFound: no journey exists for the user
//   - ErrConflict: a compare-and-swap lost against a newer revision
//   - ErrAlreadyUsed: a create-if-absent found an existing record
//   - ErrExpired: an upload location outlived its deadline
//   - ErrInvalidState: record in the wrong state for the operation
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
