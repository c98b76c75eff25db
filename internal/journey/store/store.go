// Package store persists journeys. Both implementations serialize concurrent
// writers with a compare-and-swap on Journey.Version.
package store

import "onboarding/pkg/platform/sentinel"

// Re-exported so callers can match store errors without importing sentinel.
var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)
