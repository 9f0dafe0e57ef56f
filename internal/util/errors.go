package util

import "errors"

// Sentinel errors for the pipeline's failure modes
var (
	// ErrFetchFailed indicates the source dataset could not be retrieved
	// after exhausting retries. Fatal to the run.
	ErrFetchFailed = errors.New("source fetch failed")

	// ErrMissingCredentials indicates required credentials are absent.
	// Fatal before any network call is made.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrNoRecords indicates the transform produced zero usable records
	ErrNoRecords = errors.New("no transformable records")

	// ErrBatchFailed indicates a write chunk exhausted its retry budget
	ErrBatchFailed = errors.New("batch write failed")

	// ErrVerifyMismatch indicates the persisted count differs from expected
	ErrVerifyMismatch = errors.New("verification mismatch")

	// ErrQueryTimeout indicates a destination query timed out. Callers must
	// not confuse this with an empty result set.
	ErrQueryTimeout = errors.New("query timeout")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
