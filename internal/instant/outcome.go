package instant

// WriteOutcome is the result of one transact call. The admin API signals
// failure through two channels: the request itself can fail (network error,
// non-2xx status) or a 200 response can carry an error-shaped body. Both
// collapse into a failed outcome here so neither can be mistaken for
// success upstream.
type WriteOutcome struct {
	err       error
	transport bool
}

// Success returns a successful outcome
func Success() WriteOutcome {
	return WriteOutcome{}
}

// Failure returns a failed outcome for an error-shaped response body
func Failure(err error) WriteOutcome {
	return WriteOutcome{err: err}
}

// TransportFailure returns a failed outcome for a request that failed at
// the network/HTTP layer before a usable response body arrived
func TransportFailure(err error) WriteOutcome {
	return WriteOutcome{err: err, transport: true}
}

// OK reports whether the write succeeded
func (o WriteOutcome) OK() bool {
	return o.err == nil
}

// Err returns the failure reason, nil on success
func (o WriteOutcome) Err() error {
	return o.err
}

// Transport reports whether the failure came from the network/HTTP layer
// rather than an error-shaped response. Batch degradation keys off this:
// transport-level failures on large chunks are usually payload-size limits.
func (o WriteOutcome) Transport() bool {
	return o.err != nil && o.transport
}
