package types

import "fmt"

// AuthenticationError means the portal rejected our credentials or the
// session could not be recovered after one re-login attempt. It is fatal
// to the acquisition cycle and is never retried automatically.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NetworkError means a transport-level failure persisted through the
// bounded retry schedule. It is surfaced per-slice.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx, non-auth HTTP status from the portal. Not
// retried; surfaced per-slice with the status code.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// MalformedResponseError means the payload was not parseable as the
// expected envelope at all. Individually missing or misshapen fields do
// not produce this; they degrade to null aggregates with anomalies.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed portal response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
