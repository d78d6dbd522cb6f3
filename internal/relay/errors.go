package relay

import "fmt"

// NetworkError represents network failures and API errors from a relay
// endpoint, including 5xx responses, timeouts and rate limiting.
type NetworkError struct {
	Operation  string // e.g. "relay_url", "upload"
	StatusCode int    // HTTP status code, 0 for non-HTTP errors
	APIMessage string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError is a 401/403 from the relay endpoint.
type AuthenticationError struct {
	Operation string
	Err       error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// DestinationError means the relay target (chat, folder) could not be resolved.
type DestinationError struct {
	Target string
	Reason string
	Err    error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination error for '%s': %s", e.Target, e.Reason)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}
