package discovery

import "fmt"

// Error means the page could not be fetched or parsed. It is terminal for the
// job that triggered it.
type Error struct {
	PageURL string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery on %s failed: %s: %v", e.PageURL, e.Reason, e.Err)
	}

	return fmt.Sprintf("discovery on %s failed: %s", e.PageURL, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}
