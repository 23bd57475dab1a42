package domain

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when another crawl run holds the run lock.
var ErrRunInProgress = errors.New("crawl run already in progress")

// TransportError reports a failed page fetch: either the request never
// completed or the storefront answered with a non-2xx status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
