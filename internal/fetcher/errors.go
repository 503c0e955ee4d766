package fetcher

import "fmt"

// Failure reasons.
const (
	ReasonInvalidRequest = "invalid_request"
	ReasonInvalidProxy   = "invalid_proxy"
	ReasonTimeout        = "timeout"
	ReasonNetwork        = "network"
	ReasonHTTPStatus     = "http_status"
	ReasonBodyTooLarge   = "body_too_large"
	ReasonReadBody       = "read_body"
)

// FetchFailure is the only error Fetch returns.
type FetchFailure struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchFailure) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

func (e *FetchFailure) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure may succeed on a later attempt.
func (e *FetchFailure) Temporary() bool {
	switch e.Reason {
	case ReasonTimeout, ReasonNetwork, ReasonReadBody:
		return true
	case ReasonHTTPStatus:
		return e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}
