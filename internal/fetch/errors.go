package fetch

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted wraps the last failure once the retry budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// maxErrorBody caps the response body kept on an HTTPError.
const maxErrorBody = 2048

// HTTPError is a response with an error status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// StatusCode returns the status of an *HTTPError in err's chain, or zero.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
