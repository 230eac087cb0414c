package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	// ErrNotFound maps gateway 404s: no replica log bound yet, no log
	// entries past a marker, or an empty metadata section.
	ErrNotFound = errors.New("gateway: not found")
)

// APIError is a non-404 error response from the gateway admin API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// check folds the transport error and the response state into a single error.
func check(resp *req.Response, requestErr error, op string) error {
	if requestErr != nil {
		return fmt.Errorf("gateway: %s: %w", op, requestErr)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	if resp.IsErrorState() {
		return &APIError{Op: op, Status: resp.StatusCode, Body: resp.String()}
	}

	return nil
}
