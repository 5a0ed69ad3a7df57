package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents requests that ran out of time.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCanceled represents requests abandoned by the caller.
	ErrorClassCanceled ErrorClass = "canceled"
)

// UpstreamError is returned when no response could be obtained from the league API.
// HTTP error statuses are not errors; they are passed through as responses.
type UpstreamError struct {
	Method     string
	Path       string
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error (%s %s): %v", e.ErrorClass, e.Method, e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// classifyError categorizes a transport error or response status.
func classifyError(ctx context.Context, resp *http.Response, err error) ErrorClass {
	if err != nil {
		if ctx.Err() == context.Canceled || errors.Is(err, context.Canceled) {
			return ErrorClassCanceled
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return ErrorClassTimeout
		}
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
