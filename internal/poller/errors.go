package poller

import (
	"context"
	"errors"
	"net"
	"net/http"
)

type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindConcurrentGeneration Kind = "concurrent_generation"
	KindTimeout              Kind = "timeout"
	KindNetwork              Kind = "network_error"
	KindServer               Kind = "server_error"
	KindUnknown              Kind = "unknown"
)

// apiError is satisfied by client.APIError.
type apiError interface {
	error
	HTTPStatus() int
	ErrorCode() string
}

// ErrorKind buckets submit and observe errors for display.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	// any failed status poll reads as a connectivity problem, whatever the server said
	if errors.Is(err, ErrFetch) {
		return KindNetwork
	}
	var ae apiError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "validation_error", "invalid_json":
			return KindValidation
		case "generation_in_progress":
			return KindConcurrentGeneration
		}
		if ae.HTTPStatus() >= http.StatusInternalServerError {
			return KindServer
		}
		return KindUnknown
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// Retryable is false only when another generation blocks progress.
func Retryable(k Kind) bool {
	return k != KindConcurrentGeneration
}
