package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ashureev/abroad-advisor/internal/backend"
	"github.com/ashureev/abroad-advisor/internal/domain"
)

var errUnboundIntent = errors.New("no backend bound to intent")

// TimeoutError reports a backend call that exceeded its budget and was
// cancelled.
type TimeoutError struct {
	Intent domain.Intent
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s backend timed out after %s", e.Intent, e.Budget)
}

// Category groups backend failures by the user-facing message they get.
type Category string

const (
	CategoryGeneric           Category = "generic"
	CategoryServiceDisruption Category = "service_disruption"
	CategoryCommunication     Category = "communication"
)

// BackendError wraps any failure returned by a backend call. Type and
// Message describe the original error without a stack trace and are safe to
// log and to return as internal detail.
type BackendError struct {
	Intent   domain.Intent
	Type     string
	Message  string
	Category Category
	err      error
}

func newBackendError(intent domain.Intent, err error) *BackendError {
	return &BackendError{
		Intent:   intent,
		Type:     rootType(err),
		Message:  err.Error(),
		Category: categorize(err),
		err:      err,
	}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend failed (%s): %s", e.Intent, e.Type, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.err
}

// rootType names the innermost error in the wrap chain, which is the one
// that says what actually went wrong.
func rootType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

//nolint:gocyclo // Flat mapping of transport errors to categories.
func categorize(err error) Category {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Unimplemented:
			return CategoryServiceDisruption
		case codes.Canceled, codes.DeadlineExceeded, codes.Aborted:
			return CategoryCommunication
		}
	}
	if errors.Is(err, backend.ErrBackendResponse) {
		return CategoryServiceDisruption
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryCommunication
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, backend.ErrMalformedResponse) || errors.Is(err, context.Canceled) {
		return CategoryCommunication
	}
	return CategoryGeneric
}
