// Package backend defines the contract with the external reasoning
// backends and the gRPC client that reaches them.
package backend

import (
	"context"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

// Request is one user message forwarded to a backend.
type Request struct {
	Intent    domain.Intent
	Message   string
	UserID    string
	SessionID string
	RequestID string
	Profile   *domain.Profile
	FileInfo  map[string]any
}

// Backend runs a single request to completion and returns its transcript.
// Implementations must honour ctx cancellation where they can; callers do
// not rely on it.
type Backend interface {
	Run(ctx context.Context, req Request) (domain.Transcript, error)
}

// Func adapts a plain function to Backend.
type Func func(ctx context.Context, req Request) (domain.Transcript, error)

// Run calls f.
func (f Func) Run(ctx context.Context, req Request) (domain.Transcript, error) {
	return f(ctx, req)
}

// Ensure GrpcClient implements Backend.
var _ Backend = (*GrpcClient)(nil)
