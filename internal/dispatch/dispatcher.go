package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/abroad-advisor/internal/backend"
	"github.com/ashureev/abroad-advisor/internal/domain"
	"github.com/ashureev/abroad-advisor/internal/metrics"
)

// Dispatcher routes a request to the backend bound to its intent and bounds
// the call by that intent's budget.
type Dispatcher struct {
	bindings map[domain.Intent]backend.Backend
	budgets  Budgets
	logger   *slog.Logger
}

// New builds a Dispatcher. Every intent needs both a backend and a budget.
func New(bindings map[domain.Intent]backend.Backend, budgets Budgets, logger *slog.Logger) (*Dispatcher, error) {
	if err := budgets.Validate(); err != nil {
		return nil, err
	}
	for _, intent := range domain.AllIntents() {
		if bindings[intent] == nil {
			return nil, fmt.Errorf("no backend bound to %s", intent)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := make(map[domain.Intent]backend.Backend, len(bindings))
	for k, v := range bindings {
		b[k] = v
	}
	bud := make(Budgets, len(budgets))
	for k, v := range budgets {
		bud[k] = v
	}
	return &Dispatcher{bindings: b, budgets: bud, logger: logger}, nil
}

// Budget returns the time budget for intent, or zero if none is configured.
func (d *Dispatcher) Budget(intent domain.Intent) time.Duration {
	return d.budgets[intent]
}

type outcome struct {
	transcript domain.Transcript
	err        error
}

// Dispatch runs the backend bound to intent and waits for its transcript.
//
// When the budget elapses first the backend's context is cancelled and a
// *TimeoutError is returned without waiting for the backend to notice. A
// backend failure is wrapped in *BackendError. Cancelling ctx abandons the
// call and returns ctx's error.
func (d *Dispatcher) Dispatch(ctx context.Context, intent domain.Intent, req backend.Request) (domain.Transcript, error) {
	b, ok := d.bindings[intent]
	budget, hasBudget := d.budgets[intent]
	if !ok || !hasBudget {
		metrics.DispatchTotal.WithLabelValues(string(intent), metrics.OutcomeError).Inc()
		return nil, newBackendError(intent, fmt.Errorf("%w: %q", errUnboundIntent, intent))
	}
	req.Intent = intent

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Buffered so an abandoned backend can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		t, err := b.Run(runCtx, req)
		done <- outcome{transcript: t, err: err}
	}()

	log := d.logger.With("intent", intent, "request_id", req.RequestID, "session_id", req.SessionID)

	var (
		t   domain.Transcript
		err error
	)
	select {
	case out := <-done:
		t, err = out.transcript, out.err
		if err != nil {
			switch {
			case ctx.Err() != nil:
				err = fmt.Errorf("dispatch %s: %w", intent, ctx.Err())
			case errors.Is(runCtx.Err(), context.DeadlineExceeded):
				err = &TimeoutError{Intent: intent, Budget: budget}
			default:
				err = newBackendError(intent, err)
			}
		}
	case <-runCtx.Done():
		if ctx.Err() != nil {
			err = fmt.Errorf("dispatch %s: %w", intent, ctx.Err())
		} else {
			err = &TimeoutError{Intent: intent, Budget: budget}
		}
	}

	elapsed := time.Since(start)
	metrics.DispatchDuration.WithLabelValues(string(intent)).Observe(elapsed.Seconds())
	metrics.DispatchTotal.WithLabelValues(string(intent), outcomeLabel(err)).Inc()

	var (
		timeoutErr *TimeoutError
		backendErr *BackendError
	)
	switch {
	case err == nil:
		log.Info("Backend dispatch complete", "turns", len(t), "duration_ms", elapsed.Milliseconds())
		return t, nil
	case errors.As(err, &timeoutErr):
		log.Warn("Backend dispatch timed out", "budget", budget.String())
	case errors.As(err, &backendErr):
		log.Error("Backend dispatch failed",
			"error_type", backendErr.Type,
			"error", backendErr.Message,
			"category", backendErr.Category)
	default:
		log.Info("Backend dispatch abandoned", "error", err)
	}
	return nil, err
}

func outcomeLabel(err error) string {
	var timeoutErr *TimeoutError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &timeoutErr):
		return metrics.OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeError
	}
}
