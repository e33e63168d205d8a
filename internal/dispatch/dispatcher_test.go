package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ashureev/abroad-advisor/internal/backend"
	"github.com/ashureev/abroad-advisor/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixed(t domain.Transcript) backend.Func {
	return func(context.Context, backend.Request) (domain.Transcript, error) {
		return t, nil
	}
}

func failing(err error) backend.Func {
	return func(context.Context, backend.Request) (domain.Transcript, error) {
		return nil, err
	}
}

// blockUntilCancelled never produces a result on its own.
func blockUntilCancelled(ctx context.Context, _ backend.Request) (domain.Transcript, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func allBound(b backend.Backend) map[domain.Intent]backend.Backend {
	m := make(map[domain.Intent]backend.Backend)
	for _, intent := range domain.AllIntents() {
		m[intent] = b
	}
	return m
}

func shortBudgets(d time.Duration) Budgets {
	b := make(Budgets)
	for _, intent := range domain.AllIntents() {
		b[intent] = d
	}
	return b
}

func TestBudgetsValidate(t *testing.T) {
	require.NoError(t, DefaultBudgets().Validate())

	missing := DefaultBudgets()
	delete(missing, domain.IntentStudentInfo)
	assert.ErrorContains(t, missing.Validate(), "STUDENT_INFO")

	zero := DefaultBudgets()
	zero[domain.IntentGeneralQA] = 0
	assert.Error(t, zero.Validate())

	unknown := DefaultBudgets()
	unknown[domain.Intent("SMALL_TALK")] = time.Second
	assert.Error(t, unknown.Validate())
}

func TestDefaultBudgets(t *testing.T) {
	b := DefaultBudgets()
	assert.Equal(t, 300*time.Second, b[domain.IntentSchoolRecommendation])
	assert.Equal(t, 120*time.Second, b[domain.IntentStudentInfo])
	assert.Equal(t, 90*time.Second, b[domain.IntentGeneralQA])
}

func TestNewRequiresEveryBinding(t *testing.T) {
	bindings := allBound(fixed(nil))
	delete(bindings, domain.IntentGeneralQA)

	_, err := New(bindings, DefaultBudgets(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERAL_QA")

	_, err = New(allBound(fixed(nil)), Budgets{}, nil)
	assert.Error(t, err)
}

func TestDispatchReturnsTranscript(t *testing.T) {
	want := domain.Transcript{domain.Other("searching"), domain.FinalText("Here is the answer")}

	var got backend.Request
	b := backend.Func(func(_ context.Context, req backend.Request) (domain.Transcript, error) {
		got = req
		return want, nil
	})
	d, err := New(allBound(b), DefaultBudgets(), nil)
	require.NoError(t, err)

	tr, err := d.Dispatch(context.Background(), domain.IntentSchoolRecommendation, backend.Request{Message: "recommend"})
	require.NoError(t, err)
	assert.Equal(t, want, tr)
	assert.Equal(t, domain.IntentSchoolRecommendation, got.Intent)
	assert.Equal(t, "recommend", got.Message)
}

func TestDispatchRoutesByIntent(t *testing.T) {
	bindings := make(map[domain.Intent]backend.Backend)
	for _, intent := range domain.AllIntents() {
		bindings[intent] = fixed(domain.Transcript{domain.FinalText(string(intent))})
	}
	d, err := New(bindings, DefaultBudgets(), nil)
	require.NoError(t, err)

	for _, intent := range domain.AllIntents() {
		tr, err := d.Dispatch(context.Background(), intent, backend.Request{})
		require.NoError(t, err)
		require.Len(t, tr, 1)
		assert.Equal(t, string(intent), tr[0].Content)
	}
}

func TestDispatchTimeout(t *testing.T) {
	budget := 50 * time.Millisecond
	d, err := New(allBound(backend.Func(blockUntilCancelled)), shortBudgets(budget), nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = d.Dispatch(context.Background(), domain.IntentGeneralQA, backend.Request{})
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, domain.IntentGeneralQA, timeoutErr.Intent)
	assert.Equal(t, budget, timeoutErr.Budget)
	assert.GreaterOrEqual(t, elapsed, budget)
	assert.Less(t, elapsed, budget+time.Second)
}

func TestDispatchTimeoutDoesNotWaitForBackend(t *testing.T) {
	release := make(chan struct{})
	stopped := make(chan struct{})
	stubborn := backend.Func(func(context.Context, backend.Request) (domain.Transcript, error) {
		defer close(stopped)
		<-release
		return domain.Transcript{domain.FinalText("too late")}, nil
	})

	d, err := New(allBound(stubborn), shortBudgets(30*time.Millisecond), nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = d.Dispatch(context.Background(), domain.IntentStudentInfo, backend.Request{})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, time.Since(start), time.Second)

	// The late result lands in the buffered channel and the goroutine exits.
	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("backend goroutine did not exit")
	}
}

func TestDispatchBackendError(t *testing.T) {
	d, err := New(allBound(failing(fmt.Errorf("query tool: %w", io.ErrUnexpectedEOF))), DefaultBudgets(), nil)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), domain.IntentGeneralQA, backend.Request{})

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, domain.IntentGeneralQA, backendErr.Intent)
	assert.Equal(t, "*errors.errorString", backendErr.Type)
	assert.Equal(t, "query tool: unexpected EOF", backendErr.Message)
	assert.Equal(t, CategoryCommunication, backendErr.Category)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDispatchRecoversBackendPanic(t *testing.T) {
	boom := backend.Func(func(context.Context, backend.Request) (domain.Transcript, error) {
		panic("nil map")
	})
	d, err := New(allBound(boom), DefaultBudgets(), nil)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), domain.IntentGeneralQA, backend.Request{})
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Contains(t, backendErr.Message, "nil map")
}

func TestDispatchParentCancel(t *testing.T) {
	d, err := New(allBound(backend.Func(blockUntilCancelled)), DefaultBudgets(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = d.Dispatch(ctx, domain.IntentSchoolRecommendation, backend.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestDispatchUnknownIntent(t *testing.T) {
	d, err := New(allBound(fixed(nil)), DefaultBudgets(), nil)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), domain.Intent("SMALL_TALK"), backend.Request{})
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.ErrorIs(t, err, errUnboundIntent)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"plain", errors.New("bad tool args"), CategoryGeneric},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), CategoryServiceDisruption},
		{"exhausted", status.Error(codes.ResourceExhausted, "quota"), CategoryServiceDisruption},
		{"backend reported", fmt.Errorf("%w: model overloaded", backend.ErrBackendResponse), CategoryServiceDisruption},
		{"transport deadline", status.Error(codes.DeadlineExceeded, "deadline"), CategoryCommunication},
		{"eof", fmt.Errorf("read: %w", io.EOF), CategoryCommunication},
		{"malformed", fmt.Errorf("%w: turns missing", backend.ErrMalformedResponse), CategoryCommunication},
		{"internal", status.Error(codes.Internal, "stack"), CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorize(tt.err))
		})
	}
}

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{Intent: domain.IntentGeneralQA, Budget: 90 * time.Second}
	assert.Equal(t, "GENERAL_QA backend timed out after 1m30s", err.Error())
}
