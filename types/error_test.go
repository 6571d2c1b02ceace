package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrStepExecutionFailed, "step failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithDetail("stepId", "a")

	if GetErrorCode(err) != ErrStepExecutionFailed {
		t.Fatalf("expected code %s, got %s", ErrStepExecutionFailed, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if err.HTTPStatus != 502 {
		t.Fatalf("expected http status override, got %d", err.HTTPStatus)
	}
	if err.Details["stepId"] != "a" {
		t.Fatalf("expected detail to be recorded")
	}
	if got := err.Error(); got != "[STEP_EXECUTION_FAILED] step failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestError_CodeSurvivesWrapping(t *testing.T) {
	t.Parallel()

	base := NewError(ErrTimeout, "too slow")
	wrapped := fmt.Errorf("attempt 2: %w", base)

	if GetErrorCode(wrapped) != ErrTimeout {
		t.Fatalf("expected TIMEOUT through fmt wrapping, got %q", GetErrorCode(wrapped))
	}
	if !IsCode(wrapped, ErrTimeout) {
		t.Fatalf("expected IsCode to match")
	}
	if IsCode(nil, ErrTimeout) {
		t.Fatalf("nil must not match any code")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	if WrapError(nil, ErrInternalError, "x") != nil {
		t.Fatalf("nil in, nil out")
	}

	existing := NewError(ErrInvalidInput, "bad")
	if got := WrapError(existing, ErrInternalError, "x"); got != existing {
		t.Fatalf("expected existing *Error to be returned as is")
	}

	plain := errors.New("boom")
	got := WrapError(plain, ErrStepExecutionFailed, "step a")
	if got.Code != ErrStepExecutionFailed || !errors.Is(got, plain) {
		t.Fatalf("expected wrapped error, got %v", got)
	}
}

func TestStatusForCode(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrWorkflowNotFound:    http.StatusNotFound,
		ErrInvalidInput:        http.StatusBadRequest,
		ErrInvalidDefinition:   http.StatusBadRequest,
		ErrUnauthorized:        http.StatusForbidden,
		ErrRateLimited:         http.StatusTooManyRequests,
		ErrTimeout:             http.StatusGatewayTimeout,
		ErrMaxRetriesExceeded:  http.StatusInternalServerError,
		ErrStepExecutionFailed: http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := NewError(code, "m").HTTPStatus; got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}
