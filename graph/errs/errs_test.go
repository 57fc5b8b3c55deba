package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_Identity(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"ErrNotFound identity", ErrNotFound, ErrNotFound},
		{"ErrReplayMismatch identity", ErrReplayMismatch, ErrReplayMismatch},
		{"ErrPlanHashMismatch identity", ErrPlanHashMismatch, ErrPlanHashMismatch},
		{"ErrNoRoute identity", ErrNoRoute, ErrNoRoute},
		{"ErrInterrupted identity", ErrInterrupted, ErrInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.target)
			}
		})
	}
}

func TestSentinelErrors_Distinct(t *testing.T) {
	if errors.Is(ErrNotFound, ErrNoRoute) {
		t.Error("ErrNotFound should not match ErrNoRoute")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with node ID",
			err:  New(KindExternalError, "fetch-node", "timed out", nil),
			want: `ExternalError at node "fetch-node": timed out`,
		},
		{
			name: "without node ID",
			err:  New(KindCompileError, "", "unknown node", nil),
			want: "CompileError: unknown node",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying failure")
	e := New(KindExternalError, "n1", "wrapping", cause)

	if !errors.Is(e, cause) {
		t.Error("errors.Is should see through Unwrap to the cause")
	}
	if errors.Unwrap(e) != cause {
		t.Error("Unwrap() should return the original cause")
	}
}

func TestAs(t *testing.T) {
	typed := New(KindAuthError, "n1", "bad credentials", nil)
	wrapped := fmt.Errorf("while calling node: %w", typed)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("As() should find the wrapped *Error")
	}
	if got.Kind != KindAuthError {
		t.Errorf("Kind = %v, want %v", got.Kind, KindAuthError)
	}

	if _, ok := As(errors.New("plain error")); ok {
		t.Error("As() should fail on a plain error")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed error", New(KindParamError, "n1", "bad config", nil), KindParamError},
		{"wrapped typed error", fmt.Errorf("context: %w", New(KindCancelled, "n1", "cancelled", nil)), KindCancelled},
		{"plain error defaults to internal", errors.New("boom"), KindInternalError},
		{"nil defaults to internal", nil, KindInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
