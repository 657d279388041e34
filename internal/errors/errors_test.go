package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "investigation not found"},
			want: "investigation not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to start investigation",
				Cause:   errors.New("underlying error"),
			},
			want: "failed to start investigation: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeUnavailable, "store unavailable")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(wrapped, cause) = false")
	}
	if !IsUnavailable(fmt.Errorf("outer: %w", err)) {
		t.Errorf("IsUnavailable() through fmt wrap = false")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
}

func TestWithReason(t *testing.T) {
	base := Conflictf("investigation %s is not streaming", "abc")
	withReason := base.WithReason("stream_not_live")

	if base.Reason != "" {
		t.Errorf("WithReason mutated the receiver")
	}
	if GetReason(withReason) != "stream_not_live" {
		t.Errorf("GetReason() = %q", GetReason(withReason))
	}
	if !IsConflict(withReason) {
		t.Errorf("IsConflict() = false")
	}
}

func TestCodeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "not found", err: NotFoundf("investigation %s", "x"), check: IsNotFound},
		{name: "conflict", err: Conflictf("terminal"), check: IsConflict},
		{name: "validation", err: Validation("target required"), check: IsValidation},
		{name: "validation field", err: ValidationField("depth", "invalid"), check: IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("helper returned false for %v", tt.err)
			}
		})
	}

	if GetCode(errors.New("plain")) != "" {
		t.Errorf("GetCode(plain) should be empty")
	}
	if GetField(ValidationField("depth", "invalid")) != "depth" {
		t.Errorf("GetField() mismatch")
	}
	if GetCode(Internal("x")) != ErrCodeInternal {
		t.Errorf("Internal() code mismatch")
	}
	if GetCode(Wrapf(errors.New("x"), ErrCodeTimeout, "op %d", 1)) != ErrCodeTimeout {
		t.Errorf("Wrapf() code mismatch")
	}
}
