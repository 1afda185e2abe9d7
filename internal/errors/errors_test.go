package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(ErrCodeRequestNotFound, "request not found"),
			want: "REQUEST_NOT_FOUND: request not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), ErrCodeInternal, "query failed"),
			want: "INTERNAL: query failed: db error",
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

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, ErrCodeInternal, "msg")

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NotFound("purchase_request", "pr-1")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want NOT_FOUND", got.Code)
	}
}

func TestCode(t *testing.T) {
	if got := Code(nil); got != "" {
		t.Errorf("Code(nil) = %q, want empty", got)
	}
	if got := Code(fmt.Errorf("plain")); got != ErrCodeInternal {
		t.Errorf("Code(plain) = %q, want INTERNAL", got)
	}
	if got := Code(New(ErrCodeNoApplicableRule, "no rule")); got != ErrCodeNoApplicableRule {
		t.Errorf("Code = %q, want NO_APPLICABLE_RULE", got)
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeRequestNotFound, http.StatusNotFound},
		{ErrCodeNotAssignedToCaller, http.StatusForbidden},
		{ErrCodeNoApplicableRule, http.StatusUnprocessableEntity},
		{ErrCodeChainNotStarted, http.StatusBadRequest},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeCurrentRuleMissing, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus; got != tt.want {
			t.Errorf("statusForCode(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("quantity", "must be positive")
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want 400", err.HTTPStatus)
	}
	if err.Error() != "INVALID_INPUT: quantity: must be positive" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWithParams(t *testing.T) {
	err := New(ErrCodeNoApproverForRole, "no approver").
		WithParams(map[string]interface{}{"role": "director", "department_id": "dep-1"})
	if err.Params["role"] != "director" {
		t.Errorf("params not attached: %v", err.Params)
	}
}
