package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "codeverifier/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{RuntimeNotSupported, "Unsupported runtime"},
		{SolutionRequired, "A solution is required"},
		{VerificationTimeout, "timeout"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{InvalidParams, 400},
		{SolutionRequired, 400},
		{PayloadInvalid, 400},
		{RuntimeNotSupported, 404},
		{MethodNotAllowed, 405},
		{VerifierBusy, 503},
		{DriverSpawnFailed, 500},
		{SetupFailed, 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestErrorCode_Reportable(t *testing.T) {
	reportable := []ErrorCode{SolutionInvalid, TestsInvalid, HarnessConfigInvalid, VerificationTimeout, ResultsMissing, ResultsMalformed}
	for _, code := range reportable {
		if !code.Reportable() {
			t.Errorf("%s should be reportable", code.Message())
		}
	}
	surfaced := []ErrorCode{SetupFailed, DriverSpawnFailed, ContainerFailed, CleanupFailed, InternalServerError}
	for _, code := range surfaced {
		if code.Reportable() {
			t.Errorf("%s should not be reportable", code.Message())
		}
	}
}

func TestNew(t *testing.T) {
	err := New(SolutionInvalid)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if err.Code != SolutionInvalid {
		t.Errorf("Code = %v, want %v", err.Code, SolutionInvalid)
	}

	if err.Error() != SolutionInvalid.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), SolutionInvalid.Message())
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ResultsMissing, "results are missing at %s", "/tmp/x/results.json")

	want := "results are missing at /tmp/x/results.json"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("permission denied")
	wrappedErr := Wrap(originalErr, SetupFailed)

	if wrappedErr.Code != SetupFailed {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, SetupFailed)
	}

	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}

	if Wrap(nil, SetupFailed) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapf(t *testing.T) {
	cause := errors.New("exec: \"protractor\": executable file not found in $PATH")
	err := Wrapf(cause, DriverSpawnFailed, "spawn driver %s", "protractor")

	want := "spawn driver protractor: " + cause.Error()
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(CleanupFailed).
		WithDetail("dir", "/tmp/verify-1").
		WithDetail("reason", "directory not empty")

	if err.Details["dir"] != "/tmp/verify-1" {
		t.Error("dir detail not set correctly")
	}

	if err.Details["reason"] != "directory not empty" {
		t.Error("reason detail not set correctly")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: Success,
		},
		{
			name: "custom error",
			err:  New(TestsInvalid),
			want: TestsInvalid,
		},
		{
			name: "wrapped custom error",
			err:  fmt.Errorf("verify: %w", New(ResultsMalformed)),
			want: ResultsMalformed,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: InternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(VerificationTimeout)

	if !Is(err, VerificationTimeout) {
		t.Error("Is() should return true for matching code")
	}

	if Is(err, ResultsMissing) {
		t.Error("Is() should return false for non-matching code")
	}

	if Is(nil, VerificationTimeout) {
		t.Error("Is() should return false for nil error")
	}
}

func TestInternalError(t *testing.T) {
	t.Run("InternalError", func(t *testing.T) {
		err := InternalError(errors.New("boom"))
		if err.Code != InternalServerError {
			t.Error("InternalError should use InternalServerError code")
		}
	})
}
