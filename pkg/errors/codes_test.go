package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestLSPBridgeError_Error(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "Startup", "invalid config file", nil)
	expected := "[1001] Startup: invalid config file"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}

	cause := errors.New("file not found")
	errWithCause := New(ErrCodeConfigInvalid, "Startup", "invalid config file", cause)
	expectedWithCause := "[1001] Startup: invalid config file (cause: file not found)"
	if errWithCause.Error() != expectedWithCause {
		t.Errorf("Expected %q, got %q", expectedWithCause, errWithCause.Error())
	}
}

func TestLSPBridgeError_Unwrap(t *testing.T) {
	cause := errors.New("exec: not found")
	err := New(ErrCodeExecutableInvalid, "Launch", "not a valid Godot executable", cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Expected cause %v, got %v", cause, errors.Unwrap(err))
	}

	errNoCause := New(ErrCodeExecutableInvalid, "Launch", "not a valid Godot executable", nil)
	if errors.Unwrap(errNoCause) != nil {
		t.Errorf("Expected nil cause, got %v", errors.Unwrap(errNoCause))
	}
}

func TestCodeOf(t *testing.T) {
	base := New(ErrCodeVersionMismatch, "Launch", "version mismatch", nil)
	wrapped := fmt.Errorf("headless: %w", base)

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"direct", base, ErrCodeVersionMismatch},
		{"wrapped", wrapped, ErrCodeVersionMismatch},
		{"plain", errors.New("boom"), ErrCodeUnknown},
		{"nil", nil, ErrCodeUnknown},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("%s: CodeOf = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMessageOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New(ErrCodeProjectNotFound, "Launch", "Current workspace is not a Godot project", nil))
	if got := MessageOf(err); got != "Current workspace is not a Godot project" {
		t.Errorf("MessageOf = %q", got)
	}
	if got := MessageOf(errors.New("plain")); got != "plain" {
		t.Errorf("MessageOf(plain) = %q", got)
	}
	if got := MessageOf(nil); got != "" {
		t.Errorf("MessageOf(nil) = %q", got)
	}
}
