package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeConfiguration, "test message: %s", "value")

	if err.Code != ErrCodeConfiguration {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConfiguration)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "CONFIGURATION: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, cause, "failed to encode")

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestAtStage(t *testing.T) {
	t.Run("keeps code of structured error", func(t *testing.T) {
		orig := New(ErrCodeLayoutOverflow, "glyph does not fit")
		err := AtStage(StageText, orig)

		if GetCode(err) != ErrCodeLayoutOverflow {
			t.Errorf("GetCode() = %v, want %v", GetCode(err), ErrCodeLayoutOverflow)
		}
		if GetStage(err) != StageText {
			t.Errorf("GetStage() = %v, want %v", GetStage(err), StageText)
		}
		if orig.Stage != "" {
			t.Error("AtStage mutated the original error")
		}
		want := "LAYOUT_OVERFLOW [text]: glyph does not fit"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		cause := errors.New("boom")
		err := AtStage(StageEncode, cause)

		if GetCode(err) != ErrCodeInternal {
			t.Errorf("GetCode() = %v, want %v", GetCode(err), ErrCodeInternal)
		}
		if !errors.Is(err, cause) {
			t.Error("cause should remain reachable")
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		if err := AtStage(StageWord, nil); err != nil {
			t.Errorf("AtStage(nil) = %v, want nil", err)
		}
	})
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeConfiguration, "test"),
			code:     ErrCodeConfiguration,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeConfiguration, "test"),
			code:     ErrCodeLayoutOverflow,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeInternal, New(ErrCodeConfiguration, "inner"), "outer"),
			code:     ErrCodeInternal,
			expected: true,
		},
		{
			name:     "staged error",
			err:      AtStage(StageWord, New(ErrCodeConfiguration, "empty alphabet")),
			code:     ErrCodeConfiguration,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeConfiguration,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeConfiguration,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeResourceUnavailable, "test"), ErrCodeResourceUnavailable},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Error type", New(ErrCodeInvalidInput, "friendly message"), "friendly message"},
		{"plain error", errors.New("plain error"), "plain error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeConfiguration,
		ErrCodeResourceUnavailable,
		ErrCodeLayoutOverflow,
		ErrCodeInvalidInput,
		ErrCodeNotFound,
		ErrCodeExpired,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
