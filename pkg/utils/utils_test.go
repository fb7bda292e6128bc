package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"SessionCreate", ErrSessionCreate, "Session_Create"},
		{"ChallengeTimeout", ErrChallengeTimeout, "Session_Challenge"},
		{"SessionClosed", ErrSessionClosed, "Session_Closed"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Checkpoint", ErrCheckpoint, "Checkpoint_Write"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
		{"EmptyBacklog", ErrEmptyBacklog, "Input_EmptyBacklog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "WrappedSessionCreate",
			err:      fmt.Errorf("worker 3: %w", ErrSessionCreate),
			expected: "Session_Create",
		},
		{
			name:     "WrappedNavigationTimeout",
			err:      WrapErrorf(ErrNavigation, "navigate 'x': context deadline exceeded"),
			expected: "Navigation_Timeout",
		},
		{
			name:     "WrappedNavigationOther",
			err:      WrapErrorf(ErrNavigation, "navigate 'x': net::ERR_ABORTED"),
			expected: "Navigation_Other",
		},
		{
			name:     "WrappedParsingHTML",
			err:      WrapErrorf(ErrParsing, "parsing HTML from 'x'"),
			expected: "Content_ParsingHTML",
		},
		{
			name:     "WrappedParsingJSON",
			err:      WrapErrorf(ErrParsing, "decoding JSON page 4"),
			expected: "Content_ParsingJSON",
		},
		{
			name:     "RetryFailedWithServerError",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, ErrServerHTTPError),
			expected: "RetryFailed_HTTPServer",
		},
		{
			name:     "ClientError404",
			err:      fmt.Errorf("%w: status 404 Not Found", ErrClientHTTPError),
			expected: "HTTP_404",
		},
		{
			name:     "ClientError429",
			err:      fmt.Errorf("%w: status 429 Too Many Requests", ErrClientHTTPError),
			expected: "HTTP_429",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	if got := CategorizeError(context.Canceled); got != "System_ContextCanceled" {
		t.Errorf("context.Canceled categorized as %q", got)
	}
	if got := CategorizeError(context.DeadlineExceeded); got != "System_ContextDeadlineExceeded" {
		t.Errorf("context.DeadlineExceeded categorized as %q", got)
	}
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{errors.New("dial tcp: connection refused"), "Network_ConnectionRefused"},
		{errors.New("lookup example.com: no such host"), "Network_DNSLookup"},
		{errors.New("read: connection reset by peer"), "Network_ConnectionReset"},
		{errors.New("tls: handshake failure"), "Network_TLS"},
		{errors.New("something completely else"), "Unknown"},
	}
	for _, tt := range tests {
		if got := CategorizeError(tt.err); got != tt.expected {
			t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}

// --- SanitizeFilename Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"calgary", "calgary"},
		{"Red Deer", "Red Deer"},
		{"a/b\\c:d", "a_b_c_d"},
		{"___x___", "x"},
		{"", "untitled"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
