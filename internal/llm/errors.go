package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP-like status code (401, 429, 500, etc.)
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another provider may succeed where this one failed.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case 401, 403, 408, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

// IsRetryable checks if the error suggests trying another provider.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.Code > 0 {
		return provErr.Retryable()
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused")
}

// wrapError builds a ProviderError with a status code when one is known.
func wrapError(provider string, code int, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Message: err.Error(), Code: code, Err: err}
}
