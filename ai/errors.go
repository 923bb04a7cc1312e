package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Generation failures are classified structurally from the provider's API
// error, never by matching on vendor error strings. Callers branch with
// errors.Is against these sentinels.
var (
	// ErrQuotaExceeded indicates the provider rejected the request for
	// quota or rate-limit reasons.
	ErrQuotaExceeded = errors.New("generation quota exceeded")

	// ErrSafetyBlocked indicates the provider refused or cut off the
	// response due to a content safety filter.
	ErrSafetyBlocked = errors.New("generation blocked by safety filter")

	// ErrProviderFailure covers every other provider-side failure,
	// including network errors.
	ErrProviderFailure = errors.New("generation provider failure")
)

// classifyError maps a go-openai error onto the structured taxonomy.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case apiErr.HTTPStatusCode == http.StatusPaymentRequired:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case codeEquals(apiErr.Code, "insufficient_quota"):
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		case codeEquals(apiErr.Code, "content_filter"), codeEquals(apiErr.Code, "content_policy_violation"):
			return fmt.Errorf("%w: %v", ErrSafetyBlocked, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderFailure, err)
}

// codeEquals compares the loosely typed APIError.Code against a string.
func codeEquals(code any, want string) bool {
	s, ok := code.(string)
	return ok && s == want
}

// ErrorSummary renders a short human-readable description of a classified
// generation error, suitable as the content of an error-status assistant
// message when no deltas were received.
func ErrorSummary(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "The assistant is temporarily unavailable: usage quota exceeded. Please try again later."
	case errors.Is(err, ErrSafetyBlocked):
		return "The assistant could not respond: the request was blocked by the provider's safety filter."
	default:
		return "The assistant could not respond due to a provider error. Please try again."
	}
}
