package ai

import (
	"errors"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "http 429 is quota",
			err:  &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
			want: ErrQuotaExceeded,
		},
		{
			name: "http 402 is quota",
			err:  &openai.APIError{HTTPStatusCode: http.StatusPaymentRequired},
			want: ErrQuotaExceeded,
		},
		{
			name: "insufficient_quota code is quota",
			err:  &openai.APIError{Code: "insufficient_quota", HTTPStatusCode: http.StatusForbidden},
			want: ErrQuotaExceeded,
		},
		{
			name: "content_filter code is safety",
			err:  &openai.APIError{Code: "content_filter"},
			want: ErrSafetyBlocked,
		},
		{
			name: "content_policy_violation code is safety",
			err:  &openai.APIError{Code: "content_policy_violation", HTTPStatusCode: http.StatusBadRequest},
			want: ErrSafetyBlocked,
		},
		{
			name: "server error is provider failure",
			err:  &openai.APIError{HTTPStatusCode: http.StatusInternalServerError},
			want: ErrProviderFailure,
		},
		{
			name: "non-string code falls through",
			err:  &openai.APIError{Code: 42, HTTPStatusCode: http.StatusBadRequest},
			want: ErrProviderFailure,
		},
		{
			name: "request error 429 is quota",
			err:  &openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests, Err: errors.New("too many requests")},
			want: ErrQuotaExceeded,
		},
		{
			name: "plain network error is provider failure",
			err:  errors.New("connection refused"),
			want: ErrProviderFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			// The original cause stays readable in the message.
			assert.Contains(t, got.Error(), tt.want.Error())
		})
	}
}

func TestErrorSummary(t *testing.T) {
	assert.Contains(t, ErrorSummary(classifyError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests})), "quota")
	assert.Contains(t, ErrorSummary(classifyError(&openai.APIError{Code: "content_filter"})), "safety")
	assert.Contains(t, ErrorSummary(classifyError(errors.New("boom"))), "provider error")
}
