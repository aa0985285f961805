package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"invalid", InvalidInput("prompt or script is required"), http.StatusBadRequest, "invalid_input"},
		{"config", &ConfigError{Key: "OPENAI_API_KEY"}, http.StatusInternalServerError, "config_error"},
		{"fetch", &UpstreamFetchError{URL: "http://x", Status: 404}, http.StatusBadGateway, "upstream_fetch_error"},
		{"billing", newAIError("replicate", 402, KindBilling, ""), http.StatusPaymentRequired, "upstream_ai_error:billing"},
		{"rate", newAIError("openai", 429, KindRateLimited, ""), http.StatusTooManyRequests, "upstream_ai_error:rate_limited"},
		{"malformed", newAIError("openai", 0, KindMalformed, ""), http.StatusInternalServerError, "upstream_ai_error:malformed_output"},
		{"timeout", &TimeoutError{Op: "render", Attempts: 60}, http.StatusGatewayTimeout, "timeout"},
		{"wrapped", fmt.Errorf("outer: %w", InvalidInput("x")), http.StatusBadRequest, "invalid_input"},
		{"not_found", fmt.Errorf("load: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"other", context.Canceled, http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
			assert.Equal(t, tc.code, ErrorCode(tc.err))
		})
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		kind       ErrorKind
		wantStatus int
	}{
		{"payment_required", 402, `{"detail":"no"}`, KindBilling, 402},
		{"rate_limit", 429, `{"detail":"slow down"}`, KindRateLimited, 429},
		{"quota", 429, `{"error":"You exceeded your current quota"}`, KindQuota, 429},
		{"auth", 401, `{"detail":"Invalid token"}`, KindAuth, 401},
		{"billing_marker_in_body", 400, `{"detail":"Please set up billing to continue"}`, KindBilling, 402},
		{"credit_marker", 422, `Insufficient credit on account`, KindBilling, 402},
		{"generic", 500, `oops`, KindProvider, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyHTTP("replicate", tc.status, []byte(tc.body))
			assert.Equal(t, tc.kind, err.Kind)
			assert.Equal(t, tc.wantStatus, err.Status)
		})
	}
}

func TestBillingMessageDistinctFromGeneric(t *testing.T) {
	billing := classifyHTTP("elevenlabs", 402, nil)
	generic := classifyHTTP("elevenlabs", 500, nil)
	assert.Contains(t, billing.Error(), "billing")
	assert.NotEqual(t, billing.Error(), generic.Error())

	var ai *UpstreamAIError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", billing), &ai))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", newAIError("Replicate", 0, KindProvider, "reset"), true},
		{"plain error", errors.New("eof"), true},
		{"rate limited", newAIError("Replicate", 429, KindRateLimited, ""), true},
		{"server error", newAIError("Replicate", 503, KindProvider, ""), true},
		{"billing", newAIError("Replicate", 402, KindBilling, ""), false},
		{"billing marker on 400", classifyHTTP("Replicate", 400, []byte("spend limit reached")), false},
		{"auth", newAIError("Replicate", 401, KindAuth, ""), false},
		{"quota", newAIError("Replicate", 429, KindQuota, ""), false},
		{"not found", newAIError("Replicate", 404, KindProvider, ""), false},
		{"config", &ConfigError{Key: "REPLICATE_API_TOKEN"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryable(tc.err))
		})
	}
}
