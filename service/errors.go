package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind narrows an UpstreamAIError down for callers and messages.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth"
	KindQuota       ErrorKind = "quota"
	KindBilling     ErrorKind = "billing"
	KindMalformed   ErrorKind = "malformed_output"
	KindProvider    ErrorKind = "provider"
)

type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string { return e.Msg }

func InvalidInput(format string, args ...interface{}) error {
	return &InvalidInputError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigError reports a credential or setting the process was started without.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string { return e.Key + " is not configured" }

type UpstreamFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *UpstreamFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

type UpstreamAIError struct {
	Provider string
	Status   int
	Kind     ErrorKind
	Message  string
}

func (e *UpstreamAIError) Error() string {
	return e.Message
}

type TimeoutError struct {
	Op       string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d attempts", e.Op, e.Attempts)
}

func newAIError(provider string, status int, kind ErrorKind, detail string) *UpstreamAIError {
	var msg string
	switch kind {
	case KindRateLimited:
		msg = provider + " rate limit exceeded, please try again shortly"
	case KindAuth:
		msg = provider + " rejected the API credentials"
	case KindQuota:
		msg = provider + " quota exhausted, check the plan and usage limits"
	case KindBilling:
		msg = provider + " billing error: add credit or update the payment method"
	case KindMalformed:
		msg = provider + " returned malformed output"
	default:
		msg = provider + " request failed"
	}
	if detail != "" {
		msg += ": " + detail
	}
	return &UpstreamAIError{Provider: provider, Status: status, Kind: kind, Message: msg}
}

var billingMarkers = []string{
	"billing",
	"insufficient credit",
	"payment required",
	"spend limit",
}

// classifyHTTP turns a provider's non-2xx response into an UpstreamAIError.
func classifyHTTP(provider string, status int, body []byte) *UpstreamAIError {
	text := strings.ToLower(string(body))
	detail := truncate(strings.TrimSpace(string(body)), 300)
	switch {
	case status == http.StatusPaymentRequired:
		return newAIError(provider, status, KindBilling, detail)
	case status == http.StatusTooManyRequests && strings.Contains(text, "quota"):
		return newAIError(provider, status, KindQuota, detail)
	case status == http.StatusTooManyRequests:
		return newAIError(provider, status, KindRateLimited, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newAIError(provider, status, KindAuth, detail)
	}
	for _, m := range billingMarkers {
		if strings.Contains(text, m) {
			return newAIError(provider, http.StatusPaymentRequired, KindBilling, detail)
		}
	}
	return newAIError(provider, status, KindProvider, detail)
}

// retryable reports whether a failed status poll may succeed on a later
// tick. Transport failures, rate limits and provider 5xx are retried;
// credential, billing and quota errors are not.
func retryable(err error) bool {
	var (
		ai      *UpstreamAIError
		cfg     *ConfigError
		invalid *InvalidInputError
	)
	switch {
	case errors.As(err, &ai):
		switch ai.Kind {
		case KindAuth, KindBilling, KindQuota:
			return false
		}
		return ai.Status == 0 || ai.Status == http.StatusTooManyRequests || ai.Status >= 500
	case errors.As(err, &cfg), errors.As(err, &invalid), errors.Is(err, ErrNotFound):
		return false
	}
	return true
}

// HTTPStatus maps an error to the status handlers answer with. Upstream AI
// errors mirror the provider status when it is a client or server error.
func HTTPStatus(err error) int {
	var (
		invalid *InvalidInputError
		cfg     *ConfigError
		fetch   *UpstreamFetchError
		ai      *UpstreamAIError
		timeout *TimeoutError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &cfg):
		return http.StatusInternalServerError
	case errors.As(err, &fetch):
		return http.StatusBadGateway
	case errors.As(err, &ai):
		if ai.Status >= 400 && ai.Status <= 599 {
			return ai.Status
		}
		return http.StatusInternalServerError
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// ErrorCode is the short machine-readable code sent alongside the message.
func ErrorCode(err error) string {
	var (
		invalid *InvalidInputError
		cfg     *ConfigError
		fetch   *UpstreamFetchError
		ai      *UpstreamAIError
		timeout *TimeoutError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &invalid):
		return "invalid_input"
	case errors.As(err, &cfg):
		return "config_error"
	case errors.As(err, &fetch):
		return "upstream_fetch_error"
	case errors.As(err, &ai):
		return "upstream_ai_error:" + string(ai.Kind)
	case errors.As(err, &timeout):
		return "timeout"
	}
	return "internal_error"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
