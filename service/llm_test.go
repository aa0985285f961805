package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIStub(t *testing.T, status int, body string, seen *map[string]interface{}) *OpenAICompleter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewOpenAICompleter("test-key", srv.URL+"/v1", "gpt-4o-mini", srv.Client())
}

func TestOpenAICompleterReturnsContent(t *testing.T) {
	var seen map[string]interface{}
	c := newOpenAIStub(t, 200, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"title\":\"Hi\"}"},"finish_reason":"stop"}]}`, &seen)

	out, err := c.CompleteJSON(context.Background(), "sys", "user text")
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Hi"}`, out)

	format, ok := seen["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	msgs, ok := seen["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAICompleterClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"quota", 429, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`, KindQuota},
		{"rate_limit", 429, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, KindRateLimited},
		{"auth", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, KindAuth},
		{"server", 500, `{"error":{"message":"boom","type":"server_error","code":null}}`, KindProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newOpenAIStub(t, tc.status, tc.body, nil)
			_, err := c.CompleteJSON(context.Background(), "sys", "user")
			require.Error(t, err)
			var ai *UpstreamAIError
			require.True(t, errors.As(err, &ai), "got %T: %v", err, err)
			assert.Equal(t, tc.kind, ai.Kind)
			assert.Equal(t, tc.status, ai.Status)
		})
	}
}

func TestDecodeJSONObject(t *testing.T) {
	var v struct {
		Title string `json:"title"`
	}
	require.NoError(t, decodeJSONObject("```json\n{\"title\":\"A\"}\n```", &v))
	assert.Equal(t, "A", v.Title)

	err := decodeJSONObject("sorry, I cannot", &v)
	var ai *UpstreamAIError
	require.True(t, errors.As(err, &ai))
	assert.Equal(t, KindMalformed, ai.Kind)

	err = decodeJSONObject(`{"title": }`, &v)
	require.True(t, errors.As(err, &ai))
	assert.Equal(t, KindMalformed, ai.Kind)
}
