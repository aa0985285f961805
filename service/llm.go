package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const openAIProvider = "OpenAI"

// Completer runs one JSON-mode chat completion and returns the raw content.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

type OpenAICompleter struct {
	client *openai.Client
	model  string
}

func NewOpenAICompleter(apiKey, baseURL, model string, httpClient *http.Client) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAICompleter) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", newAIError(openAIProvider, 0, KindMalformed, "no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := strings.ToLower(fmt.Sprint(apiErr.Code))
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests &&
			(code == "insufficient_quota" || apiErr.Type == "insufficient_quota"):
			return newAIError(openAIProvider, apiErr.HTTPStatusCode, KindQuota, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return newAIError(openAIProvider, apiErr.HTTPStatusCode, KindRateLimited, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return newAIError(openAIProvider, apiErr.HTTPStatusCode, KindAuth, apiErr.Message)
		case apiErr.HTTPStatusCode == http.StatusPaymentRequired:
			return newAIError(openAIProvider, apiErr.HTTPStatusCode, KindBilling, apiErr.Message)
		}
		return newAIError(openAIProvider, apiErr.HTTPStatusCode, KindProvider, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := ""
		if reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return classifyHTTP(openAIProvider, reqErr.HTTPStatusCode, []byte(detail))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newAIError(openAIProvider, 0, KindProvider, err.Error())
}

// decodeJSONObject strictly decodes the first JSON object in content. Models
// sometimes wrap it in markdown fences.
func decodeJSONObject(content string, v interface{}) error {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return newAIError(openAIProvider, 0, KindMalformed, "no JSON object in completion")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return newAIError(openAIProvider, 0, KindMalformed, err.Error())
	}
	return nil
}
