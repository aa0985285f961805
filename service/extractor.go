package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SceneForge-server/models"

	"github.com/rs/zerolog"
)

const extractSystemPrompt = `You turn the raw HTML or text of a web page into material for a short promotional video.
Respond with a single JSON object with exactly these string fields:
"title": the product, company or page name,
"description": one or two sentences describing it,
"content": the key selling points as plain prose,
"script": a 30 to 60 second voiceover script for a promotional video.
Output JSON only.`

const maxPageBytes = 2 << 20

type ExtractedContent struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Script      string   `json:"script"`
	Images      []string `json:"images"`
	URL         string   `json:"url"`
}

func (e *ExtractedContent) payload() models.JSONMap {
	return models.JSONMap{
		"title":       e.Title,
		"description": e.Description,
		"content":     e.Content,
		"script":      e.Script,
		"images":      e.Images,
		"url":         e.URL,
	}
}

type Extractor struct {
	httpClient *http.Client
	llm        Completer
	projects   ProjectStore
	maxChars   int
	log        zerolog.Logger
}

// NewExtractor returns an extractor; a nil llm makes every call fail with a
// ConfigError for OPENAI_API_KEY.
func NewExtractor(httpClient *http.Client, llm Completer, projects ProjectStore, maxChars int, log zerolog.Logger) *Extractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Extractor{httpClient: httpClient, llm: llm, projects: projects, maxChars: maxChars, log: log}
}

// Extract fetches rawURL, summarises it and, when projectID is set, stores
// the result as that project's draft payload. The project must be visible to
// userID.
func (e *Extractor) Extract(ctx context.Context, userID, rawURL, projectID string) (*ExtractedContent, error) {
	u, err := parsePageURL(rawURL)
	if err != nil {
		return nil, err
	}
	if e.llm == nil {
		return nil, &ConfigError{Key: "OPENAI_API_KEY"}
	}
	saveDraft := projectID != "" && e.projects != nil
	if saveDraft {
		if _, err := ownedProject(ctx, e.projects, userID, projectID); err != nil {
			return nil, err
		}
	}

	body, err := e.fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}

	user := fmt.Sprintf("URL: %s\n\nPage content:\n%s", u.String(), truncate(body, e.maxChars))
	raw, err := e.llm.CompleteJSON(ctx, extractSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	var out ExtractedContent
	if err := decodeJSONObject(raw, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Title) == "" {
		out.Title = u.Hostname()
	}
	out.Images = []string{}
	out.URL = rawURL

	if saveDraft {
		if err := e.projects.UpdateStatus(ctx, projectID, models.ProjectStatusDraft, out.payload(), ""); err != nil {
			e.log.Warn().Err(err).Str("project_id", projectID).Msg("save extracted content")
		}
	}
	return &out, nil
}

func parsePageURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, InvalidInput("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, InvalidInput("invalid url: %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, InvalidInput("unsupported url scheme %q", u.Scheme)
	}
	return u, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &UpstreamFetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SceneForgeBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamFetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamFetchError{URL: pageURL, Status: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", &UpstreamFetchError{URL: pageURL, Err: err}
	}
	return string(b), nil
}
