package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"SceneForge-server/models"
)

const replicateProvider = "Replicate"

// Provider prediction statuses.
const (
	PredictionStarting   = "starting"
	PredictionProcessing = "processing"
	PredictionSucceeded  = "succeeded"
	PredictionFailed     = "failed"
	PredictionCanceled   = "canceled"
)

// Prediction is the provider view of one asynchronous generation job.
// Output and Error are kept raw since their shape varies by model.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// OutputURLs accepts both a single string and an array of strings.
func (p *Prediction) OutputURLs() []string {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil {
		return many
	}
	var one string
	if err := json.Unmarshal(p.Output, &one); err == nil && one != "" {
		return []string{one}
	}
	return nil
}

func (p *Prediction) ErrorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return string(p.Error)
}

// VideoProvider is an asynchronous prediction API.
type VideoProvider interface {
	CreatePrediction(ctx context.Context, prompt string, numFrames, fps int) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
}

// ReplicateClient talks to a Replicate-style predictions API.
type ReplicateClient struct {
	BaseURL    string
	Token      string
	Version    string
	HTTPClient *http.Client
}

func NewReplicateClient(baseURL, token, version string) *ReplicateClient {
	return &ReplicateClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		Version:    version,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ReplicateClient) CreatePrediction(ctx context.Context, prompt string, numFrames, fps int) (*Prediction, error) {
	reqBody := map[string]interface{}{
		"version": c.Version,
		"input": map[string]interface{}{
			"prompt":     prompt,
			"num_frames": numFrames,
			"fps":        fps,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.BaseURL+"/predictions", bytes.NewReader(jsonBody))
}

func (c *ReplicateClient) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	return c.do(ctx, http.MethodGet, c.BaseURL+"/predictions/"+id, nil)
}

func (c *ReplicateClient) do(ctx context.Context, method, fullURL string, body io.Reader) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, newAIError(replicateProvider, 0, KindProvider, err.Error())
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newAIError(replicateProvider, resp.StatusCode, KindProvider, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyHTTP(replicateProvider, resp.StatusCode, bodyBytes)
	}

	var p Prediction
	if err := json.Unmarshal(bodyBytes, &p); err != nil {
		return nil, newAIError(replicateProvider, 0, KindMalformed, err.Error())
	}
	return &p, nil
}

// SceneSubmission is returned as soon as a prediction is accepted.
type SceneSubmission struct {
	PredictionID string `json:"predictionId"`
	Status       string `json:"status"`
	SceneIndex   int    `json:"sceneIndex"`
}

// JobStatus is the pass-through view of one prediction. VideoURL is the
// first output when the provider returns several.
type JobStatus struct {
	Status   string          `json:"status"`
	Output   json.RawMessage `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	VideoURL string          `json:"videoUrl,omitempty"`
}

// VideoService is what the handlers, the batch orchestrator and the studio
// need from the video provider.
type VideoService interface {
	Configured() error
	RequestScene(ctx context.Context, scene *models.Scene, index int) (*SceneSubmission, error)
	RenderPrompt(ctx context.Context, prompt string, duration int) (*SceneSubmission, error)
	CheckStatus(ctx context.Context, predictionID string) (*JobStatus, error)
}

type VideoRequester struct {
	provider  VideoProvider
	fps       int
	maxFrames int
}

// NewVideoRequester wraps provider; a nil provider reports a ConfigError for
// REPLICATE_API_TOKEN on every call.
func NewVideoRequester(provider VideoProvider, fps, maxFrames int) *VideoRequester {
	if fps <= 0 {
		fps = 8
	}
	if maxFrames <= 0 {
		maxFrames = 49
	}
	return &VideoRequester{provider: provider, fps: fps, maxFrames: maxFrames}
}

func (v *VideoRequester) Configured() error {
	if v.provider == nil {
		return &ConfigError{Key: "REPLICATE_API_TOKEN"}
	}
	return nil
}

// FrameCount is duration*fps capped at maxFrames.
func FrameCount(duration, fps, maxFrames int) int {
	if duration <= 0 {
		duration = models.DefaultSceneDuration
	}
	n := duration * fps
	if n > maxFrames {
		return maxFrames
	}
	return n
}

// ScenePrompt renders a scene as natural-language instructions for the
// diffusion model.
func ScenePrompt(scene *models.Scene) string {
	var b strings.Builder
	visuals := scene.Visuals
	if visuals == "" {
		visuals = scene.Text
	}
	b.WriteString(strings.TrimSpace(visuals))
	if scene.Style != "" {
		fmt.Fprintf(&b, ". Visual style: %s", scene.Style)
	}
	d := scene.Duration
	if d <= 0 {
		d = models.DefaultSceneDuration
	}
	fmt.Fprintf(&b, ". A %d second cinematic shot with smooth camera motion, high quality, coherent lighting.", d)
	return b.String()
}

func (v *VideoRequester) RequestScene(ctx context.Context, scene *models.Scene, index int) (*SceneSubmission, error) {
	if scene == nil || (strings.TrimSpace(scene.Visuals) == "" && strings.TrimSpace(scene.Text) == "") {
		return nil, InvalidInput("scene data is required")
	}
	if index < 0 {
		return nil, InvalidInput("sceneIndex must be non-negative")
	}
	sub, err := v.submit(ctx, ScenePrompt(scene), scene.Duration)
	if err != nil {
		return nil, err
	}
	sub.SceneIndex = index
	return sub, nil
}

func (v *VideoRequester) RenderPrompt(ctx context.Context, prompt string, duration int) (*SceneSubmission, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, InvalidInput("prompt is required")
	}
	return v.submit(ctx, prompt, duration)
}

func (v *VideoRequester) submit(ctx context.Context, prompt string, duration int) (*SceneSubmission, error) {
	if err := v.Configured(); err != nil {
		return nil, err
	}
	p, err := v.provider.CreatePrediction(ctx, prompt, FrameCount(duration, v.fps, v.maxFrames), v.fps)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, newAIError(replicateProvider, 0, KindMalformed, "prediction id missing")
	}
	return &SceneSubmission{PredictionID: p.ID, Status: p.Status}, nil
}

func (v *VideoRequester) CheckStatus(ctx context.Context, predictionID string) (*JobStatus, error) {
	if strings.TrimSpace(predictionID) == "" {
		return nil, InvalidInput("predictionId is required")
	}
	if err := v.Configured(); err != nil {
		return nil, err
	}
	p, err := v.provider.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	st := &JobStatus{Status: p.Status, Error: p.ErrorMessage()}
	if len(p.Output) > 0 && string(p.Output) != "null" {
		st.Output = p.Output
	}
	if urls := p.OutputURLs(); len(urls) > 0 {
		st.VideoURL = urls[0]
	}
	return st, nil
}
