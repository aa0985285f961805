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

	"github.com/google/uuid"
)

const elevenLabsProvider = "ElevenLabs"

const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

var voiceStyles = map[string]string{
	"professional": "21m00Tcm4TlvDq8ikWAM",
	"friendly":     "EXAVITQu4vr4xnSDxMaL",
	"energetic":    "TxGEqnHWrfWFTfGW9XJ5",
	"calm":         "pNInz6obpgDQGcFmaJgB",
}

// VoiceIDFor maps a voice style key to a provider voice; unknown keys get the
// default voice.
func VoiceIDFor(style string) string {
	if id, ok := voiceStyles[strings.ToLower(strings.TrimSpace(style))]; ok {
		return id
	}
	return DefaultVoiceID
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type ElevenLabsClient struct {
	BaseURL    string
	APIKey     string
	ModelID    string
	HTTPClient *http.Client
}

func NewElevenLabsClient(baseURL, apiKey, modelID string) *ElevenLabsClient {
	return &ElevenLabsClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		ModelID:    modelID,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	reqBody := map[string]interface{}{
		"text":     text,
		"model_id": c.ModelID,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/text-to-speech/"+voiceID, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, newAIError(elevenLabsProvider, 0, KindProvider, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, classifyHTTP(elevenLabsProvider, resp.StatusCode, body)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newAIError(elevenLabsProvider, resp.StatusCode, KindProvider, err.Error())
	}
	if len(audio) == 0 {
		return nil, newAIError(elevenLabsProvider, resp.StatusCode, KindMalformed, "empty audio")
	}
	return audio, nil
}

// Voiceover synthesises narration and stores it as an mp3.
type Voiceover struct {
	tts   SpeechSynthesizer
	store ObjectStore
}

func NewVoiceover(tts SpeechSynthesizer, store ObjectStore) *Voiceover {
	return &Voiceover{tts: tts, store: store}
}

// Generate synthesises script with the voice for style, stores the mp3 under
// voiceovers/<scope>/ and returns its URL.
func (v *Voiceover) Generate(ctx context.Context, script, style, scope string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", InvalidInput("script is required for voiceover")
	}
	if v.tts == nil {
		return "", &ConfigError{Key: "ELEVENLABS_API_KEY"}
	}
	if v.store == nil {
		return "", &ConfigError{Key: "MINIO_ENDPOINT"}
	}
	audio, err := v.tts.Synthesize(ctx, script, VoiceIDFor(style))
	if err != nil {
		return "", err
	}
	if scope == "" {
		scope = "adhoc"
	}
	objectName := fmt.Sprintf("voiceovers/%s/%s.mp3", scope, uuid.NewString())
	url, err := v.store.Upload(ctx, objectName, bytes.NewReader(audio), int64(len(audio)))
	if err != nil {
		return "", fmt.Errorf("store voiceover: %w", err)
	}
	return url, nil
}
