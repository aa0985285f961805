package service

import (
	"context"
	"math"
	"strings"

	"SceneForge-server/models"

	"github.com/go-playground/validator/v10"
)

const planSystemPrompt = `You are a video director who breaks a brief into scenes for an AI video generator.
Return a JSON object of the form {"title": string, "scenes": [{"text": string, "visuals": string, "style": string, "duration": integer}]}.
"text" is the narration for the scene, "visuals" describes what the camera shows, "style" is a short visual style tag and "duration" is the scene length in seconds.
Each scene lasts between 3 and 8 seconds and the whole video runs 30 to 60 seconds.
Keep the scenes in playback order. Output JSON only, with no commentary.`

type Planner struct {
	llm      Completer
	validate *validator.Validate
}

// NewPlanner returns a planner; a nil llm makes Plan fail with a ConfigError.
func NewPlanner(llm Completer) *Planner {
	return &Planner{llm: llm, validate: validator.New()}
}

type planScene struct {
	Text     string  `json:"text"`
	Visuals  string  `json:"visuals"`
	Style    string  `json:"style"`
	Duration float64 `json:"duration"`
}

type planResponse struct {
	Title  string       `json:"title"`
	Scenes *[]planScene `json:"scenes"`
}

// Plan decomposes exactly one of prompt or script into ordered scenes.
func (p *Planner) Plan(ctx context.Context, prompt, script string) (*models.ScenesResult, error) {
	prompt, script = strings.TrimSpace(prompt), strings.TrimSpace(script)
	switch {
	case prompt == "" && script == "":
		return nil, InvalidInput("prompt or script is required")
	case prompt != "" && script != "":
		return nil, InvalidInput("provide either prompt or script, not both")
	}
	if p.llm == nil {
		return nil, &ConfigError{Key: "OPENAI_API_KEY"}
	}

	user := "Prompt: " + prompt
	if script != "" {
		user = "Script: " + script
	}
	raw, err := p.llm.CompleteJSON(ctx, planSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var resp planResponse
	if err := decodeJSONObject(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Scenes == nil {
		return nil, newAIError(openAIProvider, 0, KindMalformed, `missing "scenes"`)
	}

	out := &models.ScenesResult{Title: strings.TrimSpace(resp.Title)}
	for _, s := range *resp.Scenes {
		d := int(math.Round(s.Duration))
		if d <= 0 {
			d = models.DefaultSceneDuration
		}
		out.Scenes = append(out.Scenes, models.Scene{
			Text:     strings.TrimSpace(s.Text),
			Visuals:  strings.TrimSpace(s.Visuals),
			Style:    strings.TrimSpace(s.Style),
			Duration: d,
		})
	}
	if err := p.validate.StructCtx(ctx, out); err != nil {
		return nil, newAIError(openAIProvider, 0, KindMalformed, err.Error())
	}
	return out, nil
}

// ValidateScenes checks a caller supplied scene list the same way planned
// scenes are checked, defaulting missing durations.
func (p *Planner) ValidateScenes(scenes []models.Scene) ([]models.Scene, error) {
	out := make([]models.Scene, len(scenes))
	for i, s := range scenes {
		if s.Duration <= 0 {
			s.Duration = models.DefaultSceneDuration
		}
		out[i] = s
	}
	if err := p.validate.Struct(models.ScenesResult{Scenes: out}); err != nil {
		return nil, InvalidInput("invalid scenes: %v", err)
	}
	return out, nil
}
