package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SceneForge-server/config"
	"SceneForge-server/models"

	"github.com/rs/zerolog"
)

const styleAnalysisPrompt = `You are a film editor. Given a reference video URL and any context, describe the style a new video should copy.
Respond with a JSON object with string fields "pacing", "tone", "visualStyle", "colorPalette", "cameraWork" and "summary".
"summary" is one sentence that can be appended to a video generation prompt. Output JSON only.`

// Studio runs the single-shot generators. Each call blocks until the provider
// finishes, fails or the attempt ceiling is reached.
type Studio struct {
	projects ProjectStore
	videos   VideoService
	voice    *Voiceover
	llm      Completer
	gen      config.Generation
	log      zerolog.Logger
}

func NewStudio(projects ProjectStore, videos VideoService, voice *Voiceover, llm Completer, gen config.Generation, log zerolog.Logger) *Studio {
	return &Studio{projects: projects, videos: videos, voice: voice, llm: llm, gen: gen, log: log}
}

type StudioResult struct {
	Success       bool           `json:"success"`
	VideoURL      string         `json:"videoUrl"`
	VoiceoverURL  string         `json:"voiceoverUrl,omitempty"`
	StyleAnalysis *StyleAnalysis `json:"styleAnalysis,omitempty"`
}

type StyleAnalysis struct {
	Pacing       string `json:"pacing"`
	Tone         string `json:"tone"`
	VisualStyle  string `json:"visualStyle"`
	ColorPalette string `json:"colorPalette"`
	CameraWork   string `json:"cameraWork"`
	Summary      string `json:"summary"`
}

type PromptVideoRequest struct {
	Prompt    string `json:"prompt"`
	Style     string `json:"style"`
	Music     string `json:"music"`
	Duration  int    `json:"duration"`
	ProjectID string `json:"projectId"`

	// UserID is the caller; it is never read from the body.
	UserID string `json:"-"`
}

type ExplainerRequest struct {
	Script         string `json:"script"`
	AnimationStyle string `json:"animationStyle"`
	VoiceoverStyle string `json:"voiceoverStyle"`
	TargetAudience string `json:"targetAudience"`
	Duration       int    `json:"duration"`
	ProjectID      string `json:"projectId"`

	UserID string `json:"-"`
}

type UGCRequest struct {
	CharacterType string `json:"characterType"`
	Script        string `json:"script"`
	VoiceStyle    string `json:"voiceStyle"`
	Setting       string `json:"setting"`
	ProjectID     string `json:"projectId"`

	UserID string `json:"-"`
}

type CloneStyleRequest struct {
	SampleVideoURL string `json:"sampleVideoUrl"`
	ContentText    string `json:"contentText"`
	Duration       int    `json:"duration"`
	ProjectID      string `json:"projectId"`

	UserID string `json:"-"`
}

func required(fields ...[2]string) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return InvalidInput("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *Studio) PromptVideo(ctx context.Context, req PromptVideoRequest) (*StudioResult, error) {
	if err := required([2]string{"prompt", req.Prompt}, [2]string{"style", req.Style}, [2]string{"music", req.Music}, [2]string{"projectId", req.ProjectID}); err != nil {
		return nil, err
	}
	if err := s.videos.Configured(); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("%s. Visual style: %s. Pacing that fits %s background music.", strings.TrimSpace(req.Prompt), req.Style, req.Music)

	return s.run(ctx, req.UserID, req.ProjectID, func(ctx context.Context) (*StudioResult, models.JSONMap, error) {
		voiceURL := s.voiceover(ctx, req.ProjectID, req.Prompt, "professional")
		videoURL, err := s.render(ctx, prompt, req.Duration, s.gen.RenderMaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		return &StudioResult{Success: true, VideoURL: videoURL, VoiceoverURL: voiceURL}, models.JSONMap{
			"prompt":       req.Prompt,
			"style":        req.Style,
			"music":        req.Music,
			"videoUrl":     videoURL,
			"voiceoverUrl": voiceURL,
		}, nil
	})
}

func (s *Studio) ExplainerVideo(ctx context.Context, req ExplainerRequest) (*StudioResult, error) {
	if err := required([2]string{"script", req.Script}, [2]string{"animationStyle", req.AnimationStyle}, [2]string{"voiceoverStyle", req.VoiceoverStyle}, [2]string{"projectId", req.ProjectID}); err != nil {
		return nil, err
	}
	if err := s.videos.Configured(); err != nil {
		return nil, err
	}
	audience := req.TargetAudience
	if audience == "" {
		audience = "a general audience"
	}
	prompt := fmt.Sprintf("An explainer video in %s animation style for %s, illustrating: %s", req.AnimationStyle, audience, strings.TrimSpace(req.Script))

	return s.run(ctx, req.UserID, req.ProjectID, func(ctx context.Context) (*StudioResult, models.JSONMap, error) {
		voiceURL := s.voiceover(ctx, req.ProjectID, req.Script, req.VoiceoverStyle)
		videoURL, err := s.render(ctx, prompt, req.Duration, s.gen.ExplainerMaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		return &StudioResult{Success: true, VideoURL: videoURL, VoiceoverURL: voiceURL}, models.JSONMap{
			"script":         req.Script,
			"animationStyle": req.AnimationStyle,
			"voiceoverStyle": req.VoiceoverStyle,
			"targetAudience": req.TargetAudience,
			"videoUrl":       videoURL,
			"voiceoverUrl":   voiceURL,
		}, nil
	})
}

func (s *Studio) UGCVideo(ctx context.Context, req UGCRequest) (*StudioResult, error) {
	if err := required([2]string{"characterType", req.CharacterType}, [2]string{"script", req.Script}, [2]string{"voiceStyle", req.VoiceStyle}, [2]string{"projectId", req.ProjectID}); err != nil {
		return nil, err
	}
	if err := s.videos.Configured(); err != nil {
		return nil, err
	}
	setting := req.Setting
	if setting == "" {
		setting = "a casual home setting"
	}
	prompt := fmt.Sprintf("Handheld user-generated style video of a %s talking to the camera in %s, natural lighting, authentic smartphone look. They say: %s",
		req.CharacterType, setting, strings.TrimSpace(req.Script))

	return s.run(ctx, req.UserID, req.ProjectID, func(ctx context.Context) (*StudioResult, models.JSONMap, error) {
		voiceURL := s.voiceover(ctx, req.ProjectID, req.Script, req.VoiceStyle)
		videoURL, err := s.render(ctx, prompt, 0, s.gen.RenderMaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		return &StudioResult{Success: true, VideoURL: videoURL}, models.JSONMap{
			"characterType": req.CharacterType,
			"script":        req.Script,
			"voiceStyle":    req.VoiceStyle,
			"setting":       req.Setting,
			"videoUrl":      videoURL,
			"voiceoverUrl":  voiceURL,
		}, nil
	})
}

func (s *Studio) CloneStyle(ctx context.Context, req CloneStyleRequest) (*StudioResult, error) {
	if err := required([2]string{"sampleVideoUrl", req.SampleVideoURL}, [2]string{"contentText", req.ContentText}, [2]string{"projectId", req.ProjectID}); err != nil {
		return nil, err
	}
	if _, err := parsePageURL(req.SampleVideoURL); err != nil {
		return nil, InvalidInput("invalid sampleVideoUrl: %q", req.SampleVideoURL)
	}
	if s.llm == nil {
		return nil, &ConfigError{Key: "OPENAI_API_KEY"}
	}
	if err := s.videos.Configured(); err != nil {
		return nil, err
	}

	return s.run(ctx, req.UserID, req.ProjectID, func(ctx context.Context) (*StudioResult, models.JSONMap, error) {
		raw, err := s.llm.CompleteJSON(ctx, styleAnalysisPrompt,
			fmt.Sprintf("Reference video: %s\nContent to produce: %s", req.SampleVideoURL, req.ContentText))
		if err != nil {
			return nil, nil, err
		}
		var analysis StyleAnalysis
		if err := decodeJSONObject(raw, &analysis); err != nil {
			return nil, nil, err
		}
		prompt := fmt.Sprintf("%s. Match this style: %s Pacing: %s. Tone: %s. Colors: %s. Camera: %s.",
			strings.TrimSpace(req.ContentText), analysis.Summary, analysis.Pacing, analysis.Tone, analysis.ColorPalette, analysis.CameraWork)
		videoURL, err := s.render(ctx, prompt, req.Duration, s.gen.RenderMaxAttempts)
		if err != nil {
			return nil, nil, err
		}
		return &StudioResult{Success: true, VideoURL: videoURL, StyleAnalysis: &analysis}, models.JSONMap{
			"sampleVideoUrl": req.SampleVideoURL,
			"contentText":    req.ContentText,
			"styleAnalysis":  analysis,
			"videoUrl":       videoURL,
		}, nil
	})
}

type studioFunc func(ctx context.Context) (*StudioResult, models.JSONMap, error)

// run wraps a generator in the project lifecycle: processing while it runs,
// then completed with the payload or error with the message. Only projects
// visible to userID are touched.
func (s *Studio) run(ctx context.Context, userID, projectID string, fn studioFunc) (*StudioResult, error) {
	if _, err := ownedProject(ctx, s.projects, userID, projectID); err != nil {
		return nil, err
	}
	if err := s.projects.UpdateStatus(ctx, projectID, models.ProjectStatusProcessing, nil, ""); err != nil {
		return nil, fmt.Errorf("mark project processing: %w", err)
	}

	res, payload, err := fn(ctx)
	final := context.WithoutCancel(ctx)
	if err != nil {
		if uerr := s.projects.UpdateStatus(final, projectID, models.ProjectStatusError, nil, err.Error()); uerr != nil {
			s.log.Warn().Err(uerr).Str("project_id", projectID).Msg("mark project error")
		}
		return nil, err
	}
	if uerr := s.projects.UpdateStatus(final, projectID, models.ProjectStatusCompleted, payload, ""); uerr != nil {
		s.log.Warn().Err(uerr).Str("project_id", projectID).Msg("mark project completed")
	}
	return res, nil
}

// voiceover is best effort: failures are logged and yield an empty URL.
func (s *Studio) voiceover(ctx context.Context, projectID, script, style string) string {
	if s.voice == nil {
		return ""
	}
	url, err := s.voice.Generate(ctx, script, style, projectID)
	if err != nil {
		s.log.Warn().Err(err).Str("project_id", projectID).Msg("voiceover skipped")
		return ""
	}
	return url
}

func (s *Studio) render(ctx context.Context, prompt string, duration, maxAttempts int) (string, error) {
	sub, err := s.videos.RenderPrompt(ctx, prompt, duration)
	if err != nil {
		return "", err
	}
	log := s.log.With().Str("prediction_id", sub.PredictionID).Logger()

	var videoURL string
	err = PollUntil(ctx, PollOptions{Interval: s.gen.RenderPollInterval, MaxAttempts: maxAttempts, Op: "video generation"}, func(ctx context.Context, attempt int) (bool, error) {
		st, err := s.videos.CheckStatus(ctx, sub.PredictionID)
		if err != nil {
			if !retryable(err) {
				return false, err
			}
			log.Debug().Err(err).Int("attempt", attempt).Msg("status poll failed")
			return false, nil
		}
		switch st.Status {
		case PredictionSucceeded:
			if st.VideoURL == "" {
				return false, newAIError(replicateProvider, 0, KindMalformed, "prediction succeeded without output")
			}
			videoURL = st.VideoURL
			return true, nil
		case PredictionFailed, PredictionCanceled:
			return false, newAIError(replicateProvider, 0, KindProvider, "video generation "+st.Status+": "+st.Error)
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	return videoURL, nil
}

// DefaultRenderTimeout is how long the slowest blocking generator may take.
func DefaultRenderTimeout(gen config.Generation) time.Duration {
	n := gen.RenderMaxAttempts
	if gen.ExplainerMaxAttempts > n {
		n = gen.ExplainerMaxAttempts
	}
	return time.Duration(n+2) * gen.RenderPollInterval
}
