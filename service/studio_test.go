package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"SceneForge-server/config"
	"SceneForge-server/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeneration() config.Generation {
	return config.Generation{
		RenderPollInterval:   time.Millisecond,
		RenderMaxAttempts:    10,
		ExplainerMaxAttempts: 12,
	}
}

type studioFixture struct {
	projects *fakeProjects
	videos   *fakeVideos
	tts      *fakeTTS
	store    *fakeStore
	llm      *fakeCompleter
	studio   *Studio
}

func newStudioFixture() *studioFixture {
	f := &studioFixture{
		projects: newFakeProjects(
			models.Project{ID: "p1", Status: models.ProjectStatusDraft},
			models.Project{
				ID: "alice-p", UserID: "alice", Status: models.ProjectStatusCompleted,
				Payload: models.JSONMap{"videoUrl": "https://alice/original.mp4"},
			},
		),
		videos:   newFakeVideos(),
		tts:      &fakeTTS{audio: []byte("mp3")},
		store:    &fakeStore{},
		llm:      &fakeCompleter{},
	}
	f.studio = NewStudio(f.projects, f.videos, NewVoiceover(f.tts, f.store), f.llm, testGeneration(), zerolog.Nop())
	return f
}

func TestPromptVideoHappyPath(t *testing.T) {
	f := newStudioFixture()
	f.videos.steps["render-1"] = []pollStep{stepRunning(), {err: errTransport}, stepDone("https://v/final.mp4")}

	res, err := f.studio.PromptVideo(context.Background(), PromptVideoRequest{
		Prompt: "A drone shot over mountains", Style: "cinematic", Music: "epic", Duration: 10, ProjectID: "p1",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "https://v/final.mp4", res.VideoURL)
	assert.Contains(t, res.VoiceoverURL, "voiceovers/p1/")
	assert.Equal(t, VoiceIDFor("professional"), f.tts.voiceID)
	assert.Contains(t, f.videos.lastPrompt, "A drone shot over mountains")
	assert.Equal(t, 10, f.videos.lastDuration)

	assert.Equal(t, []string{models.ProjectStatusProcessing, models.ProjectStatusCompleted}, f.projects.statuses("p1"))
	assert.Equal(t, "https://v/final.mp4", f.projects.get("p1").Payload["videoUrl"])
}

func TestPromptVideoMissingFields(t *testing.T) {
	f := newStudioFixture()
	_, err := f.studio.PromptVideo(context.Background(), PromptVideoRequest{Prompt: "x", ProjectID: "p1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
	assert.Contains(t, err.Error(), "style, music")
	assert.Empty(t, f.projects.statuses("p1"))
}

func TestStudioConfigErrorBeforeWork(t *testing.T) {
	f := newStudioFixture()
	f.videos.configErr = &ConfigError{Key: "REPLICATE_API_TOKEN"}

	_, err := f.studio.ExplainerVideo(context.Background(), ExplainerRequest{
		Script: "s", AnimationStyle: "flat", VoiceoverStyle: "calm", ProjectID: "p1",
	})
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Empty(t, f.projects.statuses("p1"))
}

func TestStudioUnknownProject(t *testing.T) {
	f := newStudioFixture()
	_, err := f.studio.UGCVideo(context.Background(), UGCRequest{
		CharacterType: "barista", Script: "hi", VoiceStyle: "friendly", ProjectID: "nope",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudioLeavesForeignProjectAlone(t *testing.T) {
	f := newStudioFixture()
	f.videos.steps["render-1"] = []pollStep{stepDone("https://other/x.mp4")}
	ctx := context.Background()

	for _, caller := range []string{"", "bob"} {
		_, err := f.studio.PromptVideo(ctx, PromptVideoRequest{
			Prompt: "x", Style: "y", Music: "z", ProjectID: "alice-p", UserID: caller,
		})
		assert.ErrorIs(t, err, ErrNotFound, caller)
		assert.Equal(t, http.StatusNotFound, HTTPStatus(err))

		_, err = f.studio.CloneStyle(ctx, CloneStyleRequest{
			SampleVideoURL: "https://a.b/c.mp4", ContentText: "x", ProjectID: "alice-p", UserID: caller,
		})
		assert.ErrorIs(t, err, ErrNotFound, caller)
	}
	assert.Empty(t, f.projects.statuses("alice-p"))
	p := f.projects.get("alice-p")
	assert.Equal(t, models.ProjectStatusCompleted, p.Status)
	assert.Equal(t, "https://alice/original.mp4", p.Payload["videoUrl"])
	assert.Zero(t, f.llm.calls)
	assert.Empty(t, f.videos.lastPrompt)

	res, err := f.studio.PromptVideo(ctx, PromptVideoRequest{
		Prompt: "x", Style: "y", Music: "z", ProjectID: "alice-p", UserID: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://other/x.mp4", res.VideoURL)
}

func TestExplainerFailedPrediction(t *testing.T) {
	f := newStudioFixture()
	f.videos.steps["render-1"] = []pollStep{stepFailed("model crashed")}

	_, err := f.studio.ExplainerVideo(context.Background(), ExplainerRequest{
		Script: "How solar panels work", AnimationStyle: "whiteboard", VoiceoverStyle: "calm", ProjectID: "p1",
	})
	var ai *UpstreamAIError
	require.True(t, errors.As(err, &ai))
	assert.Contains(t, err.Error(), "model crashed")

	p := f.projects.get("p1")
	assert.Equal(t, models.ProjectStatusError, p.Status)
	assert.Contains(t, p.Error, "model crashed")
}

func TestRenderStopsOnBillingError(t *testing.T) {
	f := newStudioFixture()
	billing := newAIError(replicateProvider, http.StatusPaymentRequired, KindBilling, "")
	f.videos.steps["render-1"] = []pollStep{stepRunning(), {err: billing}}

	_, err := f.studio.PromptVideo(context.Background(), PromptVideoRequest{
		Prompt: "x", Style: "y", Music: "z", ProjectID: "p1",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusPaymentRequired, HTTPStatus(err))
	assert.Equal(t, "upstream_ai_error:billing", ErrorCode(err))
	assert.Contains(t, err.Error(), "billing error")
	assert.Equal(t, 2, f.videos.pollCount("render-1"))
	assert.Equal(t, models.ProjectStatusError, f.projects.get("p1").Status)
}

func TestRenderRetriesRateLimitAndServerErrors(t *testing.T) {
	f := newStudioFixture()
	f.videos.steps["render-1"] = []pollStep{
		{err: newAIError(replicateProvider, http.StatusTooManyRequests, KindRateLimited, "")},
		{err: newAIError(replicateProvider, http.StatusBadGateway, KindProvider, "")},
		stepDone("https://v/ok.mp4"),
	}

	res, err := f.studio.PromptVideo(context.Background(), PromptVideoRequest{
		Prompt: "x", Style: "y", Music: "z", ProjectID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://v/ok.mp4", res.VideoURL)
}

func TestExplainerTimeoutUsesLongerCeiling(t *testing.T) {
	f := newStudioFixture()

	_, err := f.studio.ExplainerVideo(context.Background(), ExplainerRequest{
		Script: "s", AnimationStyle: "flat", VoiceoverStyle: "calm", ProjectID: "p1",
	})
	var timeout *TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 12, timeout.Attempts)
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(err))
	assert.Equal(t, models.ProjectStatusError, f.projects.get("p1").Status)
}

func TestUGCVoiceoverIsBestEffort(t *testing.T) {
	f := newStudioFixture()
	f.tts.err = newAIError(elevenLabsProvider, 402, KindBilling, "")
	f.videos.steps["render-1"] = []pollStep{stepDone("https://v/ugc.mp4")}

	res, err := f.studio.UGCVideo(context.Background(), UGCRequest{
		CharacterType: "barista", Script: "Try our oat latte", VoiceStyle: "friendly", ProjectID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://v/ugc.mp4", res.VideoURL)
	assert.Empty(t, res.VoiceoverURL)
	assert.Equal(t, models.ProjectStatusCompleted, f.projects.get("p1").Status)
}

func TestRenderSucceededWithoutOutput(t *testing.T) {
	f := newStudioFixture()
	f.videos.steps["render-1"] = []pollStep{{status: JobStatus{Status: PredictionSucceeded}}}

	_, err := f.studio.PromptVideo(context.Background(), PromptVideoRequest{
		Prompt: "p", Style: "s", Music: "m", ProjectID: "p1",
	})
	var ai *UpstreamAIError
	require.True(t, errors.As(err, &ai))
	assert.Equal(t, KindMalformed, ai.Kind)
}

func TestCloneStyle(t *testing.T) {
	f := newStudioFixture()
	f.llm.content = `{"pacing":"fast cuts","tone":"playful","visualStyle":"flat 2D","colorPalette":"pastel","cameraWork":"static","summary":"Bright playful motion graphics."}`
	f.videos.steps["render-1"] = []pollStep{stepDone("https://v/clone.mp4")}

	res, err := f.studio.CloneStyle(context.Background(), CloneStyleRequest{
		SampleVideoURL: "https://example.com/ref.mp4", ContentText: "Announce our spring sale", ProjectID: "p1",
	})
	require.NoError(t, err)

	require.NotNil(t, res.StyleAnalysis)
	assert.Equal(t, "playful", res.StyleAnalysis.Tone)
	assert.Equal(t, "https://v/clone.mp4", res.VideoURL)
	assert.Contains(t, f.llm.lastUser, "https://example.com/ref.mp4")
	assert.Contains(t, f.videos.lastPrompt, "Bright playful motion graphics.")
}

func TestCloneStyleValidation(t *testing.T) {
	f := newStudioFixture()
	ctx := context.Background()

	_, err := f.studio.CloneStyle(ctx, CloneStyleRequest{SampleVideoURL: "not-a-url", ContentText: "x", ProjectID: "p1"})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	noLLM := NewStudio(f.projects, f.videos, nil, nil, testGeneration(), zerolog.Nop())
	_, err = noLLM.CloneStyle(ctx, CloneStyleRequest{SampleVideoURL: "https://a.b/c.mp4", ContentText: "x", ProjectID: "p1"})
	var cfg *ConfigError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "OPENAI_API_KEY", cfg.Key)
}

func TestDefaultRenderTimeout(t *testing.T) {
	assert.Equal(t, 14*time.Millisecond, DefaultRenderTimeout(testGeneration()))
}
