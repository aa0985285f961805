package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"SceneForge-server/config"
	"SceneForge-server/logger"
	"SceneForge-server/models"
	"SceneForge-server/routers"
	"SceneForge-server/routers/api"
	"SceneForge-server/service"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig

	log := logger.New(logger.Options{
		AppEnv:     cfg.Server.AppEnv,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if cfg.Server.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := models.InitDB(cfg.MySQL.DSN); err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	log.Info().Msg("database initialized")
	projectRepo := models.NewProjectRepo(models.GormDB)
	batchRepo := models.NewBatchRepo(models.GormDB)

	// Providers stay nil when their key is missing; the routes that need them
	// answer with a configuration error instead.
	gen := cfg.Generation
	var llm service.Completer
	if cfg.AI.OpenAI.APIKey != "" {
		llm = service.NewOpenAICompleter(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model, nil)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, scene planning and extraction disabled")
	}
	var provider service.VideoProvider
	if cfg.AI.Replicate.APIToken != "" {
		provider = service.NewReplicateClient(cfg.AI.Replicate.BaseURL, cfg.AI.Replicate.APIToken, cfg.AI.Replicate.Version)
	} else {
		log.Warn().Msg("REPLICATE_API_TOKEN not set, video generation disabled")
	}
	var tts service.SpeechSynthesizer
	if cfg.AI.ElevenLabs.APIKey != "" {
		tts = service.NewElevenLabsClient(cfg.AI.ElevenLabs.BaseURL, cfg.AI.ElevenLabs.APIKey, cfg.AI.ElevenLabs.ModelID)
	} else {
		log.Warn().Msg("ELEVENLABS_API_KEY not set, voiceovers disabled")
	}
	var store service.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := service.InitMinIO(service.MinIOOptions{
			Endpoint:   cfg.MinIO.Endpoint,
			AccessKey:  cfg.MinIO.AccessKey,
			SecretKey:  cfg.MinIO.SecretKey,
			Bucket:     cfg.MinIO.Bucket,
			UseSSL:     cfg.MinIO.UseSSL,
			PresignTTL: cfg.MinIO.PresignTTL,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init failed")
		}
		store = minioStore
		log.Info().Str("bucket", cfg.MinIO.Bucket).Msg("MinIO initialized")
	}

	videos := service.NewVideoRequester(provider, gen.FPS, gen.MaxFrames)
	planner := service.NewPlanner(llm)
	voice := service.NewVoiceover(tts, store)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password}
	batchTimeout := time.Duration(gen.SceneMaxAttempts+10) * gen.ScenePollInterval
	if cfg.Storage.MirrorOutputs {
		batchTimeout += service.MirrorBudget
	}
	queue := service.InitQueue(redisOpt, batchTimeout, log)
	defer queue.Close()
	log.Info().Str("redis", cfg.Redis.Addr).Msg("queue initialized")

	orchestrator := service.NewOrchestrator(videos, gen.ScenePollInterval, gen.SceneMaxAttempts, gen.SubmitConcurrency, log)
	processor := service.NewProcessor(batchRepo, projectRepo, orchestrator, service.ProcessorOptions{
		MirrorOutputs: cfg.Storage.MirrorOutputs,
		Store:         store,
	}, log)
	worker := processor.StartProcessor(redisOpt, cfg.Worker.Concurrency)

	h := &api.Handler{
		Extractor:  service.NewExtractor(nil, llm, projectRepo, gen.ScrapeMaxChars, log),
		Planner:    planner,
		Videos:     videos,
		Generators: service.NewStudio(projectRepo, videos, voice, llm, gen, log),
		Voiceover:  voice,
		Projects:   service.NewProjectService(projectRepo, batchRepo, queue, planner, log),
		Canceller:  processor,
		Log:        log,
	}
	r := routers.InitRouter(h, cfg.Auth.JWTSecret, log)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      service.DefaultRenderTimeout(gen) + time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	worker.Shutdown()
}
