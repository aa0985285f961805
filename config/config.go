package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port   string `yaml:"port" env:"SERVER_PORT"`
		AppEnv string `yaml:"app_env" env:"APP_ENV"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn" env:"MYSQL_DSN"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint   string        `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey  string        `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey  string        `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket     string        `yaml:"bucket" env:"MINIO_BUCKET"`
		UseSSL     bool          `yaml:"use_ssl" env:"MINIO_USE_SSL"`
		PresignTTL time.Duration `yaml:"presign_ttl" env:"MINIO_PRESIGN_TTL"`
	} `yaml:"minio"`
	AI struct {
		OpenAI struct {
			APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
			BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
			Model   string `yaml:"model" env:"OPENAI_MODEL"`
		} `yaml:"openai"`
		Replicate struct {
			APIToken string `yaml:"api_token" env:"REPLICATE_API_TOKEN"`
			BaseURL  string `yaml:"base_url" env:"REPLICATE_BASE_URL"`
			Version  string `yaml:"version" env:"REPLICATE_MODEL_VERSION"`
		} `yaml:"replicate"`
		ElevenLabs struct {
			APIKey  string `yaml:"api_key" env:"ELEVENLABS_API_KEY"`
			BaseURL string `yaml:"base_url" env:"ELEVENLABS_BASE_URL"`
			ModelID string `yaml:"model_id" env:"ELEVENLABS_MODEL_ID"`
		} `yaml:"elevenlabs"`
	} `yaml:"ai"`
	Generation Generation `yaml:"generation"`
	Storage    struct {
		MirrorOutputs bool `yaml:"mirror_outputs" env:"STORAGE_MIRROR_OUTPUTS"`
	} `yaml:"storage"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	} `yaml:"auth"`
	Log struct {
		Level      string `yaml:"level" env:"LOG_LEVEL"`
		File       string `yaml:"file" env:"LOG_FILE"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Worker struct {
		Concurrency int `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	} `yaml:"worker"`
}

// Generation holds the polling and rendering knobs shared by the batch
// orchestrator and the blocking generators.
type Generation struct {
	ScenePollInterval    time.Duration `yaml:"scene_poll_interval"`
	SceneMaxAttempts     int           `yaml:"scene_max_attempts"`
	RenderPollInterval   time.Duration `yaml:"render_poll_interval"`
	RenderMaxAttempts    int           `yaml:"render_max_attempts"`
	ExplainerMaxAttempts int           `yaml:"explainer_max_attempts"`
	FPS                  int           `yaml:"fps"`
	MaxFrames            int           `yaml:"max_frames"`
	ScrapeMaxChars       int           `yaml:"scrape_max_chars"`
	SubmitConcurrency    int           `yaml:"submit_concurrency"`
}

var AppConfig *Config

func InitConfig() {
	_ = godotenv.Load()
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	AppConfig = cfg
}

// Load reads the yaml file at path (a missing file is tolerated), overlays
// environment variables and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.AppEnv == "" {
		c.Server.AppEnv = "development"
	}
	if c.MinIO.PresignTTL <= 0 {
		c.MinIO.PresignTTL = 72 * time.Hour
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = "sceneforge"
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if c.AI.Replicate.BaseURL == "" {
		c.AI.Replicate.BaseURL = "https://api.replicate.com/v1"
	}
	if c.AI.ElevenLabs.BaseURL == "" {
		c.AI.ElevenLabs.BaseURL = "https://api.elevenlabs.io/v1"
	}
	if c.AI.ElevenLabs.ModelID == "" {
		c.AI.ElevenLabs.ModelID = "eleven_multilingual_v2"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 5
	}
	c.Generation.applyDefaults()
}

func (g *Generation) applyDefaults() {
	if g.ScenePollInterval <= 0 {
		g.ScenePollInterval = 3 * time.Second
	}
	if g.SceneMaxAttempts <= 0 {
		g.SceneMaxAttempts = 100
	}
	if g.RenderPollInterval <= 0 {
		g.RenderPollInterval = 5 * time.Second
	}
	if g.RenderMaxAttempts <= 0 {
		g.RenderMaxAttempts = 60
	}
	if g.ExplainerMaxAttempts <= 0 {
		g.ExplainerMaxAttempts = 72
	}
	if g.FPS <= 0 {
		g.FPS = 8
	}
	if g.MaxFrames <= 0 {
		g.MaxFrames = 49
	}
	if g.ScrapeMaxChars <= 0 {
		g.ScrapeMaxChars = 8000
	}
	if g.SubmitConcurrency <= 0 {
		g.SubmitConcurrency = 8
	}
}
