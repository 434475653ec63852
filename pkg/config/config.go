package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	Host        string
	Port        string
	SecretKey   string
	CORSOrigins []string
	LogLevel    string

	LLMProvider  string
	LLMModel     string
	OpenAIAPIKey string
	GeminiAPIKey string

	VideoRendererURL string
	RedisURL         string
	FFmpegPath       string
	WorkDir          string
	UploadDir        string
	CacheDir         string
	MediaBaseURL     string
	DevCachePrompt   string
	MaxSceneSeconds  int
	CostPerSecond    float64
}

// LoadConfig reads .env (if present) and the process environment.
// Invalid configuration is fatal, same as a missing secret.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}
	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// FromEnv builds a Config from a getenv-style lookup and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getenv("DATABASE_URL"),
		Host:             getenv("HOST"),
		Port:             getenv("PORT"),
		SecretKey:        getenv("SECRET_KEY"),
		LogLevel:         getenv("LOG_LEVEL"),
		LLMProvider:      strings.ToLower(getenv("LLM_PROVIDER")),
		LLMModel:         getenv("LLM_MODEL"),
		OpenAIAPIKey:     getenv("OPENAI_API_KEY"),
		GeminiAPIKey:     getenv("GEMINI_API_KEY"),
		VideoRendererURL: strings.TrimRight(getenv("VIDEO_RENDERER_URL"), "/"),
		RedisURL:         getenv("REDIS_URL"),
		FFmpegPath:       getenv("FFMPEG_PATH"),
		WorkDir:          getenv("WORK_DIR"),
		UploadDir:        getenv("UPLOAD_DIR"),
		CacheDir:         getenv("CACHE_DIR"),
		MediaBaseURL:     strings.TrimRight(getenv("MEDIA_BASE_URL"), "/"),
		DevCachePrompt:   getenv("DEV_CACHE_PROMPT"),
	}

	for _, origin := range strings.Split(getenv("CORS_ORIGINS"), ",") {
		if o := strings.TrimSpace(origin); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	var err error
	if cfg.MaxSceneSeconds, err = intOrDefault(getenv("MAX_SCENE_SECONDS"), 8); err != nil {
		return nil, fmt.Errorf("MAX_SCENE_SECONDS: %w", err)
	}
	if cfg.CostPerSecond, err = floatOrDefault(getenv("COST_PER_SECOND"), 0.05); err != nil {
		return nil, fmt.Errorf("COST_PER_SECOND: %w", err)
	}

	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "./work"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./cache"
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = "/media"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every deployment needs.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is not set"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is not set, this is critical for authentication"))
	}
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.VideoRendererURL == "" {
		errs = append(errs, errors.New("VIDEO_RENDERER_URL is not set"))
	}
	if c.MaxSceneSeconds <= 0 {
		errs = append(errs, errors.New("MAX_SCENE_SECONDS must be positive"))
	}
	return errors.Join(errs...)
}

func intOrDefault(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

func floatOrDefault(raw string, def float64) (float64, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}
