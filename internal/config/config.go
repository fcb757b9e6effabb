package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bobarin/imagetiming/internal/allocator"
	"github.com/bobarin/imagetiming/internal/matcher"
	"github.com/bobarin/imagetiming/internal/pipeline"
	"github.com/bobarin/imagetiming/internal/timeline"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"

	CacheFile   = "file"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Timing holds the allocation settings shared by the server and the CLI.
type Timing struct {
	MinClipDuration float64
	MaxClipDuration float64
	GapThreshold    float64

	ExactMatchWeight    float64
	PartialMatchWeight  float64
	SameSectionWeight   float64
	KeywordLengthWeight float64

	AllocationTimeout     time.Duration
	AllocationMaxAttempts int
	SectionConcurrency    int

	CacheBackend string // file, redis or memory
	RedisURL     string

	// External assistant used by the semantic strategy
	AllocationProvider string // openai, gemini or none
	OpenAIKey          string
	OpenAIModel        string
	GeminiKey          string
	GeminiModel        string

	LogLevel  string
	LogFormat string
}

type Config struct {
	Timing

	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // empty = no auth, dev mode
	CorsAllowedOrigins string // comma-separated, empty = *

	DatabaseURL string

	// CachePath is the allocation cache file when CACHE_BACKEND=file
	CachePath string

	// Supabase storage for timeline documents (optional)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Worker
	MaxConcurrentJobs int
}

// Load reads the server configuration from the environment and .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Timing:                loadTiming(CacheRedis),
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		CachePath:             getEnv("CACHE_PATH", "llm_allocation_cache.json"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "image-timelines"),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTiming reads only the allocation settings, for command-line use.
func LoadTiming() (*Timing, error) {
	_ = godotenv.Load()

	t := loadTiming(CacheFile)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func loadTiming(defaultCache string) Timing {
	return Timing{
		MinClipDuration:       getEnvFloat("MIN_CLIP_DURATION", timeline.DefaultMinDuration),
		MaxClipDuration:       getEnvFloat("MAX_CLIP_DURATION", timeline.DefaultMaxDuration),
		GapThreshold:          getEnvFloat("GAP_THRESHOLD", 2.0),
		ExactMatchWeight:      getEnvFloat("EXACT_MATCH_WEIGHT", 10),
		PartialMatchWeight:    getEnvFloat("PARTIAL_MATCH_WEIGHT", 5),
		SameSectionWeight:     getEnvFloat("SAME_SECTION_WEIGHT", 3),
		KeywordLengthWeight:   getEnvFloat("KEYWORD_LENGTH_WEIGHT", 1),
		AllocationTimeout:     time.Duration(getEnvInt("ALLOCATION_TIMEOUT_SECONDS", 60)) * time.Second,
		AllocationMaxAttempts: getEnvInt("ALLOCATION_MAX_ATTEMPTS", 3),
		SectionConcurrency:    getEnvInt("SECTION_CONCURRENCY", 4),
		CacheBackend:          strings.ToLower(getEnv("CACHE_BACKEND", defaultCache)),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		AllocationProvider:    strings.ToLower(getEnv("ALLOCATION_PROVIDER", ProviderOpenAI)),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
	}
}

// Validate checks the timing limits and enumerated settings. Provider keys
// are checked separately by ProviderKey since the CLI only needs them for
// the semantic strategy.
func (t Timing) Validate() error {
	if err := t.Limits().Validate(); err != nil {
		return err
	}
	if t.GapThreshold < 0 {
		return fmt.Errorf("GAP_THRESHOLD must not be negative, got %v", t.GapThreshold)
	}
	if t.AllocationTimeout <= 0 {
		return fmt.Errorf("ALLOCATION_TIMEOUT_SECONDS must be positive")
	}
	if t.AllocationMaxAttempts < 1 {
		return fmt.Errorf("ALLOCATION_MAX_ATTEMPTS must be at least 1, got %d", t.AllocationMaxAttempts)
	}
	if t.SectionConcurrency < 1 {
		return fmt.Errorf("SECTION_CONCURRENCY must be at least 1, got %d", t.SectionConcurrency)
	}

	switch t.CacheBackend {
	case CacheFile, CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of file, redis, memory, got %q", t.CacheBackend)
	}

	switch t.AllocationProvider {
	case ProviderOpenAI, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("ALLOCATION_PROVIDER must be one of openai, gemini, none, got %q", t.AllocationProvider)
	}
	return nil
}

// ProviderKey returns the API key of the configured provider, or an error
// naming the missing variable.
func (t Timing) ProviderKey() (string, error) {
	switch t.AllocationProvider {
	case ProviderOpenAI:
		if t.OpenAIKey == "" {
			return "", fmt.Errorf("OPENAI_API_KEY is required for ALLOCATION_PROVIDER=openai")
		}
		return t.OpenAIKey, nil
	case ProviderGemini:
		if t.GeminiKey == "" {
			return "", fmt.Errorf("GEMINI_API_KEY is required for ALLOCATION_PROVIDER=gemini")
		}
		return t.GeminiKey, nil
	default:
		return "", nil
	}
}

func (t Timing) Limits() timeline.Limits {
	return timeline.Limits{Min: t.MinClipDuration, Max: t.MaxClipDuration}
}

func (t Timing) Weights() matcher.Weights {
	return matcher.Weights{
		Exact:         t.ExactMatchWeight,
		Partial:       t.PartialMatchWeight,
		SameSection:   t.SameSectionWeight,
		KeywordLength: t.KeywordLengthWeight,
	}
}

func (t Timing) SemanticOptions() allocator.SemanticOptions {
	return allocator.SemanticOptions{
		GapThreshold: t.GapThreshold,
		MinDuration:  t.MinClipDuration,
	}
}

func (t Timing) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Timeout = t.AllocationTimeout
	opts.MaxAttempts = t.AllocationMaxAttempts
	opts.Concurrency = t.SectionConcurrency
	return opts
}

// Validate checks the server requirements on top of the timing settings.
func (c *Config) Validate() error {
	if err := c.Timing.Validate(); err != nil {
		return err
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if _, err := c.ProviderKey(); err != nil {
		return err
	}

	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs)
	}
	return nil
}

// StorageEnabled reports whether timeline documents are uploaded.
func (c *Config) StorageEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
