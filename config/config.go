// Package config loads service configuration from config.json and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration. Values from config.json are
// overridden by environment variables.
type Config struct {
	Port           string   `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`

	// Video platform
	YouTubeAPIKey  string `json:"youtube_api_key"`
	TranscriptLang string `json:"transcript_lang"`

	// Chat / embedding provider (OpenAI compatible)
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	ChatModel      string `json:"chat_model"`
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim"`

	// Vector store: "memory", "milvus" or "pgvector"
	Store            string `json:"store"`
	MilvusAddr       string `json:"milvus_addr"`
	MilvusUsername   string `json:"milvus_username"`
	MilvusPassword   string `json:"milvus_password"`
	MilvusAPIKey     string `json:"milvus_api_key"`
	MilvusCollection string `json:"milvus_collection"`
	PostgresURL      string `json:"postgres_url"`

	// Key-value store for chat history
	RedisURL   string `json:"redis_url"`
	RedisToken string `json:"redis_token"`

	MetadataCacheTTL time.Duration `json:"-"`

	HistoryLimit    int           `json:"history_limit"`
	TopK            int           `json:"top_k"`
	ChunkWords      int           `json:"chunk_words"`
	UpstreamTimeout time.Duration `json:"-"`
	LogLevel        string        `json:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:             "8080",
		AllowedOrigins:   []string{"*"},
		TranscriptLang:   "en",
		ChatModel:        "gpt-3.5-turbo",
		EmbeddingModel:   "text-embedding-3-small",
		EmbeddingDim:     1536,
		Store:            "memory",
		MilvusAddr:       "localhost:19530",
		MilvusCollection: "video_context",
		HistoryLimit:     10,
		TopK:             4,
		ChunkWords:       200,
		UpstreamTimeout:  30 * time.Second,
		MetadataCacheTTL: 10 * time.Minute,
		LogLevel:         "info",
	}
}

// Load reads .env (if present), then config.json (if present), then applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	return LoadFile("config.json")
}

// LoadFile is Load without the .env step, reading the given JSON file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	c.YouTubeAPIKey = getEnv("YOUTUBE_API_KEY", c.YouTubeAPIKey)
	c.TranscriptLang = getEnv("TRANSCRIPT_LANG", c.TranscriptLang)
	c.APIKey = getEnv("API_KEY", c.APIKey)
	c.APIKey = getEnv("OPENAI_API_KEY", c.APIKey)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.ChatModel = getEnv("CHAT_MODEL", c.ChatModel)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingDim = getEnvInt("EMBEDDING_DIM", c.EmbeddingDim)
	c.Store = strings.ToLower(strings.TrimSpace(getEnv("STORE", c.Store)))
	c.MilvusAddr = getEnv("MILVUS_ADDR", c.MilvusAddr)
	c.MilvusUsername = getEnv("MILVUS_USERNAME", c.MilvusUsername)
	c.MilvusPassword = getEnv("MILVUS_PASSWORD", c.MilvusPassword)
	c.MilvusAPIKey = getEnv("MILVUS_API_KEY", c.MilvusAPIKey)
	c.MilvusCollection = getEnv("MILVUS_COLLECTION", c.MilvusCollection)
	c.PostgresURL = getEnv("POSTGRES_URL", c.PostgresURL)
	c.PostgresURL = getEnv("DATABASE_URL", c.PostgresURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RedisToken = getEnv("REDIS_TOKEN", c.RedisToken)
	c.HistoryLimit = getEnvInt("HISTORY_LIMIT", c.HistoryLimit)
	c.TopK = getEnvInt("TOP_K", c.TopK)
	c.ChunkWords = getEnvInt("CHUNK_WORDS", c.ChunkWords)
	c.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", c.UpstreamTimeout)
	c.MetadataCacheTTL = getEnvDuration("METADATA_CACHE_TTL", c.MetadataCacheTTL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks structural settings. Missing credentials are not errors:
// the affected service reports itself unavailable at request time.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Port) == "" {
		problems = append(problems, "PORT cannot be empty")
	}
	switch c.Store {
	case "memory", "milvus", "pgvector":
	default:
		problems = append(problems, fmt.Sprintf("STORE must be memory, milvus or pgvector, got %q", c.Store))
	}
	if c.EmbeddingDim <= 0 {
		problems = append(problems, "EMBEDDING_DIM must be > 0")
	}
	if c.TopK <= 0 {
		problems = append(problems, "TOP_K must be > 0")
	}
	if c.ChunkWords <= 0 {
		problems = append(problems, "CHUNK_WORDS must be > 0")
	}
	if c.HistoryLimit < 0 {
		problems = append(problems, "HISTORY_LIMIT cannot be negative")
	}
	if c.UpstreamTimeout <= 0 {
		problems = append(problems, "UPSTREAM_TIMEOUT must be > 0")
	}
	if c.MetadataCacheTTL < 0 {
		problems = append(problems, "METADATA_CACHE_TTL cannot be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// HasValidAPI reports whether the chat/embedding provider is configured.
func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// HasYouTubeAPI reports whether the metadata provider is configured.
func (c *Config) HasYouTubeAPI() bool {
	return strings.TrimSpace(c.YouTubeAPIKey) != ""
}

// HasRedis reports whether the key-value store is configured.
func (c *Config) HasRedis() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PrintConfigInstructions logs which credentials are missing.
func (c *Config) PrintConfigInstructions() {
	if !c.HasYouTubeAPI() {
		slog.Warn("YOUTUBE_API_KEY not set, video metadata lookups will fail")
	}
	if !c.HasValidAPI() {
		slog.Warn("OPENAI_API_KEY not set, summaries and chat will fail")
	}
	if !c.HasRedis() {
		slog.Info("REDIS_URL not set, chat history is kept in memory")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
