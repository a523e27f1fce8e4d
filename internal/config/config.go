package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Without a database the service runs on in-memory stores.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL"`
	ChatModel      string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`

	Temperature       float32       `envconfig:"TEMPERATURE" default:"0.3"`
	MaxTokens         int           `envconfig:"MAX_TOKENS" default:"500"`
	HistoryTurns      int           `envconfig:"HISTORY_TURNS" default:"4"`
	RetrievalLimit    int           `envconfig:"RETRIEVAL_LIMIT" default:"5"`
	RetrievalTimeout  time.Duration `envconfig:"RETRIEVAL_TIMEOUT" default:"10s"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`

	ScopeTermsFile string `envconfig:"SCOPE_TERMS_FILE"`
	KnowledgeDir   string `envconfig:"KNOWLEDGE_DIR"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	AdminToken         string   `envconfig:"ADMIN_TOKEN"`

	S3Endpoint     string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string        `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string        `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket       string        `envconfig:"S3_BUCKET" default:"fhirchat-logs"`
	S3Region       string        `envconfig:"S3_REGION" default:"us-east-1"`
	ExportInterval time.Duration `envconfig:"EXPORT_INTERVAL" default:"1h"`

	SentryDSN     string `envconfig:"SENTRY_DSN"`
	SentryRelease string `envconfig:"SENTRY_RELEASE"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("FHIRCHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the chat pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("TEMPERATURE must be within [0, 2], got %v", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("HISTORY_TURNS must not be negative, got %d", c.HistoryTurns)
	}
	if c.RetrievalLimit <= 0 {
		return fmt.Errorf("RETRIEVAL_LIMIT must be positive, got %d", c.RetrievalLimit)
	}
	if c.RetrievalTimeout <= 0 || c.GenerationTimeout <= 0 {
		return fmt.Errorf("RETRIEVAL_TIMEOUT and GENERATION_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasAdmin() bool {
	return c.AdminToken != ""
}
