package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string

	StoreDriver   string
	DatabaseURL   string
	SQLitePath    string
	AutoMigrate   bool
	ShareBasePath string

	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	OpenAIOrg      string
	LLMCallTimeout time.Duration
	LLMMaxAttempts int
	LLMBackoff     time.Duration

	StreamKeepAlive  time.Duration
	OrphanPostPolicy string
	DocumentMaxBytes int64
	ExtractorURL     string
	PromptBookPath   string

	GeoIPDBPath      string
	DefaultLocale    string
	SupportedLocales []string
	LogFile          string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := ReadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig reads the environment without validating it. Callers that
// override fields afterwards must call Validate themselves.
func ReadConfig() *Config {
	return &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/plans.db"),
		AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", false),
		ShareBasePath: getEnv("SHARE_BASE_PATH", "/share"),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:      os.Getenv("OPENAI_ORG"),
		LLMCallTimeout: time.Second * time.Duration(getEnvInt("LLM_CALL_TIMEOUT_SECONDS", 120)),
		LLMMaxAttempts: getEnvInt("LLM_MAX_ATTEMPTS", 1),
		LLMBackoff:     time.Millisecond * time.Duration(getEnvInt("LLM_RETRY_BACKOFF_MS", 500)),

		StreamKeepAlive:  time.Second * time.Duration(getEnvInt("STREAM_KEEPALIVE_SECONDS", 15)),
		OrphanPostPolicy: strings.ToLower(getEnv("ORPHAN_POST_POLICY", "drop")),
		DocumentMaxBytes: int64(getEnvInt("DOCUMENT_MAX_BYTES", 10<<20)),
		ExtractorURL:     os.Getenv("EXTRACTOR_URL"),
		PromptBookPath:   os.Getenv("PROMPT_BOOK_PATH"),

		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:    strings.ToLower(getEnv("DEFAULT_LOCALE", "en")),
		SupportedLocales: getEnvList("SUPPORTED_LOCALES", []string{"en", "id"}),
		LogFile:          os.Getenv("LOG_FILE"),
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.LLMProvider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.OrphanPostPolicy {
	case "drop", "report", "reject":
	default:
		return fmt.Errorf("unknown ORPHAN_POST_POLICY %q", c.OrphanPostPolicy)
	}
	if c.LLMMaxAttempts < 1 {
		return errors.New("LLM_MAX_ATTEMPTS must be at least 1")
	}
	if c.StreamKeepAlive <= 0 {
		return errors.New("STREAM_KEEPALIVE_SECONDS must be positive")
	}
	if c.DocumentMaxBytes <= 0 {
		return errors.New("DOCUMENT_MAX_BYTES must be positive")
	}
	return nil
}

// generationStages is the number of model calls in one plan generation.
const generationStages = 3

// GenerationDeadline bounds the write deadline of a blocking generation
// response: every stage may use all attempts and backoffs, plus a margin
// for reconciliation and persistence. Zero means no bound.
func (c *Config) GenerationDeadline() time.Duration {
	if c.LLMCallTimeout <= 0 {
		return 0
	}
	attempts := max(c.LLMMaxAttempts, 1)
	perStage := time.Duration(attempts)*c.LLMCallTimeout + time.Duration(attempts-1)*c.LLMBackoff
	return generationStages*perStage + 30*time.Second
}

// LLMAPIKey returns the configured key for the selected provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
