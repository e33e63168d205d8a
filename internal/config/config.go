// Package config provides application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ashureev/abroad-advisor/internal/dispatch"
	"github.com/ashureev/abroad-advisor/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port            string                `env:"PORT" envDefault:"8080"`
	FrontendURL     string                `env:"FRONTEND_URL"`
	DBPath          string                `env:"DB_PATH" envDefault:"./data/advisor.db"`
	MaxMessageBytes int64                 `env:"MAX_MESSAGE_BYTES" envDefault:"65536"`
	Backend         BackendConfig         `envPrefix:"BACKEND_"`
	Budget          BudgetConfig          `envPrefix:"BUDGET_"`
	RateLimit       RateLimitConfig       `envPrefix:"RATE_LIMIT_"`
	ConversationLog ConversationLogConfig `envPrefix:"CONVERSATION_LOG_"`
}

// BackendConfig locates the gRPC backends. Addr serves every intent unless
// a per-intent address overrides it.
type BackendConfig struct {
	Addr                     string        `env:"ADDR" envDefault:"localhost:50051"`
	GeneralQAAddr            string        `env:"GENERAL_QA_ADDR"`
	SchoolRecommendationAddr string        `env:"SCHOOL_RECOMMENDATION_ADDR"`
	StudentInfoAddr          string        `env:"STUDENT_INFO_ADDR"`
	ConnectTimeout           time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// AddrFor returns the backend address serving intent.
func (b BackendConfig) AddrFor(intent domain.Intent) string {
	var override string
	switch intent {
	case domain.IntentGeneralQA:
		override = b.GeneralQAAddr
	case domain.IntentSchoolRecommendation:
		override = b.SchoolRecommendationAddr
	case domain.IntentStudentInfo:
		override = b.StudentInfoAddr
	}
	if override != "" {
		return override
	}
	return b.Addr
}

// BudgetConfig holds the per-intent execution budgets.
type BudgetConfig struct {
	GeneralQA            time.Duration `env:"GENERAL_QA" envDefault:"90s"`
	SchoolRecommendation time.Duration `env:"SCHOOL_RECOMMENDATION" envDefault:"300s"`
	StudentInfo          time.Duration `env:"STUDENT_INFO" envDefault:"120s"`
}

// Budgets returns the budget table keyed by intent.
func (b BudgetConfig) Budgets() dispatch.Budgets {
	return dispatch.Budgets{
		domain.IntentGeneralQA:            b.GeneralQA,
		domain.IntentSchoolRecommendation: b.SchoolRecommendation,
		domain.IntentStudentInfo:          b.StudentInfo,
	}
}

// RateLimitConfig bounds how many chat messages one user may send per window.
type RateLimitConfig struct {
	Requests int           `env:"REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `env:"ENABLED" envDefault:"true"`
	Dir           string `env:"DIR" envDefault:"./data/logs/conversations"`
	GlobalEnabled bool   `env:"GLOBAL_ENABLED" envDefault:"false"`
	GlobalPath    string `env:"GLOBAL_PATH" envDefault:"./data/logs/conversations/all.ndjson"`
	QueueSize     int    `env:"QUEUE_SIZE" envDefault:"1000"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFromMap reads configuration from environ instead of the process
// environment.
func LoadFromMap(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be > 0")
	}
	for _, intent := range domain.AllIntents() {
		if c.Backend.AddrFor(intent) == "" {
			return fmt.Errorf("no backend address for %s", intent)
		}
	}
	if c.Backend.ConnectTimeout <= 0 {
		return fmt.Errorf("BACKEND_CONNECT_TIMEOUT must be > 0")
	}
	if err := c.Budget.Budgets().Validate(); err != nil {
		return err
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the origins accepted by CORS and the chat socket.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
