package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the training system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Training  TrainingConfig  `mapstructure:"training"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, local, etc.
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string   `mapstructure:"name"`
	APIName         string   `mapstructure:"api_name"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	Temperature     float64  `mapstructure:"temperature"`
	CostPer1K       float64  `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64  `mapstructure:"cost_per_1k_output"`
	Capabilities    []string `mapstructure:"capabilities"` // scenario, analysis, coaching, etc.
}

// LLMRoutingConfig defines which model to use for each training stage
type LLMRoutingConfig struct {
	Scenario   string `mapstructure:"scenario"`   // Scenario builder stage
	Mistakes   string `mapstructure:"mistakes"`   // Mistake illustrator stage
	Guidance   string `mapstructure:"guidance"`   // Best-practice coach stage
	Assessment string `mapstructure:"assessment"` // Assessment coach stage
	Fallback   string `mapstructure:"fallback"`   // Fallback model
}

// SearchConfig contains web search settings
type SearchConfig struct {
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	MaxResults   int           `mapstructure:"max_results"`
	GL           string        `mapstructure:"gl"`
	HL           string        `mapstructure:"hl"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TrainingConfig contains pipeline-level training settings
type TrainingConfig struct {
	MaxSearchesPerStage int    `mapstructure:"max_searches_per_stage"`
	KnowledgeDir        string `mapstructure:"knowledge_dir"`
	RetentionDays       int    `mapstructure:"retention_days"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Listen        string `mapstructure:"listen"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	PruneSchedule string `mapstructure:"prune_schedule"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("greencoach_config")
	viper.SetConfigType("json")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("GREENCOACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env cover the common case
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// General defaults
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")

	// LLM defaults
	viper.SetDefault("llm.providers.openai.type", "openai")
	viper.SetDefault("llm.providers.openai.timeout", "120s")
	viper.SetDefault("llm.providers.openai.models.gpt_4o.name", "gpt-4o")
	viper.SetDefault("llm.providers.openai.models.gpt_4o.api_name", "gpt-4o")
	viper.SetDefault("llm.providers.openai.models.gpt_4o.max_tokens", 4096)
	viper.SetDefault("llm.providers.openai.models.gpt_4o.temperature", 0.7)
	viper.SetDefault("llm.providers.openai.models.gpt_4o.cost_per_1k_input", 0.0025)
	viper.SetDefault("llm.providers.openai.models.gpt_4o.cost_per_1k_output", 0.01)
	viper.SetDefault("llm.providers.openai.models.gpt_4o.capabilities", []string{"scenario", "analysis", "coaching", "assessment"})
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.name", "gpt-4o-mini")
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.api_name", "gpt-4o-mini")
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.max_tokens", 4096)
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.temperature", 0.7)
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.cost_per_1k_input", 0.00015)
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.cost_per_1k_output", 0.0006)
	viper.SetDefault("llm.providers.openai.models.gpt_4o_mini.capabilities", []string{"scenario", "analysis"})
	viper.SetDefault("llm.routing.scenario", "gpt-4o")
	viper.SetDefault("llm.routing.mistakes", "gpt-4o")
	viper.SetDefault("llm.routing.guidance", "gpt-4o")
	viper.SetDefault("llm.routing.assessment", "gpt-4o")
	viper.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	// Search defaults
	viper.SetDefault("search.endpoint", "https://google.serper.dev/search")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.gl", "us")
	viper.SetDefault("search.hl", "en")
	viper.SetDefault("search.timeout", "10s")

	// Training defaults
	viper.SetDefault("training.max_searches_per_stage", 4)
	viper.SetDefault("training.knowledge_dir", "./knowledge")
	viper.SetDefault("training.retention_days", 90)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)

	// Storage defaults
	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.user", "")
	viper.SetDefault("storage.postgres.password", "")
	viper.SetDefault("storage.postgres.dbname", "")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	// Server defaults
	viper.SetDefault("server.listen", ":10002")
	viper.SetDefault("server.prune_schedule", "0 3 * * *")
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.api_key", apiKey)
	}
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		viper.Set("search.serper_api_key", apiKey)
	}

	// Postgres configuration
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}

	// Redis configuration
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}

	if secret := os.Getenv("GREENCOACH_JWT_SECRET"); secret != "" {
		viper.Set("server.jwt_secret", secret)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	// Validate that routing models exist in providers
	routingModels := []string{
		config.LLM.Routing.Scenario,
		config.LLM.Routing.Mistakes,
		config.LLM.Routing.Guidance,
		config.LLM.Routing.Assessment,
		config.LLM.Routing.Fallback,
	}

	for _, model := range routingModels {
		if model == "" {
			continue
		}
		// Providers resolve models by name, falling back to the map key;
		// match the same way here.
		found := false
		for _, provider := range config.LLM.Providers {
			for key, providerModel := range provider.Models {
				name := providerModel.Name
				if name == "" {
					name = key
				}
				if name == model {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return fmt.Errorf("routing model '%s' not found in any provider", model)
		}
	}

	if config.Training.MaxSearchesPerStage < 0 {
		return fmt.Errorf("training.max_searches_per_stage must be >= 0")
	}

	return nil
}
