package marketmaker

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/openclob/pointsbook/pkg/core"
)

// Config holds all configuration for the market maker service
type Config struct {
	// API connection settings
	APIBaseURL     string
	EngineName     string
	RequestTimeout time.Duration

	// Market settings
	MarketID  core.MarketID
	OutcomeID core.OutcomeID
	UserID    core.UserID

	// Probability oracle settings
	OracleURL   string
	HTTPTimeout time.Duration
	MaxRetries  int

	// Quoting parameters
	NumLevels       int
	HalfSpreadTicks int
	StepTicks       int
	OrderSize       uint64
	UpdateInterval  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("POINTSBOOK_API_URL", "http://localhost:8080")
	v.SetDefault("ENGINE_NAME", "main")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 5)
	v.SetDefault("MARKET_ID", 1)
	v.SetDefault("OUTCOME_ID", 0)
	v.SetDefault("USER_ID", 900)
	v.SetDefault("ORACLE_URL", "http://localhost:9090")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("NUM_LEVELS", 3)
	v.SetDefault("HALF_SPREAD_TICKS", 2)
	v.SetDefault("STEP_TICKS", 1)
	v.SetDefault("ORDER_SIZE", 100)
	v.SetDefault("UPDATE_INTERVAL_SECONDS", 10)

	// Allow environment variables
	v.AutomaticEnv()

	cfg := &Config{
		APIBaseURL:      v.GetString("POINTSBOOK_API_URL"),
		EngineName:      v.GetString("ENGINE_NAME"),
		RequestTimeout:  time.Duration(v.GetInt("REQUEST_TIMEOUT_SECONDS")) * time.Second,
		MarketID:        core.MarketID(v.GetUint32("MARKET_ID")),
		OutcomeID:       core.OutcomeID(v.GetUint16("OUTCOME_ID")),
		UserID:          core.UserID(v.GetUint64("USER_ID")),
		OracleURL:       v.GetString("ORACLE_URL"),
		HTTPTimeout:     time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:      v.GetInt("MAX_RETRIES"),
		NumLevels:       v.GetInt("NUM_LEVELS"),
		HalfSpreadTicks: v.GetInt("HALF_SPREAD_TICKS"),
		StepTicks:       v.GetInt("STEP_TICKS"),
		OrderSize:       v.GetUint64("ORDER_SIZE"),
		UpdateInterval:  time.Duration(v.GetInt("UPDATE_INTERVAL_SECONDS")) * time.Second,
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("POINTSBOOK_API_URL must not be empty")
	}
	if cfg.EngineName == "" {
		return fmt.Errorf("ENGINE_NAME must not be empty")
	}
	if cfg.MarketID == 0 {
		return fmt.Errorf("MARKET_ID must be positive")
	}
	if cfg.OracleURL == "" {
		return fmt.Errorf("ORACLE_URL must not be empty")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("NUM_LEVELS must be positive")
	}
	if cfg.HalfSpreadTicks <= 0 {
		return fmt.Errorf("HALF_SPREAD_TICKS must be positive")
	}
	if cfg.StepTicks <= 0 {
		return fmt.Errorf("STEP_TICKS must be positive")
	}
	if cfg.OrderSize == 0 {
		return fmt.Errorf("ORDER_SIZE must be positive")
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_SECONDS must be positive")
	}
	return nil
}
