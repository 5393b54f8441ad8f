package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// Text generation
	LLMAPIKey   string `mapstructure:"LLM_API_KEY"`
	LLMModel    string `mapstructure:"LLM_MODEL"`
	LLMAttempts int    `mapstructure:"LLM_MAX_ATTEMPTS"`

	// Geocoding / places
	MapsAPIKey     string  `mapstructure:"MAPS_API_KEY"`
	ClinicRadiusKm float64 `mapstructure:"CLINIC_SEARCH_RADIUS_KM"`

	// Outbound email
	SMTPHost         string `mapstructure:"SMTP_HOST"`
	SMTPPort         int    `mapstructure:"SMTP_PORT"`
	SMTPFrom         string `mapstructure:"SMTP_FROM"`
	SMTPPassword     string `mapstructure:"SMTP_PASSWORD"`
	DoctorAlertEmail string `mapstructure:"DOCTOR_ALERT_EMAIL"`

	// Compliance auditing
	AuditCoverageBaseline int  `mapstructure:"AUDIT_COVERAGE_BASELINE"`
	RetentionPolicyDays   int  `mapstructure:"RETENTION_POLICY_DAYS"`
	ErasureSupported      bool `mapstructure:"ERASURE_SUPPORTED"`

	EmergencyNumber string `mapstructure:"EMERGENCY_NUMBER"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("LLM_MODEL", "gemini-1.5-flash")
	v.SetDefault("LLM_MAX_ATTEMPTS", 3)
	v.SetDefault("CLINIC_SEARCH_RADIUS_KM", 10)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("AUDIT_COVERAGE_BASELINE", 1000)
	v.SetDefault("RETENTION_POLICY_DAYS", 0)
	v.SetDefault("ERASURE_SUPPORTED", false)
	v.SetDefault("EMERGENCY_NUMBER", "911")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("LLM_API_KEY")
	v.BindEnv("LLM_MODEL")
	v.BindEnv("LLM_MAX_ATTEMPTS")
	v.BindEnv("MAPS_API_KEY")
	v.BindEnv("CLINIC_SEARCH_RADIUS_KM")
	v.BindEnv("SMTP_HOST")
	v.BindEnv("SMTP_PORT")
	v.BindEnv("SMTP_FROM")
	v.BindEnv("SMTP_PASSWORD")
	v.BindEnv("DOCTOR_ALERT_EMAIL")
	v.BindEnv("AUDIT_COVERAGE_BASELINE")
	v.BindEnv("RETENTION_POLICY_DAYS")
	v.BindEnv("ERASURE_SUPPORTED")
	v.BindEnv("EMERGENCY_NUMBER")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.LLMAPIKey == "" {
		log.Println("WARNING: LLM_API_KEY is not set; classifiers and agents will run on keyword fallbacks only.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Production requires
// a text-generation API key and a configured escalation recipient, since both
// the triage graph and the doctor-alert path depend on them.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required in production")
		}
		if c.DoctorAlertEmail == "" {
			return fmt.Errorf("DOCTOR_ALERT_EMAIL is required in production")
		}
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required in production")
		}
	}
	if c.LLMAttempts <= 0 {
		return fmt.Errorf("LLM_MAX_ATTEMPTS must be positive, got %d", c.LLMAttempts)
	}
	if c.AuditCoverageBaseline <= 0 {
		return fmt.Errorf("AUDIT_COVERAGE_BASELINE must be positive, got %d", c.AuditCoverageBaseline)
	}
	if c.RetentionPolicyDays < 0 {
		return fmt.Errorf("RETENTION_POLICY_DAYS must not be negative, got %d", c.RetentionPolicyDays)
	}
	return nil
}
