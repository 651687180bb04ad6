package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	JWTSecret      string   `mapstructure:"JWT_SECRET"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	DefaultTenant  string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	// Clearinghouse gateway for claim submission and referral transmission.
	GatewayBaseURL string `mapstructure:"GATEWAY_BASE_URL"`
	GatewayAPIKey  string `mapstructure:"GATEWAY_API_KEY"`

	// Notification delivery.
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`

	// Reporting cache TTL in seconds.
	ReportCacheTTL int `mapstructure:"REPORT_CACHE_TTL"`

	// Reminder window for upcoming-appointment notifications.
	ReminderWindowHours int `mapstructure:"REMINDER_WINDOW_HOURS"`
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
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REPORT_CACHE_TTL", 300)
	v.SetDefault("REMINDER_WINDOW_HOURS", 24)
	v.SetDefault("EMAIL_FROM", "noreply@practicehq.local")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE",
		"DEFAULT_TENANT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"GATEWAY_BASE_URL", "GATEWAY_API_KEY", "RESEND_API_KEY", "EMAIL_FROM",
		"REPORT_CACHE_TTL", "REMINDER_WINDOW_HOURS",
	} {
		v.BindEnv(key)
	}

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

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
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

// ReportTTL returns the reporting cache TTL as a duration.
func (c *Config) ReportTTL() time.Duration {
	if c.ReportCacheTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ReportCacheTTL) * time.Second
}

// ReminderWindow returns the lookahead window for appointment reminders.
func (c *Config) ReminderWindow() time.Duration {
	if c.ReminderWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.ReminderWindowHours) * time.Hour
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be configured so real authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV is not development; " +
			"refusing to start without authentication configuration")
	}
	if c.IsProduction() && c.GatewayBaseURL == "" {
		return fmt.Errorf("GATEWAY_BASE_URL is required in production")
	}
	return nil
}
