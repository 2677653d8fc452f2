package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB connection, etc.), security settings
// - default: Values common across all environments (timeouts, reward amounts, etc.), standard settings
// -----------------------------------------------------------------------------

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	CORS    CORSConfig
	Log     LogConfig
	JWT     JWTConfig
	Loyalty LoyaltyConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	DBName   string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
}

type RedisConfig struct {
	// When Addr is empty the in-process rate limiter is used instead.
	Addr     string `envconfig:"REDIS_ADDR" default:""`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,Authorization,Idempotency-Key"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

type JWTConfig struct {
	Secret   string        `envconfig:"JWT_SECRET" required:"true"`
	Duration time.Duration `envconfig:"JWT_DURATION" default:"24h"`
}

// LoyaltyConfig holds the tunables of the redemption and referral programs.
type LoyaltyConfig struct {
	// How long a claimed redemption stays valid at the point of sale.
	RedemptionTTL time.Duration `envconfig:"LOYALTY_REDEMPTION_TTL" default:"15m"`
	// Background reconciliation interval for expired-but-unrefunded redemptions.
	SweepInterval time.Duration `envconfig:"LOYALTY_SWEEP_INTERVAL" default:"1m"`

	ReferrerRewardPoints int64 `envconfig:"LOYALTY_REFERRER_REWARD" default:"100"`
	ReceiverRewardPoints int64 `envconfig:"LOYALTY_RECEIVER_REWARD" default:"25"`
	// A receiver holding at least this many points may no longer accept a referral.
	EligibilityCeiling int64 `envconfig:"LOYALTY_ELIGIBILITY_CEILING" default:"50"`

	ReferralRateLimit  int           `envconfig:"LOYALTY_REFERRAL_RATE_LIMIT" default:"5"`
	ReferralRateWindow time.Duration `envconfig:"LOYALTY_REFERRAL_RATE_WINDOW" default:"1m"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889", // Test port
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
		},
		Log: LogConfig{
			Level: "error", // Error level only for tests
		},
		JWT: JWTConfig{
			Secret:   "test-secret",
			Duration: time.Hour,
		},
		Loyalty: LoyaltyConfig{
			RedemptionTTL:        15 * time.Minute,
			SweepInterval:        time.Minute,
			ReferrerRewardPoints: 100,
			ReceiverRewardPoints: 25,
			EligibilityCeiling:   50,
			ReferralRateLimit:    5,
			ReferralRateWindow:   time.Minute,
		},
	}
}
