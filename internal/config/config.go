package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server       ServerConfig       `env:",prefix=SERVER_"`
	Postgres     PostgresConfig     `env:",prefix=POSTGRES_"`
	Redis        RedisConfig        `env:",prefix=REDIS_"`
	JWT          JWTConfig          `env:",prefix=JWT_"`
	OTP          OTPConfig          `env:",prefix=OTP_"`
	Registration RegistrationConfig `env:",prefix="`
	Reset        ResetConfig        `env:",prefix=RESET_"`
	SMTP         SMTPConfig         `env:",prefix=SMTP_"`
	Security     SecurityConfig     `env:",prefix="`
	CORS         CORSConfig         `env:",prefix=CORS_"`
	Janitor      JanitorConfig      `env:",prefix=JANITOR_"`
	Env          string             `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
	// TrustedProxies lists the proxy IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty trusts none, so the client IP is the socket peer.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

type PostgresConfig struct {
	Host          string `env:"HOST,default=localhost"`
	Port          string `env:"PORT,default=5432"`
	User          string `env:"USER,default=estate_auth"`
	Password      string `env:"PASSWORD,default=estate_auth_password"`
	DBName        string `env:"DB,default=estate_auth_db"`
	SSLMode       string `env:"SSLMODE,default=disable"`
	MigrateOnBoot bool   `env:"MIGRATE_ON_BOOT,default=true"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret              string   `env:"SECRET,required"`
	RefreshSecret       string   `env:"REFRESH_SECRET,required"`
	AccessTokenExpiry   Duration `env:"ACCESS_TOKEN_EXPIRY,default=15m"`
	RefreshTokenExpiry  Duration `env:"REFRESH_TOKEN_EXPIRY,default=7d"`
	RefreshLedgerExpiry Duration `env:"REFRESH_LEDGER_EXPIRY,default=7d"`
}

type OTPConfig struct {
	Length         int      `env:"LENGTH,default=6"`
	TTL            Duration `env:"TTL,default=10m"`
	ResendCooldown Duration `env:"RESEND_COOLDOWN,default=60s"`
	MaxAttempts    int      `env:"MAX_ATTEMPTS,default=5"`
	IssueLockTTL   Duration `env:"ISSUE_LOCK_TTL,default=5s"`
}

// RegistrationConfig gates who may register and who receives OTP codes.
type RegistrationConfig struct {
	AdminEmails        []string `env:"ADMIN_EMAILS"`
	AdminOnlyOTP       bool     `env:"ADMIN_ONLY_OTP,default=false"`
	AdminOTPRecipients []string `env:"ADMIN_OTP_RECIPIENTS"`
}

type ResetConfig struct {
	TokenTTL Duration `env:"TOKEN_TTL,default=1h"`
	URL      string   `env:"URL,default=http://localhost:3000/reset-password"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT,default=587"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM,default=no-reply@estate.local"`
	FromName string `env:"FROM_NAME,default=Estate Admin"`
	UseTLS   bool     `env:"USE_TLS,default=false"`
	Timeout  Duration `env:"TIMEOUT,default=10s"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	LockoutThreshold  int      `env:"LOCKOUT_THRESHOLD,default=5"`
	LockoutDuration   Duration `env:"LOCKOUT_DURATION,default=10m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

type JanitorConfig struct {
	Interval Duration `env:"INTERVAL,default=1h"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

// NotifyApprovers reports whether OTP codes go to the admin recipient list
// instead of the registrant.
func (r RegistrationConfig) NotifyApprovers() bool {
	return r.AdminOnlyOTP && len(r.AdminOTPRecipients) > 0
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return fmt.Errorf("JWT_REFRESH_SECRET must be at least 32 characters long")
	}
	if c.JWT.Secret == c.JWT.RefreshSecret {
		return fmt.Errorf("JWT_REFRESH_SECRET must differ from JWT_SECRET")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTP.Length)
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.Security.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive")
	}
	return nil
}
