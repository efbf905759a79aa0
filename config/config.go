package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// LoadEnv reads a local .env file when present. Real environment variables win.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
}

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Session  SessionConfig
	Lending  LendingConfig
	Auth     AuthConfig
	WebAuthn WebAuthnConfig
	Supabase SupabaseConfig
	SMTP     SMTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Auth.AdminEmails = normalizeEmails(cfg.Auth.AdminEmails)
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"APP_ENV" default:"dev"`
	Port      string `envconfig:"PORT" default:"3001"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	WebOrigin string `envconfig:"WEB_ORIGIN" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool { return strings.EqualFold(a.Env, AppEnvDev) }

// SecureCookies reports whether session cookies must carry the Secure flag.
func (a AppConfig) SecureCookies() bool { return strings.HasPrefix(a.WebOrigin, "https://") }

type DBConfig struct {
	Driver   string `envconfig:"DB_DRIVER" default:"postgres"`
	DSN      string `envconfig:"DATABASE_URL"`
	Host     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME" default:"gamelend"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

// DSNString returns DATABASE_URL when set, otherwise a key/value DSN built from the parts.
func (d DBConfig) DSNString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type SessionConfig struct {
	// TTL is the inactivity timeout; every authenticated request extends it.
	TTL              time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	RotateAfter      time.Duration `envconfig:"SESSION_ROTATE_AFTER" default:"30m"`
	CeremonyTTL      time.Duration `envconfig:"WEBAUTHN_SESSION_TTL" default:"10m"`
	LastSeenThrottle time.Duration `envconfig:"LAST_SEEN_THROTTLE" default:"5m"`
}

type LendingConfig struct {
	OverdueDays int `envconfig:"OVERDUE_DAYS" default:"14"`
	FeePerDay   int `envconfig:"FEE_PER_DAY" default:"2"`
	MaxFee      int `envconfig:"MAX_FEE" default:"50"`
}

type AuthConfig struct {
	AdminEmails []string      `envconfig:"ADMIN_EMAILS"`
	LoginLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`
	LoginWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`

	BootstrapUsername string `envconfig:"BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS.
func (a AuthConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, admin := range a.AdminEmails {
		if email == admin {
			return true
		}
	}
	return false
}

type WebAuthnConfig struct {
	RPID          string   `envconfig:"RP_ID" default:"localhost"`
	RPDisplayName string   `envconfig:"RP_DISPLAY_NAME" default:"GameLend Passkeys"`
	RPOrigins     []string `envconfig:"RP_ORIGINS" default:"http://localhost:5173"`
}

type SupabaseConfig struct {
	URL       string `envconfig:"SUPABASE_URL"`
	AnonKey   string `envconfig:"SUPABASE_ANON_KEY"`
	JWTSecret string `envconfig:"SUPABASE_JWT_SECRET"`
}

func (s SupabaseConfig) Enabled() bool { return s.URL != "" || s.JWTSecret != "" }

type SMTPConfig struct {
	Host     string        `envconfig:"SMTP_HOST"`
	Port     string        `envconfig:"SMTP_PORT" default:"587"`
	Username string        `envconfig:"SMTP_USERNAME"`
	Password string        `envconfig:"SMTP_PASSWORD"`
	From     string        `envconfig:"SMTP_FROM"`
	AppName  string        `envconfig:"APP_NAME" default:"GameLend"`
	// Timeout bounds how long a reminder waits on the relay.
	Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s"`
}

func normalizeEmails(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.ToLower(strings.TrimSpace(s)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
