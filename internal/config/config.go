// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database struct {
		Host       string `json:"host"`
		Port       string `json:"port"`
		User       string `json:"user"`
		Password   string `json:"password"`
		Name       string `json:"name"`
		SSLMode    string `json:"sslmode"`
		SearchPath string `json:"schema"`
		// URL takes precedence over the discrete fields when set.
		URL string `json:"url"`
	} `json:"database"`
	Supabase struct {
		JWTSecret string `json:"jwt_secret"`
		// RLSReads routes learner-facing reads through the pgx pool with
		// the caller's JWT claims applied, so row-level security decides
		// visibility.
		RLSReads bool `json:"rls_reads"`
	} `json:"supabase"`
	Stripe struct {
		SecretKey        string        `json:"secret_key"`
		WebhookSecret    string        `json:"webhook_secret"`
		WebhookTolerance time.Duration `json:"webhook_tolerance"`
		SuccessURL       string        `json:"success_url"`
		CancelURL        string        `json:"cancel_url"`
	} `json:"stripe"`
	Redis struct {
		Addr     string        `json:"addr"`
		Password string        `json:"password"`
		DB       int           `json:"db"`
		LockTTL  time.Duration `json:"lock_ttl"`
	} `json:"redis"`
	Cache struct {
		TTL         time.Duration `json:"ttl"`
		CleanupFreq time.Duration `json:"cleanup_freq"`
	} `json:"cache"`
	Server struct {
		Port         string        `json:"port"`
		ReadTimeout  time.Duration `json:"read_timeout"`
		WriteTimeout time.Duration `json:"write_timeout"`
	}
	Email struct {
		// Provider is sendgrid, smtp or log.
		Provider string `json:"provider"`
		FromName string `json:"from_name"`
		ReplyTo  string `json:"reply_to"`
	} `json:"email"`
	Sendgrid struct {
		APIKey string `json:"api_key"`
		From   string `json:"from"`
	} `json:"sendgrid"`
	SMTP      map[string]SMTPServer `json:"smtp"`
	Reconcile struct {
		Enabled   bool          `json:"enabled"`
		Interval  time.Duration `json:"interval"`
		StaleAge  time.Duration `json:"stale_age"`
		BatchSize int           `json:"batch_size"`
	} `json:"reconcile"`
	Invitations struct {
		TokenKey string        `json:"token_key"`
		TTL      time.Duration `json:"ttl"`
	} `json:"invitations"`
	Quiz struct {
		PassPercent int `json:"pass_percent"`
	} `json:"quiz"`
	BaseURL string `json:"base_url"`
}

type SMTPServer struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

func Load() *Config {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg := &Config{}

	// Database configuration
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnv("DB_PORT", "5432")
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "postgres")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.SearchPath = getEnv("DB_SCHEMA", "public")
	cfg.Database.URL = getEnv("DATABASE_URL", "")

	// Supabase
	cfg.Supabase.JWTSecret = getEnv("SUPABASE_JWT_SECRET", "your-super-secret-jwt-token-with-at-least-32-characters")
	cfg.Supabase.RLSReads = getEnvBool("SUPABASE_RLS_READS", true)

	// Stripe
	cfg.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", "")
	cfg.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", "")
	cfg.Stripe.WebhookTolerance = getEnvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
	cfg.Stripe.SuccessURL = getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	cfg.Stripe.CancelURL = getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/checkout/cancel")

	// Redis is optional; an empty address selects the in-process cache and lock.
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.LockTTL = getEnvDuration("REDIS_LOCK_TTL", 30*time.Second)

	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.CleanupFreq = getEnvDuration("CACHE_CLEANUP_FREQ", time.Minute)

	// Sendgrid configuration
	cfg.Sendgrid.APIKey = getEnv("SENDGRID_API_KEY", "")
	cfg.Sendgrid.From = getEnv("SENDGRID_FROM", "")

	cfg.Email.Provider = getEnv("EMAIL_PROVIDER", "log")
	cfg.Email.FromName = getEnv("EMAIL_FROM_NAME", "CourseHub")
	cfg.Email.ReplyTo = getEnv("EMAIL_REPLY_TO", "")

	if host := getEnv("SMTP_HOST", ""); host != "" {
		cfg.SMTP = map[string]SMTPServer{
			"default": {
				Host:     host,
				Port:     getEnvInt("SMTP_PORT", 587),
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
				From:     getEnv("SMTP_FROM", ""),
			},
		}
	}

	// Server configuration
	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.Server.ReadTimeout = time.Second * 15
	cfg.Server.WriteTimeout = time.Second * 15

	// Background reconciliation of stuck purchases
	cfg.Reconcile.Enabled = getEnvBool("RECONCILE_ENABLED", false)
	cfg.Reconcile.Interval = getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute)
	cfg.Reconcile.StaleAge = getEnvDuration("RECONCILE_STALE_AGE", 30*time.Minute)
	cfg.Reconcile.BatchSize = getEnvInt("RECONCILE_BATCH_SIZE", 100)

	cfg.Invitations.TokenKey = getEnv("INVITATION_TOKEN_KEY", "change-me-invitation-token-key")
	cfg.Invitations.TTL = getEnvDuration("INVITATION_TTL", 14*24*time.Hour)

	cfg.Quiz.PassPercent = getEnvInt("QUIZ_PASS_PERCENT", 70)

	cfg.BaseURL = getEnv("BASE_URL", "http://localhost:3000")

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
