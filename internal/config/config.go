package config

import (
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" env-default:"development"`
	AppPort string `env:"APP_PORT" env-default:"8080"`

	DBHost     string `env:"DB_HOST" env-required:"true"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBPort     string `env:"DB_PORT" env-default:"5432"`
	DBSSLMode  string `env:"DB_SSLMODE" env-default:"disable"`

	MigrationsDir string `env:"MIGRATIONS_DIR" env-default:"./migrations"`

	// M-Pesa Daraja
	MpesaEnv            string        `env:"MPESA_ENV" env-default:"sandbox"`
	MpesaConsumerKey    string        `env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret string        `env:"MPESA_CONSUMER_SECRET"`
	MpesaShortcode      string        `env:"MPESA_SHORTCODE" env-default:"174379"`
	MpesaPasskey        string        `env:"MPESA_PASSKEY"`
	MpesaCallbackURL    string        `env:"MPESA_CALLBACK_URL"`
	MpesaCallbackToken  string        `env:"MPESA_CALLBACK_TOKEN"`
	MpesaAccountRef     string        `env:"MPESA_ACCOUNT_REFERENCE" env-default:"PlantStore"`
	MpesaTimeout        time.Duration `env:"MPESA_TIMEOUT" env-default:"15s"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	MailFrom     string `env:"MAIL_FROM" env-default:"Plant Store <orders@plantstore.co.ke>"`
	StoreName    string `env:"STORE_NAME" env-default:"Plant Store"`

	AdminEmail        string        `env:"ADMIN_EMAIL"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string        `env:"JWT_SECRET"`
	JWTTTL            time.Duration `env:"JWT_TTL" env-default:"24h"`
	AdminCookieName   string        `env:"ADMIN_COOKIE_NAME" env-default:"admin_token"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" env-default:"storefront.payments"`

	InternalSecretKey  string   `env:"INTERNAL_SECRET_KEY"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Environment variables not loaded properly: %v", err)
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MpesaBaseURL resolves the Daraja host for the configured environment.
func (c *Config) MpesaBaseURL() string {
	if c.MpesaEnv == "production" {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// MpesaCallbackEndpoint is the callback URL sent with each STK push. A
// configured MpesaCallbackToken is added as the token query parameter.
func (c *Config) MpesaCallbackEndpoint() string {
	if c.MpesaCallbackToken == "" || c.MpesaCallbackURL == "" {
		return c.MpesaCallbackURL
	}
	u, err := url.Parse(c.MpesaCallbackURL)
	if err != nil {
		return c.MpesaCallbackURL
	}
	q := u.Query()
	q.Set("token", c.MpesaCallbackToken)
	u.RawQuery = q.Encode()
	return u.String()
}
