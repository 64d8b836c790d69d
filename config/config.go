package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"log"
	"time"
)

type AppConfig struct {
	Env         string   `envconfig:"APP_ENV" default:"production"`
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:":8080"`
	DatabaseURL string   `envconfig:"DATABASE_URL" required:"true"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"2160h"`
	CookieSecure    bool          `envconfig:"COOKIE_SECURE" default:"true"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	SuccessURL          string `envconfig:"SUCCESS_URL" default:"http://localhost:3000"`
	CancelURL           string `envconfig:"CANCEL_URL" default:"http://localhost:3000"`
	Currency            string `envconfig:"PAYMENT_CURRENCY" default:"usd"`

	FreeBookingLimit      int           `envconfig:"FREE_BOOKING_LIMIT" default:"3"`
	FreeMentorActiveLimit int           `envconfig:"FREE_MENTOR_ACTIVE_LIMIT" default:"10"`
	FallbackHourlyRate    int           `envconfig:"FALLBACK_HOURLY_RATE" default:"200"`
	CheckoutAbandonAfter  time.Duration `envconfig:"CHECKOUT_ABANDON_AFTER" default:"25h"`
	ExpiringNoticeDays    int           `envconfig:"EXPIRING_NOTICE_DAYS" default:"3"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"marketplace.events"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"mentor-marketplace"`

	BotToken        string `envconfig:"BOT_TOKEN"`
	AdminTelegramID int64  `envconfig:"ADMIN_TELEGRAM_ID"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET"`

	BackupDir string `envconfig:"BACKUP_DIR" default:"backups"`
}

var AppCfg AppConfig

// LoadConfig reads .env (if any) and then the process environment into AppCfg.
func LoadConfig() error {
	err := godotenv.Load()
	if err != nil {
		log.Println(".env file not found, relying on environment variables")
	}
	return envconfig.Process("", &AppCfg)
}

func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}
