package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv        string `envconfig:"APP_ENV" default:"dev"`
	LogFile       string `envconfig:"LOG_FILE"`
	Port          int    `envconfig:"PORT" default:"8080"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`
	SiteURL       string `envconfig:"SITE_URL" default:"http://localhost:5000"`
	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	} `envconfig:""`

	Queue struct {
		Backend   string `envconfig:"QUEUE_BACKEND" default:"rabbitmq"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Name      string `envconfig:"PRICE_CHECK_QUEUE" default:"price_checks"`
	} `envconfig:""`

	Telegram struct {
		Token       string  `envconfig:"TELEGRAM_BOT_TOKEN"`
		SecretToken string  `envconfig:"TELEGRAM_SECRET_TOKEN"`
		WebhookURL  string  `envconfig:"TELEGRAM_WEBHOOK_URL"`
		SendRPS     float64 `envconfig:"TELEGRAM_SEND_RPS" default:"25"`
	} `envconfig:""`

	Mail struct {
		Server        string `envconfig:"MAIL_SERVER"`
		Port          int    `envconfig:"MAIL_PORT" default:"587"`
		Username      string `envconfig:"MAIL_USERNAME"`
		Password      string `envconfig:"MAIL_PASSWORD"`
		DefaultSender string `envconfig:"MAIL_DEFAULT_SENDER"`
	} `envconfig:""`

	Sources struct {
		RainforestAPIKey string `envconfig:"RAINFOREST_API_KEY"`
		ScraperAPIKey    string `envconfig:"SCRAPERAPI_KEY"`
		EbayAppID        string `envconfig:"EBAY_APP_ID"`
		EbayCertID       string `envconfig:"EBAY_CERT_ID"`
	} `envconfig:""`

	Browser struct {
		Concurrency int           `envconfig:"BROWSER_CONCURRENCY" default:"2"`
		NavTimeout  time.Duration `envconfig:"BROWSER_NAV_TIMEOUT" default:"60s"`
		ExecPath    string        `envconfig:"CHROME_PATH"`
	} `envconfig:""`

	Check struct {
		MaxAttempts int           `envconfig:"CHECK_MAX_ATTEMPTS" default:"3"`
		RetryDelay  time.Duration `envconfig:"CHECK_RETRY_DELAY" default:"5m"`
		LockTTL     time.Duration `envconfig:"CHECK_LOCK_TTL" default:"10m"`
		Workers     int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	} `envconfig:""`

	SchedulerCron string `envconfig:"SCHEDULER_CRON" default:"@hourly"`
}

// Load загружает конфиг из окружения. Файл .env, если он есть, читается первым
// и не перекрывает уже заданные переменные.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
