package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"jakob-blog/pkg/utilities"
)

// Config: настройки приложения из окружения
type Config struct {
	AppName    string `validate:"required"`
	Debug      bool
	SecretKey  string `validate:"required,min=16"`
	BaseURL    string `validate:"required,url"`
	ListenAddr string `validate:"required"`
	// Адреса прокси, которым можно верить в X-Forwarded-For. Пусто: клиент определяется по соединению.
	TrustedProxies []string `validate:"dive,ip|cidr"`

	DBUser string `validate:"required"`
	DBPass string
	DBHost string `validate:"required"`
	DBPort string `validate:"required,numeric"`
	DBName string `validate:"required"`

	RedisURL string

	TelegramBotToken      string `validate:"required"`
	TelegramWebhookSecret string
	AdminIDs              []int64

	OpenAIAPIKey string
	OpenAIModel  string `validate:"required"`

	UploadDir    string `validate:"required"`
	StaticDir    string `validate:"required"`
	MaxImageSize int64  `validate:"gt=0"`
	MaxAudioSize int64  `validate:"gt=0"`
	MaxVideoSize int64  `validate:"gt=0"`

	SessionExpire   time.Duration `validate:"gt=0"`
	AuthCodeExpire  time.Duration `validate:"gt=0"`
	ConversationTTL time.Duration `validate:"gt=0"`

	NotifyOnPublish bool
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию через произвольный getenv
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		AppName:    e.str("APP_NAME", "Мир Якоба"),
		Debug:      e.boolean("DEBUG", false),
		SecretKey:  e.str("SECRET_KEY", ""),
		BaseURL:    strings.TrimRight(e.str("BASE_URL", "http://localhost:8000"), "/"),
		ListenAddr: e.str("LISTEN_ADDR", ":8000"),

		TrustedProxies: utilities.SplitList(e.str("TRUSTED_PROXIES", "")),

		DBUser: e.str("DB_USER", ""),
		DBPass: e.str("DB_PASS", ""),
		DBHost: e.str("DB_HOST", "localhost"),
		DBPort: e.str("DB_PORT", "3306"),
		DBName: e.str("DB_NAME", ""),

		RedisURL: e.str("REDIS_URL", ""),

		TelegramBotToken:      e.str("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret: e.str("TELEGRAM_WEBHOOK_SECRET", ""),
		AdminIDs:              utilities.ParseIDList(e.str("ADMIN_IDS", "")),

		OpenAIAPIKey: e.str("OPENAI_API_KEY", ""),
		OpenAIModel:  e.str("OPENAI_MODEL", "gpt-4o-mini"),

		UploadDir:    e.str("UPLOAD_DIR", "./uploads"),
		StaticDir:    e.str("STATIC_DIR", "./static"),
		MaxImageSize: e.int64("MAX_IMAGE_SIZE", 10<<20),
		MaxAudioSize: e.int64("MAX_AUDIO_SIZE", 50<<20),
		MaxVideoSize: e.int64("MAX_VIDEO_SIZE", 100<<20),

		SessionExpire:   time.Duration(e.int64("SESSION_EXPIRE_DAYS", 30)) * 24 * time.Hour,
		AuthCodeExpire:  time.Duration(e.int64("AUTH_CODE_EXPIRE_MINUTES", 5)) * time.Minute,
		ConversationTTL: e.duration("CONVERSATION_TTL", time.Hour),

		NotifyOnPublish: e.boolean("NOTIFY_ON_PUBLISH", true),
	}

	if e.err != nil {
		return nil, e.err
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid config: field %s failed %q check", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DSN строит строку подключения к MySQL
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&timeout=5s&charset=utf8mb4&loc=UTC&clientFoundRows=true",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName)
}

// IsAdminID проверяет, входит ли Telegram ID в ADMIN_IDS
func (c *Config) IsAdminID(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// WebhookPath: путь, на который Telegram шлёт обновления
func (c *Config) WebhookPath() string {
	secret := c.TelegramWebhookSecret
	if secret == "" {
		secret = "updates"
	}
	return "/webhook/telegram/" + secret
}

type env struct {
	getenv func(string) string
	err    error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *env) int64(key string, def int64) int64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid value for %s: %w", key, err)
	}
}
