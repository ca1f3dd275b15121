package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	BackendFile = "file"
	BackendCRDB = "crdb"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	StoreBackend string
	DataFile     string
	CRDBDSN      string

	MongoURI  string
	MongoDB   string
	RedisAddr string
	RabbitURL string

	GeminiAPIKey      string
	GeminiModel       string
	CompletionTimeout time.Duration

	SessionTTL     time.Duration
	ChatRateLimit  int
	IdempotencyTTL time.Duration
	SlotLockTTL    time.Duration

	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		StoreBackend: getenv("STORE_BACKEND", BackendFile),
		DataFile:     getenv("DATA_FILE", "bookings.json"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getenv("MONGO_DB", "turf"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.CompletionTimeout, err = duration("COMPLETION_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = duration("SESSION_TTL", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SlotLockTTL, err = duration("SLOT_LOCK_TTL", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.ChatRateLimit = 30
	if v := os.Getenv("CHAT_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.Newf("CHAT_RATE_LIMIT must be a positive integer, got %q", v)
		}
		cfg.ChatRateLimit = n
	}

	switch cfg.StoreBackend {
	case BackendFile:
	case BackendCRDB:
		if cfg.CRDBDSN == "" {
			return nil, errors.New("CRDB_DSN is required when STORE_BACKEND=crdb")
		}
	default:
		return nil, errors.Newf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive", key)
	}
	return d, nil
}
