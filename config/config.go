package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Env string

const (
	Dev        Env = "development"
	Test       Env = "test"
	Preview    Env = "preview"
	Production Env = "production"
)

type Config struct {
	AppName string
	AppEnv  string
	ENV     Env
	AppPort int

	LogLevel string

	// CORSAllowedOrigins lists browser origins allowed to call the HTTP API.
	// Empty disables CORS outside development.
	CORSAllowedOrigins []string

	Douyin   DouyinConfig
	Cache    CacheConfig
	Pipeline PipelineConfig
	Segment  SegmentConfig
	Export   ExportConfig

	// Run ledger (optional; enabled when LEDGER_DSN is set, or DB_HOST + DB_NAME for postgres).
	Ledger LedgerConfig

	// Postgres (optional; enabled only when DBHost + DBName are set).
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int
	DBName     string

	// Redis (optional; enabled only when RedisHost is set).
	RedisUser     string
	RedisPassword string
	RedisHost     string
	RedisPort     int
	RedisScheme   string

	RabbitMQ RabbitMQConfig
}

type DouyinConfig struct {
	// Cookies is the raw Cookie header sent on every Douyin request (DY_COOKIES).
	Cookies     string
	UserAgent   string
	Referer     string
	HTTPTimeout time.Duration
}

type CacheConfig struct {
	Dir    string
	TTL    time.Duration
	Prefix string
}

type PipelineConfig struct {
	OutputDir          string
	FetchRetries       int
	FetchConcurrency   int
	ProcessConcurrency int
}

type SegmentConfig struct {
	Iterations    int
	Margin        float64
	WorkSize      int
	Dilate        int
	Feather       float64
	MinForeground float64
}

type ExportConfig struct {
	UpscaleFactor float64
	MaxLongEdge   int
	Format        string
}

type LedgerConfig struct {
	DSN       string
	AuthToken string
}

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	Queue           string
	RoutingKey      string
	Prefetch        int
	DeclareTopology bool
}

func NewViper() *viper.Viper {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "douyin-image-miner")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	v.SetDefault("DY_REFERER", "https://www.douyin.com/")
	v.SetDefault("HTTP_TIMEOUT", "15s")

	v.SetDefault("CACHE_TTL", "168h")
	v.SetDefault("CACHE_PREFIX", "dyimg")

	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("FETCH_RETRIES", 2)
	v.SetDefault("FETCH_CONCURRENCY", 4)
	v.SetDefault("PROCESS_CONCURRENCY", 0)

	v.SetDefault("SEGMENT_ITERATIONS", 5)
	v.SetDefault("SEGMENT_MARGIN", 0.0)
	v.SetDefault("SEGMENT_WORK_SIZE", 512)
	v.SetDefault("SEGMENT_DILATE", 1)
	v.SetDefault("SEGMENT_FEATHER", 0.0)
	v.SetDefault("SEGMENT_MIN_FOREGROUND", 0.0)

	v.SetDefault("UPSCALE_FACTOR", 2.0)
	v.SetDefault("MAX_LONG_EDGE", 2048)
	v.SetDefault("OUTPUT_FORMAT", "png")

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_SCHEME", "redis")

	v.SetDefault("RABBITMQ_EXCHANGE", "events")
	v.SetDefault("RABBITMQ_QUEUE", "douyin.product.requested.v1")
	v.SetDefault("RABBITMQ_ROUTING_KEY", "douyin.product.requested.v1")
	v.SetDefault("RABBITMQ_PREFETCH", 1)
	v.SetDefault("RABBITMQ_DECLARE_TOPOLOGY", true)

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName: v.GetString("APP_NAME"),
		AppEnv:  v.GetString("APP_ENV"),
		AppPort: v.GetInt("APP_PORT"),

		LogLevel: v.GetString("LOG_LEVEL"),

		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),

		Douyin: DouyinConfig{
			Cookies:     strings.TrimSpace(v.GetString("DY_COOKIES")),
			UserAgent:   v.GetString("USER_AGENT"),
			Referer:     v.GetString("DY_REFERER"),
			HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),
		},
		Cache: CacheConfig{
			Dir:    strings.TrimSpace(v.GetString("CACHE_DIR")),
			TTL:    v.GetDuration("CACHE_TTL"),
			Prefix: v.GetString("CACHE_PREFIX"),
		},
		Pipeline: PipelineConfig{
			OutputDir:          v.GetString("OUTPUT_DIR"),
			FetchRetries:       v.GetInt("FETCH_RETRIES"),
			FetchConcurrency:   v.GetInt("FETCH_CONCURRENCY"),
			ProcessConcurrency: v.GetInt("PROCESS_CONCURRENCY"),
		},
		Segment: SegmentConfig{
			Iterations:    v.GetInt("SEGMENT_ITERATIONS"),
			Margin:        v.GetFloat64("SEGMENT_MARGIN"),
			WorkSize:      v.GetInt("SEGMENT_WORK_SIZE"),
			Dilate:        v.GetInt("SEGMENT_DILATE"),
			Feather:       v.GetFloat64("SEGMENT_FEATHER"),
			MinForeground: v.GetFloat64("SEGMENT_MIN_FOREGROUND"),
		},
		Export: ExportConfig{
			UpscaleFactor: v.GetFloat64("UPSCALE_FACTOR"),
			MaxLongEdge:   v.GetInt("MAX_LONG_EDGE"),
			Format:        strings.ToLower(strings.TrimSpace(v.GetString("OUTPUT_FORMAT"))),
		},
		Ledger: LedgerConfig{
			DSN:       strings.TrimSpace(v.GetString("LEDGER_DSN")),
			AuthToken: v.GetString("LEDGER_AUTH_TOKEN"),
		},

		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetInt("DB_PORT"),
		DBName:     v.GetString("DB_NAME"),

		RedisUser:     v.GetString("REDIS_USER"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetInt("REDIS_PORT"),
		RedisScheme:   v.GetString("REDIS_SCHEME"),

		RabbitMQ: RabbitMQConfig{
			URL:             strings.TrimSpace(v.GetString("RABBITMQ_URL")),
			Exchange:        v.GetString("RABBITMQ_EXCHANGE"),
			Queue:           v.GetString("RABBITMQ_QUEUE"),
			RoutingKey:      v.GetString("RABBITMQ_ROUTING_KEY"),
			Prefetch:        v.GetInt("RABBITMQ_PREFETCH"),
			DeclareTopology: v.GetBool("RABBITMQ_DECLARE_TOPOLOGY"),
		},
	}
	cfg.ENV = envFromString(cfg.AppEnv)

	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return nil, fmt.Errorf("invalid APP_PORT %d", cfg.AppPort)
	}
	if cfg.DBPort <= 0 || cfg.DBPort > 65535 {
		return nil, fmt.Errorf("invalid DB_PORT %d", cfg.DBPort)
	}
	if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
		return nil, fmt.Errorf("invalid REDIS_PORT %d", cfg.RedisPort)
	}
	if cfg.Douyin.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT %s", cfg.Douyin.HTTPTimeout)
	}
	if cfg.Pipeline.FetchRetries < 0 {
		return nil, fmt.Errorf("invalid FETCH_RETRIES %d", cfg.Pipeline.FetchRetries)
	}
	if cfg.Segment.Iterations <= 0 {
		return nil, fmt.Errorf("invalid SEGMENT_ITERATIONS %d", cfg.Segment.Iterations)
	}
	if cfg.Segment.Margin < 0 || cfg.Segment.Margin >= 0.5 {
		return nil, fmt.Errorf("invalid SEGMENT_MARGIN %g (want 0 <= margin < 0.5)", cfg.Segment.Margin)
	}
	if cfg.Export.MaxLongEdge <= 0 {
		return nil, fmt.Errorf("invalid MAX_LONG_EDGE %d", cfg.Export.MaxLongEdge)
	}

	return cfg, nil
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envFromString(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "test":
		return Test
	case "preview":
		return Preview
	case "production", "prod":
		return Production
	default:
		return Dev
	}
}
