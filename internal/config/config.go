package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

type Config struct {
	Server struct {
		Port        int           `yaml:"port"`
		CORSOrigins []string      `yaml:"corsOrigins"`
		ReadTimeout time.Duration `yaml:"readTimeout"`
		// EmbedWorker runs the analysis worker inside the API process.
		EmbedWorker bool `yaml:"embedWorker"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | sqlite
		DSN      string `yaml:"dsn"`    // overrides the host fields when set
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Path     string `yaml:"path"` // sqlite file
		// AutoMigrate creates missing tables at startup (dev).
		AutoMigrate bool `yaml:"autoMigrate"`
	} `yaml:"database"`

	Queue struct {
		Backend      string        `yaml:"backend"` // sql | memory
		Name         string        `yaml:"name"`
		MaxAttempts  int           `yaml:"maxAttempts"`
		BackoffBase  time.Duration `yaml:"backoffBase"`
		BackoffMax   time.Duration `yaml:"backoffMax"`
		Visibility   time.Duration `yaml:"visibility"`
		Concurrency  int           `yaml:"concurrency"`
		PollInterval time.Duration `yaml:"pollInterval"`
		JobTimeout   time.Duration `yaml:"jobTimeout"`
	} `yaml:"queue"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Cloudinary struct {
		CloudName string `yaml:"cloudName"`
		BaseURL   string `yaml:"baseURL"` // overrides the URL derived from cloudName
	} `yaml:"cloudinary"`

	Fetch struct {
		Timeout  time.Duration `yaml:"timeout"`
		MaxBytes int64         `yaml:"maxBytes"`
	} `yaml:"fetch"`

	Cache struct {
		Backend       string        `yaml:"backend"` // redis | memory | none
		RedisAddr     string        `yaml:"redisAddr"`
		RedisPassword string        `yaml:"redisPassword"`
		RedisDB       int           `yaml:"redisDB"`
		TTL           time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Inference struct {
		Local struct {
			ModelPath string `yaml:"modelPath"`
		} `yaml:"local"`
		Service struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"service"`
		External struct {
			Provider string        `yaml:"provider"` // huggingface | openai
			BaseURL  string        `yaml:"baseURL"`
			Model    string        `yaml:"model"`
			Token    string        `yaml:"token"`
			Timeout  time.Duration `yaml:"timeout"`
			RPS      float64       `yaml:"rps"`
			Burst    int           `yaml:"burst"`
		} `yaml:"external"`
	} `yaml:"inference"`

	Analysis struct {
		// MinOverrideConfidence gates category overrides; 0 disables the gate.
		MinOverrideConfidence float64 `yaml:"minOverrideConfidence"`
		// SaveReserve is the part of queue.jobTimeout kept back from
		// inference for loading, saving and notifying the report.
		SaveReserve time.Duration `yaml:"saveReserve"`
	} `yaml:"analysis"`

	Routing struct {
		Source string                   `yaml:"source"` // config | database
		Routes map[string]reports.Route `yaml:"routes"`
	} `yaml:"routing"`

	Notify struct {
		WebhookURL    string `yaml:"webhookURL"`
		WebhookSecret string `yaml:"webhookSecret"`
		// Hub serves the SSE stream; only useful with an embedded worker.
		Hub bool `yaml:"hub"`
	} `yaml:"notify"`

	Auth struct {
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"ratelimit"`
}

// Load baca .env, config.yaml (optional), lalu override dari environment.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.Defaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "civic.db"
	}
	q := &c.Queue
	if q.Backend == "" {
		q.Backend = "sql"
	}
	if q.Name == "" {
		q.Name = "image-analysis"
	}
	if q.MaxAttempts == 0 {
		q.MaxAttempts = 3
	}
	if q.BackoffBase == 0 {
		q.BackoffBase = 5 * time.Second
	}
	if q.BackoffMax == 0 {
		q.BackoffMax = 5 * time.Minute
	}
	if q.Visibility == 0 {
		q.Visibility = 3 * time.Minute
	}
	if q.Concurrency == 0 {
		q.Concurrency = 5
	}
	if q.PollInterval == 0 {
		q.PollInterval = time.Second
	}
	if q.JobTimeout == 0 {
		q.JobTimeout = 150 * time.Second
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 15 << 20
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "none"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
	if c.Inference.Service.Timeout == 0 {
		c.Inference.Service.Timeout = 30 * time.Second
	}
	ext := &c.Inference.External
	if ext.Provider == "" {
		ext.Provider = "huggingface"
	}
	if ext.Timeout == 0 {
		ext.Timeout = 60 * time.Second
	}
	if c.Analysis.SaveReserve == 0 {
		c.Analysis.SaveReserve = 10 * time.Second
	}
	if c.Routing.Source == "" {
		c.Routing.Source = "config"
	}
	if len(c.Routing.Routes) == 0 {
		c.Routing.Routes = reports.DefaultRoutes()
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	if v, err := strconv.Atoi(getenv("PORT")); err == nil && v > 0 {
		c.Server.Port = v
	}
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Database.Driver, "DB_DRIVER")
	set(&c.Database.DSN, "DB_DSN")
	set(&c.Cache.RedisAddr, "REDIS_ADDR")
	set(&c.Cache.RedisPassword, "REDIS_PASSWORD")
	if c.Cache.RedisAddr != "" && getenv("REDIS_ADDR") != "" {
		c.Cache.Backend = "redis"
	}
	set(&c.Inference.Local.ModelPath, "LOCAL_MODEL_PATH")
	set(&c.Inference.Service.URL, "MODEL_SERVICE_URL")
	set(&c.Inference.External.BaseURL, "HF_API_URL")
	set(&c.Inference.External.Model, "HF_MODEL")
	set(&c.Inference.External.Token, "HF_TOKEN")
	if v := strings.TrimSpace(getenv("OPENAI_API_KEY")); v != "" && c.Inference.External.Provider == "openai" {
		c.Inference.External.Token = v
	}
	set(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	set(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	set(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	set(&c.Minio.BucketName, "MINIO_BUCKET")
	set(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	set(&c.Notify.WebhookURL, "NOTIFY_WEBHOOK_URL")
	set(&c.Notify.WebhookSecret, "NOTIFY_WEBHOOK_SECRET")
	if v := getenv("API_KEYS"); v != "" {
		c.Auth.APIKeys = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Auth.APIKeys = append(c.Auth.APIKeys, k)
			}
		}
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want mysql, postgres or sqlite", c.Database.Driver))
	}
	switch c.Queue.Backend {
	case "sql", "memory":
	default:
		errs = append(errs, fmt.Errorf("queue.backend %q: want sql or memory", c.Queue.Backend))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("queue.maxAttempts must be at least 1"))
	}
	if c.Queue.Concurrency < 1 {
		errs = append(errs, errors.New("queue.concurrency must be at least 1"))
	}
	if c.Queue.BackoffBase < 0 || c.Queue.BackoffMax < c.Queue.BackoffBase {
		errs = append(errs, errors.New("queue.backoffMax must not be below queue.backoffBase"))
	}
	if c.Queue.JobTimeout >= c.Queue.Visibility {
		errs = append(errs, fmt.Errorf("queue.jobTimeout %s must be shorter than queue.visibility %s",
			c.Queue.JobTimeout, c.Queue.Visibility))
	}
	if need := c.JobBudget(); c.Queue.JobTimeout < need {
		errs = append(errs, fmt.Errorf("queue.jobTimeout %s is below fetch, service and external timeouts plus analysis.saveReserve (%s)",
			c.Queue.JobTimeout, need))
	}
	switch c.Cache.Backend {
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redisAddr required for redis cache"))
		}
	case "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want redis, memory or none", c.Cache.Backend))
	}
	switch c.Inference.External.Provider {
	case "huggingface", "openai":
	default:
		errs = append(errs, fmt.Errorf("inference.external.provider %q: want huggingface or openai", c.Inference.External.Provider))
	}
	if v := c.Analysis.MinOverrideConfidence; v < 0 || v > 1 {
		errs = append(errs, fmt.Errorf("analysis.minOverrideConfidence %v out of [0,1]", v))
	}
	switch c.Routing.Source {
	case "config", "database":
	default:
		errs = append(errs, fmt.Errorf("routing.source %q: want config or database", c.Routing.Source))
	}
	if c.Fetch.MaxBytes < 0 {
		errs = append(errs, errors.New("fetch.maxBytes must not be negative"))
	}
	return errors.Join(errs...)
}

// JobBudget is the shortest job timeout that lets every step of one job
// run to its own timeout.
func (c *Config) JobBudget() time.Duration {
	return c.Fetch.Timeout + c.Inference.Service.Timeout + c.Inference.External.Timeout + c.Analysis.SaveReserve
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name)
}

// MinioEnabled reports whether object-store references can be fetched.
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != "" && c.Minio.BucketName != ""
}
