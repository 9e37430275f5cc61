package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/civic-triage/internal/domain/reports"
)

func TestDefaults(t *testing.T) {
	var c Config
	c.Defaults()
	require.NoError(t, c.Validate())

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 3, c.Queue.MaxAttempts)
	assert.Equal(t, 5*time.Second, c.Queue.BackoffBase)
	assert.Equal(t, 3*time.Minute, c.Queue.Visibility)
	assert.Equal(t, 150*time.Second, c.Queue.JobTimeout)
	assert.Equal(t, 10*time.Second, c.Analysis.SaveReserve)
	assert.GreaterOrEqual(t, c.Queue.JobTimeout, c.JobBudget())
	assert.Equal(t, 5, c.Queue.Concurrency)
	assert.Equal(t, 20*time.Second, c.Fetch.Timeout)
	assert.Equal(t, 60*time.Second, c.Inference.External.Timeout)
	assert.Equal(t, time.Hour, c.Cache.TTL)
	assert.Equal(t, reports.DefaultRoutes(), c.Routing.Routes)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: sqlite
  path: /tmp/x.db
queue:
  maxAttempts: 5
  backoffBase: 2s
  visibility: 4m
  jobTimeout: 3m
inference:
  external:
    provider: openai
    model: gpt-4o-mini
routing:
  routes:
    Pothole: {department: Roads, priority: High}
`), 0o600))

	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("API_KEYS", "a, b,,c")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCAL_MODEL_PATH", "models/civic-centroids.yaml")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, 5, c.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, c.Queue.BackoffBase)
	assert.Equal(t, 4*time.Minute, c.Queue.Visibility)
	assert.Equal(t, "sk-1", c.Inference.External.Token)
	assert.Equal(t, []string{"a", "b", "c"}, c.Auth.APIKeys)
	assert.Equal(t, "redis", c.Cache.Backend)
	assert.Equal(t, "models/civic-centroids.yaml", c.Inference.Local.ModelPath)
	assert.Equal(t, map[string]reports.Route{"Pothole": {Department: "Roads", Priority: reports.PriorityHigh}}, c.Routing.Routes)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	c, err := Load("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "mysql", c.Database.Driver)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad driver":          func(c *Config) { c.Database.Driver = "oracle" },
		"bad queue backend":   func(c *Config) { c.Queue.Backend = "kafka" },
		"timeout over lease":  func(c *Config) { c.Queue.JobTimeout = 4 * time.Minute },
		"timeout below steps": func(c *Config) { c.Queue.JobTimeout = time.Minute },
		"reserve over budget": func(c *Config) { c.Analysis.SaveReserve = time.Minute },
		"redis without addr":  func(c *Config) { c.Cache.Backend = "redis" },
		"confidence gate > 1": func(c *Config) { c.Analysis.MinOverrideConfidence = 1.5 },
		"bad provider":        func(c *Config) { c.Inference.External.Provider = "bard" },
		"backoff max < base":  func(c *Config) { c.Queue.BackoffMax = time.Second },
		"port out of range":   func(c *Config) { c.Server.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			var c Config
			c.Defaults()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	var c Config
	c.Database.User, c.Database.Password = "u", "p"
	c.Database.Host, c.Database.Port, c.Database.Name = "db", 3306, "civic"
	assert.Equal(t, "u:p@tcp(db:3306)/civic?parseTime=true&charset=utf8mb4&loc=UTC", c.MySQLDSN())
	assert.Equal(t, "host=db port=3306 user=u password=p dbname=civic sslmode=disable", c.PostgresDSN())

	c.Database.DSN = "override"
	assert.Equal(t, "override", c.MySQLDSN())
}

func TestExampleConfigLoads(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile("config.yaml", b, 0o600))

	c, err := Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "image-analysis", c.Queue.Name)
	assert.Equal(t, 150*time.Second, c.Queue.JobTimeout)
	assert.True(t, c.MinioEnabled())
	assert.Equal(t, "models/civic-centroids.yaml", c.Inference.Local.ModelPath)
}
