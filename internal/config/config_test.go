package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.05, cfg.RAG.SimilarityThreshold, 1e-9)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.Embedding.MaxRetries)
	assert.Len(t, cfg.LLM.Models, 5)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.LLM.Models[0])
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[rag]
chunk_size = 1000
top_k = 8

[llm]
models = ["a/one", "b/two"]

[database]
driver = "sqlite"
path = "test.db"
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RAG_TOP_K", "3")
	t.Setenv("LLM_MODELS", " x/first , ,y/second")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, []string{"x/first", "y/second"}, cfg.LLM.Models)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "test.db", cfg.DSN())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"overlap not below size": func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize },
		"zero chunk size":        func(c *Config) { c.RAG.ChunkSize = 0 },
		"wrong dimension":        func(c *Config) { c.Embedding.Dimension = 768 },
		"no models":              func(c *Config) { c.LLM.Models = nil },
		"threshold above one":    func(c *Config) { c.RAG.SimilarityThreshold = 1.5 },
		"unknown queue":          func(c *Config) { c.Ingestion.Queue = "kafka" },
		"unknown storage":        func(c *Config) { c.Storage.Driver = "s3" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, defaultConfig().Validate())
}

func TestDSN(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "host=127.0.0.1 port=5432 user=postgres password= dbname=gopherai_docqa sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.Database = DatabaseConfig{Driver: "mysql", User: "root", Password: "pw", Host: "db", Port: 3306, DB: "docs", Params: "parseTime=true"}
	assert.Equal(t, "root:pw@tcp(db:3306)/docs?parseTime=true", cfg.DSN())
}

func TestProviderKeysFallBackToLLMKey(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("LLM_API_KEY", "shared")
	t.Setenv("VISION_API_KEY", "vision-only")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "shared", cfg.Embedding.APIKey)
	assert.Equal(t, "vision-only", cfg.Vision.APIKey)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9090
  cors_origins: ["https://docs.example.com"]
ingestion:
  queue: rabbitmq
  workers: 2
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, []string{"https://docs.example.com"}, cfg.App.CORSOrigins)
	assert.Equal(t, QueueRabbitMQ, cfg.Ingestion.Queue)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
}
