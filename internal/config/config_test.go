package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	assert.Equal(t, 8087, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 600, cfg.Chunker.ChunkSize)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "axond_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, 384, cfg.VectorStore.VectorSize)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, 12, cfg.Synthesis.TopK)
	assert.Equal(t, "en", cfg.Transcript.LangCode)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)

	require.NoError(t, cfg.Validate())
}

func TestApplyDefaults_KeepsSetValues(t *testing.T) {
	cfg := Config{}
	cfg.Server.Port = 9999
	cfg.Chunker.ChunkSize = 800
	cfg.VectorStore.Provider = "qdrant"
	applyDefaults(&cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 800, cfg.Chunker.ChunkSize)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() Config {
		var cfg Config
		applyDefaults(&cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"overlap >= chunk size", func(c *Config) { c.Chunker.Overlap = c.Chunker.ChunkSize }},
		{"unknown embeddings provider", func(c *Config) { c.Embeddings.Provider = "magic" }},
		{"unknown vectorstore provider", func(c *Config) { c.VectorStore.Provider = "pinecone" }},
		{"vector size zero", func(c *Config) { c.VectorStore.VectorSize = -1 }},
		{"telemetry sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestEnvKeyToPath(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"AXOND_SERVER_PORT", "server.port"},
		{"AXOND_SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"AXOND_LOGGING_LEVEL", "logging.level"},
		{"AXOND_EMBEDDINGS_API_KEY", "embeddings.api_key"},
		{"AXOND_VECTORSTORE_PROVIDER", "vectorstore.provider"},
		{"AXOND_VECTORSTORE_VECTOR_SIZE", "vectorstore.vector_size"},
		{"AXOND_VECTORSTORE_CHROMEM_PATH", "vectorstore.chromem.path"},
		{"AXOND_VECTORSTORE_QDRANT_USE_TLS", "vectorstore.qdrant.use_tls"},
		{"AXOND_GENERATION_REQUESTS_PER_SECOND", "generation.requests_per_second"},
		{"AXOND_TELEMETRY_SAMPLE_RATE", "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, envKeyToPath(tt.env))
		})
	}
}

func TestValidateConfigPath_RejectsOutsideAllowedDirs(t *testing.T) {
	err := validateConfigPath(filepath.Join(t.TempDir(), "config.yaml"))
	assert.Error(t, err)

	err = validateConfigPath("/tmp/evil.yaml")
	assert.Error(t, err)
}
