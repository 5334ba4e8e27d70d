package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectwatch/objectwatch/internal/pipeline"
	"github.com/objectwatch/objectwatch/internal/sink"
	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
)

func pipelineMessage() pipeline.MessageConfig {
	return pipeline.MessageConfig{Subject: "/segment/viirs/l1b/", Type: "file"}
}

func sinkConfig() sink.Config {
	return sink.Config{URL: "nats://localhost:4222"}
}

const bucketConfigYAML = `
backend: bucket
log_level: debug
source:
  endpoint: minio.local:9000
  bucket: viirs-data
  profile: ops
  file_pattern: "sdr/{channel}_{platform_name}_{rest}.h5"
  storage_options:
    anon: "false"
message:
  subject: /segment/viirs/l1b/
  type: file
  data:
    sensor: viirs
  aliases:
    platform_name:
      npp: Suomi-NPP
sink:
  url: nats://localhost:4222
  name: objectwatch
metrics:
  enabled: true
  port: 8080
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadBucketConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, bucketConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, BackendBucket, cfg.Backend)
	assert.Equal(t, "minio.local:9000", cfg.Source.Endpoint)
	assert.Equal(t, "viirs-data", cfg.Source.Bucket)
	assert.Equal(t, "ops", cfg.Source.Profile)
	assert.Equal(t, "sdr/{channel}_{platform_name}_{rest}.h5", cfg.Source.FilePattern)
	assert.Equal(t, map[string]string{"anon": "false"}, cfg.Source.StorageOptions)
	assert.Equal(t, "/segment/viirs/l1b/", cfg.Message.Subject)
	assert.Equal(t, "file", cfg.Message.Type)
	assert.Equal(t, "viirs", cfg.Message.Data["sensor"])
	assert.Equal(t, "Suomi-NPP", cfg.Message.Aliases["platform_name"]["npp"])
	assert.Equal(t, "nats://localhost:4222", cfg.Sink.URL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
}

func TestLoadNestedMessageDataEncodesAsJSON(t *testing.T) {
	body := `
backend: local
source:
  directory: /data/incoming
message:
  subject: /segment/viirs/l1b/
  type: file
  data:
    sensor: viirs
    dataset:
      name: SVM13
      bands: [M13, M14]
sink:
  url: nats://localhost:4222
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	// Nested mappings must come out string-keyed, not as the yaml-native
	// interface-keyed maps that json.Marshal rejects.
	dataset, ok := cfg.Message.Data["dataset"].(map[string]any)
	require.True(t, ok, "nested data must decode as map[string]any, got %T", cfg.Message.Data["dataset"])
	assert.Equal(t, "SVM13", dataset["name"])

	payload, err := json.Marshal(cfg.Message.Data)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"bands":["M13","M14"]`)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, watcherrors.IsCode(err, watcherrors.CodeInvalidConfig))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: local\nbogus_key: 1\n"))
	require.Error(t, err)
	assert.True(t, watcherrors.IsCode(err, watcherrors.CodeInvalidConfig))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Backend: BackendLocal,
			Source:  SourceConfig{Directory: "/data/incoming"},
			Message: pipelineMessage(),
			Sink:    sinkConfig(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid local", func(c *Config) {}, ""},
		{"missing backend", func(c *Config) { c.Backend = "" }, "backend is required"},
		{"unknown backend", func(c *Config) { c.Backend = "carrier-pigeon" }, "unknown backend"},
		{"local without directory", func(c *Config) { c.Source.Directory = "" }, "source.directory"},
		{"missing subject", func(c *Config) { c.Message.Subject = "" }, "message.subject"},
		{"missing sink url", func(c *Config) { c.Sink.URL = "" }, "sink.url"},
		{"negative poll interval", func(c *Config) { c.Source.PollInterval = -1 }, "poll_interval"},
		{"metrics without port", func(c *Config) { c.Metrics.Enabled = true }, "metrics.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, watcherrors.IsCode(err, watcherrors.CodeInvalidConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateBucketNeedsEndpoint(t *testing.T) {
	cfg := &Config{
		Backend: BackendBucket,
		Source:  SourceConfig{Bucket: "viirs-data"},
		Message: pipelineMessage(),
		Sink:    sinkConfig(),
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.endpoint")
}

func TestValidateS3NeedsBucket(t *testing.T) {
	cfg := &Config{
		Backend: BackendS3Poll,
		Message: pipelineMessage(),
		Sink:    sinkConfig(),
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.bucket")
}
