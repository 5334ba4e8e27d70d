// Package config loads and validates the objectwatch configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectwatch/objectwatch/internal/metrics"
	"github.com/objectwatch/objectwatch/internal/pipeline"
	"github.com/objectwatch/objectwatch/internal/sink"
	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
)

// Backend tags accepted in the configuration.
const (
	BackendBucket = "bucket"
	BackendLocal  = "local"
	BackendS3Poll = "s3"
)

// Config is the complete configuration for one watch pipeline.
type Config struct {
	// Backend selects the notification source: bucket, local or s3.
	Backend  string                 `yaml:"backend"`
	Source   SourceConfig           `yaml:"source"`
	Message  pipeline.MessageConfig `yaml:"message"`
	Sink     sink.Config            `yaml:"sink"`
	Metrics  metrics.Config         `yaml:"metrics"`
	LogLevel string                 `yaml:"log_level"`
}

// SourceConfig configures the watched source. Which fields apply depends on
// the backend: bucket and s3 use the remote fields, local uses Directory.
// Only FilePattern is shared by all backends.
type SourceConfig struct {
	// Endpoint is the object store address.
	Endpoint string `yaml:"endpoint"`
	// Bucket is the bucket to watch.
	Bucket string `yaml:"bucket"`
	// Prefix limits watching to keys under this prefix.
	Prefix string `yaml:"prefix"`
	// Directory is the directory watched by the local backend.
	Directory string `yaml:"directory"`
	// Region is the bucket's region (s3 backend).
	Region string `yaml:"region"`
	// Profile selects a shared AWS credentials profile.
	Profile string `yaml:"profile"`
	// Secure enables TLS towards the endpoint (bucket backend).
	Secure bool `yaml:"secure"`
	// ForcePathStyle uses path-style bucket addressing (s3 backend).
	ForcePathStyle bool `yaml:"force_path_style"`
	// FilePattern is the metadata template matched against object keys.
	// Empty accepts every key and extracts nothing.
	FilePattern string `yaml:"file_pattern"`
	// PollInterval is the polling period for the polling backends.
	PollInterval time.Duration `yaml:"poll_interval"`
	// StartFrom widens the s3 backend's first poll by this lookback.
	StartFrom time.Duration `yaml:"start_from"`
	// StorageOptions are forwarded opaquely into resolved locations.
	StorageOptions map[string]string `yaml:"storage_options"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeInvalidConfig, err,
			"reading %q", path)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(body, &cfg); err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeInvalidConfig, err,
			"parsing %q", path)
	}
	cfg.Message.Data = normalizeData(cfg.Message.Data)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalizeData rewrites nested mappings in the static message data, which
// yaml.v2 decodes as map[interface{}]interface{}, into string-keyed maps.
// Without this a nested static field cannot be encoded as JSON at publish
// time.
func normalizeData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case map[string]any:
		return normalizeData(val)
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}
		return val
	default:
		return v
	}
}

// Validate checks that the configuration names a known backend and carries
// the fields that backend needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBucket:
		if c.Source.Endpoint == "" || c.Source.Bucket == "" {
			return watcherrors.New(watcherrors.CodeInvalidConfig,
				"bucket backend requires source.endpoint and source.bucket")
		}
	case BackendLocal:
		if c.Source.Directory == "" {
			return watcherrors.New(watcherrors.CodeInvalidConfig,
				"local backend requires source.directory")
		}
	case BackendS3Poll:
		if c.Source.Bucket == "" {
			return watcherrors.New(watcherrors.CodeInvalidConfig,
				"s3 backend requires source.bucket")
		}
	case "":
		return watcherrors.New(watcherrors.CodeInvalidConfig, "backend is required")
	default:
		return watcherrors.New(watcherrors.CodeInvalidConfig,
			"unknown backend %q", c.Backend)
	}

	if c.Message.Subject == "" {
		return watcherrors.New(watcherrors.CodeInvalidConfig, "message.subject is required")
	}
	if c.Sink.URL == "" {
		return watcherrors.New(watcherrors.CodeInvalidConfig, "sink.url is required")
	}
	if c.Source.PollInterval < 0 {
		return watcherrors.New(watcherrors.CodeInvalidConfig, "source.poll_interval cannot be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return watcherrors.New(watcherrors.CodeInvalidConfig, "metrics.port is required when metrics are enabled")
	}
	return nil
}
