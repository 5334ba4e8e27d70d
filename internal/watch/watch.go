// Package watch wires a configured backend, pattern and sink into one
// running pipeline instance.
package watch

import (
	"context"
	"log/slog"

	"github.com/objectwatch/objectwatch/internal/backend"
	"github.com/objectwatch/objectwatch/internal/config"
	"github.com/objectwatch/objectwatch/internal/metrics"
	"github.com/objectwatch/objectwatch/internal/pattern"
	"github.com/objectwatch/objectwatch/internal/pipeline"
	"github.com/objectwatch/objectwatch/internal/sink"
	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
)

// NewBackend constructs the backend named by the configuration.
func NewBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	switch cfg.Backend {
	case config.BackendBucket:
		return backend.NewBucketBackend(backend.BucketConfig{
			Endpoint: cfg.Source.Endpoint,
			Bucket:   cfg.Source.Bucket,
			Prefix:   cfg.Source.Prefix,
			Profile:  cfg.Source.Profile,
			Secure:   cfg.Source.Secure,
			Options:  cfg.Source.StorageOptions,
		}, logger)
	case config.BackendLocal:
		return backend.NewLocalBackend(backend.LocalConfig{
			Directory:    cfg.Source.Directory,
			PollInterval: cfg.Source.PollInterval,
		}, logger)
	case config.BackendS3Poll:
		return backend.NewS3PollBackend(ctx, backend.S3PollConfig{
			Endpoint:       cfg.Source.Endpoint,
			Bucket:         cfg.Source.Bucket,
			Prefix:         cfg.Source.Prefix,
			Region:         cfg.Source.Region,
			Profile:        cfg.Source.Profile,
			ForcePathStyle: cfg.Source.ForcePathStyle,
			PollInterval:   cfg.Source.PollInterval,
			StartFrom:      cfg.Source.StartFrom,
			Options:        cfg.Source.StorageOptions,
		}, logger)
	default:
		return nil, watcherrors.New(watcherrors.CodeInvalidConfig,
			"unknown backend %q", cfg.Backend)
	}
}

// Run executes one watch pipeline until the backend stream ends, a fatal
// error occurs, or ctx is cancelled. It owns the sink connection and the
// metrics endpoint for the pipeline's lifetime.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pat, err := pattern.Compile(cfg.Source.FilePattern)
	if err != nil {
		return err
	}

	src, err := NewBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	snk, err := sink.ConnectNATS(cfg.Sink)
	if err != nil {
		return err
	}
	defer snk.Close()

	collector := metrics.NewCollector(cfg.Metrics)
	if err := collector.Start(logger); err != nil {
		return err
	}
	defer collector.Stop(context.Background())

	return RunPipeline(ctx, src, pat, cfg.Message, snk, logger, collector)
}

// RunPipeline runs the generator and publisher over an already constructed
// backend and sink. A backend stream that ends without cancellation is a
// lost source and surfaces as SOURCE_UNAVAILABLE.
func RunPipeline(ctx context.Context, src backend.Backend, pat *pattern.Pattern, msgCfg pipeline.MessageConfig, snk sink.Sink, logger *slog.Logger, collector *metrics.Collector) error {
	gen, err := pipeline.FileGenerator(ctx, src, pat, logger, collector)
	if err != nil {
		return err
	}
	defer gen.Stop()
	logger.Info("pipeline running", "subject", msgCfg.Subject)
	if err := pipeline.Publish(gen.Events(), msgCfg, snk, logger, collector); err != nil {
		return err
	}
	return gen.Err()
}
