// Package pipeline contains the normalize and publish stages of the watch
// pipeline.
//
// Both stages are pull-driven: the publisher drains the generator, which
// drains the backend. One pipeline instance is one sequential consumption
// chain with no internal parallelism and no cross-event state.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/objectwatch/objectwatch/internal/backend"
	"github.com/objectwatch/objectwatch/internal/metrics"
	"github.com/objectwatch/objectwatch/internal/pattern"
	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

// Generator turns a backend's notification stream into a sequence of
// normalized events. Consume Events until it closes, then check Err to learn
// whether the sequence ended by cancellation or because the source was lost.
type Generator struct {
	events   chan types.NormalizedEvent
	stopped  chan struct{}
	stopOnce sync.Once

	// err is written by the producing goroutine before events is closed
	// and read only after, so the channel close orders the accesses.
	err error
}

// FileGenerator opens the backend's notification stream and starts producing
// the normalized events for entries whose key matches the pattern.
//
// Each notification batch is expanded in order; entries missing a bucket or
// key and entries whose key does not match are skipped without disturbing
// the rest of the batch or the stream. Transient transport errors signaled
// by the backend are logged and counted, and the stream continues. The
// event channel is unbuffered and closes when the backend stream ends.
func FileGenerator(ctx context.Context, src backend.Backend, pat *pattern.Pattern, logger *slog.Logger, collector *metrics.Collector) (*Generator, error) {
	raw, err := src.Notifications(ctx)
	if err != nil {
		return nil, err
	}
	protocol, options := src.StorageOptions()

	g := &Generator{
		events:  make(chan types.NormalizedEvent),
		stopped: make(chan struct{}),
	}
	go g.run(ctx, raw, pat, protocol, options, logger, collector)
	return g, nil
}

// Events is the sequence of normalized events. It closes when the backend
// stream ends or the generator is stopped.
func (g *Generator) Events() <-chan types.NormalizedEvent { return g.events }

// Err reports why the sequence ended. It is nil after cancellation or Stop,
// and a SOURCE_UNAVAILABLE error when the backend stream ended on its own:
// a source that stops delivering without being asked to is lost, not done.
// Err is valid once Events has closed.
func (g *Generator) Err() error { return g.err }

// Stop releases the producing goroutine when the consumer abandons the
// sequence before draining it, such as after a fatal sink failure. Events
// not yet consumed stay unconsumed.
func (g *Generator) Stop() { g.stopOnce.Do(func() { close(g.stopped) }) }

func (g *Generator) run(ctx context.Context, raw <-chan types.RawNotification, pat *pattern.Pattern, protocol string, options map[string]string, logger *slog.Logger, collector *metrics.Collector) {
	defer close(g.events)

	var lastErr error
	for {
		var notif types.RawNotification
		var open bool
		select {
		case notif, open = <-raw:
		case <-g.stopped:
			return
		}
		if !open {
			if ctx.Err() == nil {
				g.err = streamLost(lastErr)
			}
			return
		}

		if notif.Err != nil {
			lastErr = notif.Err
			collector.SourceError()
			logger.Warn("transient source error", "error", notif.Err)
			continue
		}
		collector.NotificationReceived()
		for _, record := range notif.Records {
			ev, ok := normalize(record, pat, protocol, options, logger, collector)
			if !ok {
				continue
			}
			// An expanded batch is delivered whole: cancellation takes
			// effect when the backend closes the stream, between
			// notifications, never in the middle of a batch.
			select {
			case g.events <- ev:
			case <-g.stopped:
				return
			}
		}
	}
}

func streamLost(lastErr error) error {
	if lastErr != nil {
		return watcherrors.Wrap(watcherrors.CodeSourceUnavailable, lastErr,
			"notification stream ended")
	}
	return watcherrors.New(watcherrors.CodeSourceUnavailable,
		"notification stream ended unexpectedly")
}

// normalize turns one record entry into a normalized event, or reports that
// the entry is to be skipped. Skipping is the pipeline's error-tolerance
// policy: a malformed or non-matching entry never aborts the stream.
func normalize(record types.RecordEntry, pat *pattern.Pattern, protocol string, options map[string]string, logger *slog.Logger, collector *metrics.Collector) (types.NormalizedEvent, bool) {
	if record.Key == "" || record.Bucket == "" {
		collector.RecordSkipped(metrics.SkipMalformed)
		logger.Debug("skipping malformed record", "bucket", record.Bucket, "key", record.Key)
		return types.NormalizedEvent{}, false
	}

	md, ok := pat.Extract(record.Key)
	if !ok {
		collector.RecordSkipped(metrics.SkipNoMatch)
		logger.Debug("key does not match pattern", "key", record.Key)
		return types.NormalizedEvent{}, false
	}

	collector.RecordMatched()
	return types.NormalizedEvent{
		Location: types.ObjectLocation{
			Protocol: protocol,
			Bucket:   record.Bucket,
			Key:      record.Key,
			Options:  options,
		},
		Metadata: md,
	}, true
}
