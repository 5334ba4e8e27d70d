// Package metrics exposes Prometheus counters for the watch pipeline.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons recorded on records_skipped_total.
const (
	SkipNoMatch   = "no_match"
	SkipMalformed = "malformed"
)

// Config represents metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Collector aggregates pipeline counters on a private registry and serves
// them over an optional HTTP endpoint. A nil Collector is a no-op, so
// callers never need to guard their recording calls.
type Collector struct {
	registry *prometheus.Registry
	config   Config

	notificationsReceived prometheus.Counter
	sourceErrors          prometheus.Counter
	recordsMatched        prometheus.Counter
	recordsSkipped        *prometheus.CounterVec
	messagesPublished     prometheus.Counter

	server *http.Server
}

// NewCollector creates a collector with all pipeline counters registered.
func NewCollector(config Config) *Collector {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	c.notificationsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "objectwatch",
		Name:      "notifications_received_total",
		Help:      "Raw notifications received from the backend.",
	})
	c.sourceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "objectwatch",
		Name:      "source_errors_total",
		Help:      "Transient transport errors signaled by the backend.",
	})
	c.recordsMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "objectwatch",
		Name:      "records_matched_total",
		Help:      "Record entries that matched the metadata pattern.",
	})
	c.recordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "objectwatch",
		Name:      "records_skipped_total",
		Help:      "Record entries skipped, by reason.",
	}, []string{"reason"})
	c.messagesPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "objectwatch",
		Name:      "messages_published_total",
		Help:      "Outbound messages emitted to the sink.",
	})

	c.registry.MustRegister(
		c.notificationsReceived,
		c.sourceErrors,
		c.recordsMatched,
		c.recordsSkipped,
		c.messagesPublished,
	)
	return c
}

// NotificationReceived counts one raw notification from the backend.
func (c *Collector) NotificationReceived() {
	if c != nil {
		c.notificationsReceived.Inc()
	}
}

// SourceError counts one transient transport error.
func (c *Collector) SourceError() {
	if c != nil {
		c.sourceErrors.Inc()
	}
}

// RecordMatched counts one record entry that produced a normalized event.
func (c *Collector) RecordMatched() {
	if c != nil {
		c.recordsMatched.Inc()
	}
}

// RecordSkipped counts one skipped record entry with its reason.
func (c *Collector) RecordSkipped(reason string) {
	if c != nil {
		c.recordsSkipped.WithLabelValues(reason).Inc()
	}
}

// MessagePublished counts one message emitted to the sink.
func (c *Collector) MessagePublished() {
	if c != nil {
		c.messagesPublished.Inc()
	}
}

// Start serves the metrics endpoint when enabled. It returns immediately;
// the server runs until Stop.
func (c *Collector) Start(logger *slog.Logger) error {
	if c == nil || !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server started", "port", c.config.Port, "path", c.config.Path)
	return nil
}

// Stop shuts the metrics endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
