package pipeline

import (
	"log/slog"
	"time"

	"github.com/objectwatch/objectwatch/internal/metrics"
	"github.com/objectwatch/objectwatch/internal/sink"
	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

// MessageConfig carries the static parts of every outbound message.
type MessageConfig struct {
	// Subject is the message subject path, forwarded unmodified.
	Subject string `yaml:"subject"`
	// Type is the message type tag, forwarded unmodified.
	Type string `yaml:"type"`
	// Data holds static fields merged into every message. Extracted
	// metadata overrides colliding static fields; the resolved-address
	// fields uri and fs are written last and always win.
	Data map[string]any `yaml:"data"`
	// Aliases rewrites extracted metadata values before the merge:
	// Aliases["platform_name"]["npp"] = "Suomi-NPP" replaces the raw
	// value "npp". Values without an alias pass through.
	Aliases map[string]map[string]string `yaml:"aliases"`
}

// Publish drains the event sequence, emitting one outbound message per
// event in arrival order. A sink failure stops the loop immediately and
// propagates: later events stay unconsumed rather than being dropped
// silently. Returns nil when the sequence ends.
func Publish(events <-chan types.NormalizedEvent, cfg MessageConfig, snk sink.Sink, logger *slog.Logger, collector *metrics.Collector) error {
	for ev := range events {
		msg := buildMessage(cfg, ev, time.Now().UTC())
		if err := snk.Send(msg); err != nil {
			if !watcherrors.IsCode(err, watcherrors.CodeSinkFailure) {
				err = watcherrors.Wrap(watcherrors.CodeSinkFailure, err,
					"emitting message for %s", ev.Location.URI())
			}
			return err
		}
		collector.MessagePublished()
		logger.Debug("published", "uri", ev.Location.URI(), "subject", cfg.Subject)
	}
	return nil
}

// buildMessage merges, lowest precedence first: static data, aliased
// metadata, then the resolved object address.
func buildMessage(cfg MessageConfig, ev types.NormalizedEvent, now time.Time) types.OutboundMessage {
	data := make(map[string]any, len(cfg.Data)+len(ev.Metadata)+2)
	for k, v := range cfg.Data {
		data[k] = v
	}

	md := ev.Metadata.Clone()
	applyAliases(cfg.Aliases, md)
	for k, v := range md {
		data[k] = v
	}

	data[types.DataKeyURI] = ev.Location.URI()
	if spec, ok := ev.Location.FSSpec(); ok {
		data[types.DataKeyFS] = spec
	}

	return types.OutboundMessage{
		Subject: cfg.Subject,
		Type:    cfg.Type,
		Time:    now,
		Data:    data,
	}
}

func applyAliases(aliases map[string]map[string]string, md types.Metadata) {
	for key, mapping := range aliases {
		raw, ok := md[key].(string)
		if !ok {
			continue
		}
		if replacement, ok := mapping[raw]; ok {
			md[key] = replacement
		}
	}
}
