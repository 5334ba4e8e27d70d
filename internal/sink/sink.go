// Package sink delivers outbound messages to the pub/sub bus.
//
// The pipeline treats the sink as a collaborator with its own retry and
// concurrency contract: Send either delivers the message or returns a hard
// SINK_FAILURE, and implementations must be safe for use by multiple
// pipeline instances at once.
package sink

import (
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"

	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

// Sink accepts outbound messages for publication.
type Sink interface {
	// Send delivers one message. A returned error is a hard failure: the
	// message was not delivered and the caller must stop rather than
	// drop events.
	Send(msg types.OutboundMessage) error
	// Close releases the sink's connection.
	Close() error
}

// Config configures the NATS sink.
type Config struct {
	// URL is the NATS server address, for example nats://localhost:4222.
	URL string `yaml:"url"`
	// Name identifies this connection to the server.
	Name string `yaml:"name"`
}

// NATSSink publishes JSON-encoded messages to NATS, one publication per
// message, on the subject derived from the message's subject path.
type NATSSink struct {
	conn *nats.Conn
}

// ConnectNATS establishes the sink connection. Connection failures are
// SINK_FAILURE errors.
func ConnectNATS(cfg Config) (*NATSSink, error) {
	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSinkFailure, err,
			"connecting to %s", cfg.URL)
	}
	return &NATSSink{conn: conn}, nil
}

// Send implements Sink.
func (s *NATSSink) Send(msg types.OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return watcherrors.Wrap(watcherrors.CodeSinkFailure, err,
			"encoding message for %s", msg.Subject)
	}
	if err := s.conn.Publish(SubjectFor(msg.Subject), payload); err != nil {
		return watcherrors.Wrap(watcherrors.CodeSinkFailure, err,
			"publishing to %s", msg.Subject)
	}
	return nil
}

// Close implements Sink. Pending publications are flushed first.
func (s *NATSSink) Close() error {
	err := s.conn.Flush()
	s.conn.Close()
	return err
}

// SubjectFor converts a slash-separated subject path into NATS token form:
// "/segment/viirs/l1b/" becomes "segment.viirs.l1b".
func SubjectFor(subject string) string {
	parts := strings.FieldsFunc(subject, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return subject
	}
	return strings.Join(parts, ".")
}
