package types

import (
	"strings"
	"time"
)

// RecordEntry describes one discovered object inside a batched notification.
// Bucket and Key are the only fields the pipeline interprets; the rest are
// carried for diagnostics and passed through untouched.
type RecordEntry struct {
	Bucket      string
	Key         string
	EventName   string
	EventTime   time.Time
	Size        int64
	ContentType string
}

// RawNotification is one delivery from a backend: a batch of record entries,
// or a transient transport error when Err is set. A notification carrying an
// error has no records; the stream continues after it.
type RawNotification struct {
	Records []RecordEntry
	Err     error
}

// Metadata maps placeholder names to values parsed from an object key.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata. Clone of nil is an empty,
// non-nil map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ObjectLocation is a fully qualified reference to a discovered object.
// Bucket is the containing bucket for remote objects and the watched
// directory for local ones; Key is relative to it. Options carries the
// access options needed to resolve the object later (endpoint, profile).
// Immutable once constructed.
type ObjectLocation struct {
	Protocol string
	Bucket   string
	Key      string
	Options  map[string]string
}

// URI renders the location as a protocol-qualified address, for example
// s3://viirs-data/sdr/granule.h5 or file:///data/incoming/granule.h5.
func (l ObjectLocation) URI() string {
	if l.Bucket == "" {
		return l.Protocol + "://" + l.Key
	}
	return l.Protocol + "://" + strings.TrimSuffix(l.Bucket, "/") + "/" + l.Key
}

// FSSpec returns a descriptor of the remote filesystem holding the object,
// suitable for embedding in an outbound message so consumers can open the
// object themselves. Local locations have no descriptor.
func (l ObjectLocation) FSSpec() (map[string]any, bool) {
	if l.Protocol == "" || l.Protocol == "file" {
		return nil, false
	}
	spec := map[string]any{"protocol": l.Protocol}
	for k, v := range l.Options {
		spec[k] = v
	}
	return spec, true
}

// NormalizedEvent is the unit flowing from the normalizer to the publisher:
// one matching object and the metadata extracted from its key.
type NormalizedEvent struct {
	Location ObjectLocation
	Metadata Metadata
}

// OutboundMessage is the envelope emitted to the sink for each normalized
// event. Data merges the static message configuration, the extracted
// metadata, and the resolved object address; the address keys ("uri", "fs")
// are written last and take precedence.
type OutboundMessage struct {
	Subject string         `json:"subject"`
	Type    string         `json:"type"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data"`
}

// Reserved data keys populated by the publisher from the resolved location.
const (
	DataKeyURI = "uri"
	DataKeyFS  = "fs"
)
