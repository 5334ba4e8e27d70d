// Package backend provides the notification sources feeding the objectwatch
// pipeline.
//
// A Backend wraps one external notification transport behind a uniform
// shape: a lazy, logically infinite stream of raw notifications delivered on
// a channel. Three transports are implemented: bucket (MinIO/S3 bucket-event
// long poll), local (fsnotify on a directory), and s3 (periodic bucket
// listing through the AWS SDK).
//
// Establish-time failures are fatal and surface as SOURCE_UNAVAILABLE
// errors. Transport hiccups on an already open subscription are delivered
// in-band as notifications carrying Err, and the stream continues. A stream
// ends only when its context is cancelled; the backend releases its network
// or OS resource on every exit path.
package backend

import (
	"context"

	"github.com/objectwatch/objectwatch/pkg/types"
)

// Backend is one notification source behind a uniform adapter interface.
type Backend interface {
	// Notifications opens the underlying subscription and streams raw
	// notifications until ctx is cancelled. The returned channel is
	// unbuffered and closes once the subscription is released. Failure to
	// establish the subscription is returned immediately as a
	// SOURCE_UNAVAILABLE error.
	Notifications(ctx context.Context) (<-chan types.RawNotification, error)

	// StorageOptions reports the protocol and access options needed to
	// resolve this backend's discoveries into object locations.
	StorageOptions() (protocol string, options map[string]string)
}
