package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"

	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

// Object-creation event types subscribed to on the bucket.
var bucketCreationEvents = []string{"s3:ObjectCreated:*"}

// BucketConfig configures a bucket-notification backend.
type BucketConfig struct {
	// Endpoint is the object store address, host[:port].
	Endpoint string
	// Bucket is the bucket to watch.
	Bucket string
	// Prefix limits the subscription to keys under this prefix.
	Prefix string
	// Profile selects a shared AWS credentials profile. Empty uses the
	// environment.
	Profile string
	// Secure enables TLS towards the endpoint.
	Secure bool
	// Options are extra storage options forwarded opaquely into the
	// resolved object locations.
	Options map[string]string
}

// bucketListener is the subscription seam between the backend and the MinIO
// client, so tests can inject a canned record stream.
type bucketListener interface {
	Listen(ctx context.Context, bucket, prefix string, events []string) <-chan notification.Info
}

type minioListener struct {
	client *minio.Client
}

func (l *minioListener) Listen(ctx context.Context, bucket, prefix string, events []string) <-chan notification.Info {
	return l.client.ListenBucketNotification(ctx, bucket, prefix, "", events)
}

// BucketBackend streams bucket-notification events from a MinIO/S3
// compatible object store.
type BucketBackend struct {
	cfg      BucketConfig
	listener bucketListener
	logger   *slog.Logger
}

// NewBucketBackend connects a notification client to the configured
// endpoint. Client construction failures are SOURCE_UNAVAILABLE.
func NewBucketBackend(cfg BucketConfig, logger *slog.Logger) (*BucketBackend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, watcherrors.New(watcherrors.CodeSourceUnavailable,
			"bucket backend requires an endpoint and a bucket")
	}

	opts := &minio.Options{Secure: cfg.Secure}
	if cfg.Profile != "" {
		opts.Creds = credentials.NewFileAWSCredentials("", cfg.Profile)
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"connecting to %s", cfg.Endpoint)
	}

	return &BucketBackend{
		cfg:      cfg,
		listener: &minioListener{client: client},
		logger:   logger.With("backend", "bucket", "bucket", cfg.Bucket),
	}, nil
}

// Notifications subscribes to object-creation events on the bucket. The
// subscription is held until ctx is cancelled; the MinIO client tears down
// its long poll when the context ends.
func (b *BucketBackend) Notifications(ctx context.Context) (<-chan types.RawNotification, error) {
	events := b.listener.Listen(ctx, b.cfg.Bucket, b.cfg.Prefix, bucketCreationEvents)
	out := make(chan types.RawNotification)

	go func() {
		defer close(out)
		for info := range events {
			select {
			case out <- fromBucketEvent(info):
			case <-ctx.Done():
				return
			}
		}
	}()

	b.logger.Info("watching bucket notifications", "endpoint", b.cfg.Endpoint)
	return out, nil
}

// StorageOptions implements Backend.
func (b *BucketBackend) StorageOptions() (string, map[string]string) {
	options := map[string]string{"endpoint_url": b.cfg.Endpoint}
	if b.cfg.Profile != "" {
		options["profile"] = b.cfg.Profile
	}
	for k, v := range b.cfg.Options {
		options[k] = v
	}
	return "s3", options
}

// fromBucketEvent converts one MinIO notification into the uniform raw
// shape, reading only the bucket name and object key of each record. All
// other wire fields stay behind.
func fromBucketEvent(info notification.Info) types.RawNotification {
	if info.Err != nil {
		return types.RawNotification{Err: info.Err}
	}
	raw := types.RawNotification{Records: make([]types.RecordEntry, 0, len(info.Records))}
	for _, ev := range info.Records {
		eventTime, _ := time.Parse(time.RFC3339Nano, ev.EventTime)
		raw.Records = append(raw.Records, types.RecordEntry{
			Bucket:      ev.S3.Bucket.Name,
			Key:         ev.S3.Object.Key,
			EventName:   ev.EventName,
			EventTime:   eventTime,
			Size:        ev.S3.Object.Size,
			ContentType: ev.S3.Object.ContentType,
		})
	}
	return raw
}
