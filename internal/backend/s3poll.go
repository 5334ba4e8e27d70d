package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

const defaultS3PollInterval = time.Minute

// S3PollConfig configures a listing-poll backend for buckets whose store
// offers no notification channel.
type S3PollConfig struct {
	// Endpoint overrides the S3 endpoint. Empty uses the SDK default.
	Endpoint string
	// Bucket is the bucket to poll.
	Bucket string
	// Prefix limits the listing to keys under this prefix.
	Prefix string
	// Region is the bucket's region.
	Region string
	// Profile selects a shared AWS config profile.
	Profile string
	// ForcePathStyle addresses the bucket in the path rather than the
	// host, as MinIO and most S3-compatible stores require.
	ForcePathStyle bool
	// PollInterval is the time between listings. Defaults to one minute.
	PollInterval time.Duration
	// StartFrom widens the first poll to also report objects last
	// modified up to this long before startup. Zero reports only objects
	// appearing after startup.
	StartFrom time.Duration
	// Options are extra storage options forwarded opaquely into the
	// resolved object locations.
	Options map[string]string
}

// objectLister is the listing seam between the backend and the S3 client.
type objectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3PollBackend discovers new objects by periodically listing a bucket and
// reporting keys modified since the previous poll position. The position
// lives in memory only; a restart starts over from the configured lookback.
type S3PollBackend struct {
	cfg    S3PollConfig
	client objectLister
	logger *slog.Logger
}

// NewS3PollBackend loads AWS configuration and builds the listing client.
func NewS3PollBackend(ctx context.Context, cfg S3PollConfig, logger *slog.Logger) (*S3PollBackend, error) {
	if cfg.Bucket == "" {
		return nil, watcherrors.New(watcherrors.CodeSourceUnavailable,
			"s3 poll backend requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"loading AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return newS3PollBackend(cfg, client, logger), nil
}

func newS3PollBackend(cfg S3PollConfig, client objectLister, logger *slog.Logger) *S3PollBackend {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultS3PollInterval
	}
	return &S3PollBackend{
		cfg:    cfg,
		client: client,
		logger: logger.With("backend", "s3", "bucket", cfg.Bucket),
	}
}

// Notifications verifies the bucket is listable and starts the poll loop.
// Each poll yields at most one notification batching every newly modified
// key in listing order.
func (b *S3PollBackend) Notifications(ctx context.Context) (<-chan types.RawNotification, error) {
	// One listing up front: an unreachable or missing bucket is an
	// establish-time failure, not an in-stream one.
	if _, err := b.list(ctx); err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"listing bucket %q", b.cfg.Bucket)
	}

	out := make(chan types.RawNotification)
	go b.run(ctx, out)

	b.logger.Info("polling bucket listing", "interval", b.cfg.PollInterval)
	return out, nil
}

func (b *S3PollBackend) run(ctx context.Context, out chan<- types.RawNotification) {
	defer close(out)

	position := time.Now().Add(-b.cfg.StartFrom)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw, next := b.poll(ctx, position)
		position = next
		if len(raw.Records) == 0 && raw.Err == nil {
			continue
		}
		select {
		case out <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// poll lists the bucket and batches the keys modified after the current
// position. The position only advances past objects actually reported, so a
// failed listing is retried from the same point.
func (b *S3PollBackend) poll(ctx context.Context, position time.Time) (types.RawNotification, time.Time) {
	objects, err := b.list(ctx)
	if err != nil {
		return types.RawNotification{Err: err}, position
	}

	var raw types.RawNotification
	next := position
	for _, obj := range objects {
		if obj.LastModified == nil || obj.Key == nil {
			continue
		}
		if !obj.LastModified.After(position) {
			continue
		}
		raw.Records = append(raw.Records, types.RecordEntry{
			Bucket:    b.cfg.Bucket,
			Key:       *obj.Key,
			EventName: "s3:ObjectCreated:Poll",
			EventTime: *obj.LastModified,
			Size:      aws.ToInt64(obj.Size),
		})
		if obj.LastModified.After(next) {
			next = *obj.LastModified
		}
	}
	return raw, next
}

func (b *S3PollBackend) list(ctx context.Context) ([]s3types.Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.cfg.Bucket)}
	if b.cfg.Prefix != "" {
		input.Prefix = aws.String(b.cfg.Prefix)
	}

	var objects []s3types.Object
	for {
		page, err := b.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Contents...)
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}
	return objects, nil
}

// StorageOptions implements Backend.
func (b *S3PollBackend) StorageOptions() (string, map[string]string) {
	options := map[string]string{}
	if b.cfg.Endpoint != "" {
		options["endpoint_url"] = b.cfg.Endpoint
	}
	if b.cfg.Profile != "" {
		options["profile"] = b.cfg.Profile
	}
	for k, v := range b.cfg.Options {
		options[k] = v
	}
	return "s3", options
}
