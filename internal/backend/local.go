package backend

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

// LocalConfig configures a local-directory backend.
type LocalConfig struct {
	// Directory is the directory watched for new files. It must exist.
	Directory string
	// PollInterval, when positive, adds a periodic rescan that picks up
	// files created while the OS notification queue was interrupted.
	// Rescans only report files newer than the previous scan.
	PollInterval time.Duration
}

// LocalBackend watches a directory for newly created files through OS change
// notifications, with an optional poll fallback.
type LocalBackend struct {
	cfg    LocalConfig
	dir    string
	logger *slog.Logger
}

// NewLocalBackend validates the directory and prepares a watcher for it.
func NewLocalBackend(cfg LocalConfig, logger *slog.Logger) (*LocalBackend, error) {
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"resolving %q", cfg.Directory)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"watching %q", dir)
	}
	if !fi.IsDir() {
		return nil, watcherrors.New(watcherrors.CodeSourceUnavailable,
			"%q is not a directory", dir)
	}
	return &LocalBackend{
		cfg:    cfg,
		dir:    dir,
		logger: logger.With("backend", "local", "directory", dir),
	}, nil
}

// Notifications starts the OS watch on the directory. Each created file is
// delivered as a single-record notification keyed by its path relative to
// the watched directory.
func (b *LocalBackend) Notifications(ctx context.Context) (<-chan types.RawNotification, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"creating filesystem watcher")
	}
	if err := watcher.Add(b.dir); err != nil {
		_ = watcher.Close()
		return nil, watcherrors.Wrap(watcherrors.CodeSourceUnavailable, err,
			"watching %q", b.dir)
	}

	out := make(chan types.RawNotification)
	go b.run(ctx, watcher, out)

	b.logger.Info("watching directory")
	return out, nil
}

func (b *LocalBackend) run(ctx context.Context, watcher *fsnotify.Watcher, out chan<- types.RawNotification) {
	defer close(out)
	defer watcher.Close()

	var ticker *time.Ticker
	var ticks <-chan time.Time
	if b.cfg.PollInterval > 0 {
		ticker = time.NewTicker(b.cfg.PollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	lastScan := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			// Create fires for mkdir too; only files are discoveries,
			// same as the rescan path.
			fi, err := os.Stat(ev.Name)
			if err != nil || fi.IsDir() {
				continue
			}
			if !b.deliver(ctx, out, b.record(ev.Name)) {
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if !b.deliver(ctx, out, types.RawNotification{Err: err}) {
				return
			}
		case <-ticks:
			scanStart := time.Now()
			for _, raw := range b.rescan(lastScan) {
				if !b.deliver(ctx, out, raw) {
					return
				}
			}
			lastScan = scanStart
		}
	}
}

func (b *LocalBackend) deliver(ctx context.Context, out chan<- types.RawNotification, raw types.RawNotification) bool {
	select {
	case out <- raw:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *LocalBackend) record(path string) types.RawNotification {
	key, err := filepath.Rel(b.dir, path)
	if err != nil {
		key = filepath.Base(path)
	}
	entry := types.RecordEntry{
		Bucket:    b.dir,
		Key:       filepath.ToSlash(key),
		EventName: "file:Created",
		EventTime: time.Now(),
	}
	if fi, err := os.Stat(path); err == nil {
		entry.Size = fi.Size()
	}
	return types.RawNotification{Records: []types.RecordEntry{entry}}
}

// rescan reports files modified since the previous scan, one notification
// per file, in directory order.
func (b *LocalBackend) rescan(since time.Time) []types.RawNotification {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return []types.RawNotification{{Err: err}}
	}
	var raws []types.RawNotification
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(since) {
			continue
		}
		raws = append(raws, b.record(filepath.Join(b.dir, entry.Name())))
	}
	return raws
}

// StorageOptions implements Backend. Local discoveries resolve as plain
// file paths with no access options.
func (b *LocalBackend) StorageOptions() (string, map[string]string) {
	return "file", nil
}
