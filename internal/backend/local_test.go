package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	watcherrors "github.com/objectwatch/objectwatch/pkg/errors"
	"github.com/objectwatch/objectwatch/pkg/types"
)

func TestNewLocalBackendRejectsMissingDirectory(t *testing.T) {
	_, err := NewLocalBackend(LocalConfig{Directory: filepath.Join(t.TempDir(), "absent")}, testLogger())
	require.Error(t, err)
	assert.True(t, watcherrors.IsCode(err, watcherrors.CodeSourceUnavailable))
}

func TestNewLocalBackendRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := NewLocalBackend(LocalConfig{Directory: file}, testLogger())
	require.Error(t, err)
	assert.True(t, watcherrors.IsCode(err, watcherrors.CodeSourceUnavailable))
}

func TestLocalBackendReportsCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(LocalConfig{Directory: dir}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	raw, err := b.Notifications(ctx)
	require.NoError(t, err)

	path := filepath.Join(dir, "20200428_1000_foo.tif")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	notif := waitForRecord(t, raw)
	require.Len(t, notif.Records, 1)
	record := notif.Records[0]
	assert.Equal(t, "20200428_1000_foo.tif", record.Key)
	assert.Equal(t, b.dir, record.Bucket)
	assert.Equal(t, "file:Created", record.EventName)
}

func TestLocalBackendIgnoresCreatedDirectories(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(LocalConfig{Directory: dir}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	raw, err := b.Notifications(ctx)
	require.NoError(t, err)

	// mkdir fires a create event too; only the file that follows may be
	// reported as a discovery.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "granule.h5"), []byte("payload"), 0o600))

	notif := waitForRecord(t, raw)
	require.Len(t, notif.Records, 1)
	assert.Equal(t, "granule.h5", notif.Records[0].Key)
}

func TestLocalBackendRescanPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	// A file present before the watch starts must not be rescanned.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.dat"), []byte("x"), 0o600))

	b, err := NewLocalBackend(LocalConfig{Directory: dir, PollInterval: 20 * time.Millisecond}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shift the scan position into the past so the rescan alone (not the
	// OS event) is what reports the new file on slow filesystems.
	raws := b.rescan(time.Now().Add(-time.Minute))
	require.Len(t, raws, 1)
	assert.Equal(t, "old.dat", raws[0].Records[0].Key)

	raw, err := b.Notifications(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.dat"), []byte("y"), 0o600))

	notif := waitForRecord(t, raw)
	assert.Equal(t, "new.dat", notif.Records[0].Key)
}

func TestLocalBackendStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(LocalConfig{Directory: dir}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	raw, err := b.Notifications(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-raw:
		assert.False(t, open, "channel must close after cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}

func TestLocalBackendStorageOptions(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(LocalConfig{Directory: dir}, testLogger())
	require.NoError(t, err)

	protocol, options := b.StorageOptions()
	assert.Equal(t, "file", protocol)
	assert.Nil(t, options)
}

// waitForRecord reads notifications until one carries records, skipping any
// transient errors, failing the test after a timeout.
func waitForRecord(t *testing.T, raw <-chan types.RawNotification) types.RawNotification {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case notif, open := <-raw:
			if !open {
				t.Fatal("stream closed before a record arrived")
			}
			if len(notif.Records) > 0 {
				return notif
			}
		case <-deadline:
			t.Fatal("timed out waiting for a record")
		}
	}
}
