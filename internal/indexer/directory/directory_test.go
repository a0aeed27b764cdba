package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		LockRetries:      2,
		LockRetryDelay:   time.Millisecond,
		ForceUnlockStale: true,
	}
}

func TestOpenCreatesDirectoryAndLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	d, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(path, LockFileName))
	require.NoError(t, err)

	locked, err := IsLocked(path)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	locked, err = IsLocked(path)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestSecondWriterGetsLockHeld(t *testing.T) {
	path := t.TempDir()
	first, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(context.Background(), path, testOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrLockHeld))

	err = ForceUnlock(path)
	assert.True(t, errors.Is(err, apperrors.ErrLockHeld), "active writer must not be unlocked")
}

func TestReopenAfterClose(t *testing.T) {
	path := t.TempDir()
	first, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func writeStaleMarker(t *testing.T, path string) {
	t.Helper()
	marker := `{"pid":99999,"host":"crashed","acquired_at":"2024-01-01T00:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(path, LockFileName), []byte(marker), 0644))
}

func TestStaleLockIsRecovered(t *testing.T) {
	path := t.TempDir()
	writeStaleMarker(t, path)

	d, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestStaleLockRejectedWithoutForce(t *testing.T) {
	path := t.TempDir()
	writeStaleMarker(t, path)

	opts := testOptions()
	opts.ForceUnlockStale = false
	_, err := Open(context.Background(), path, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrLockHeld))

	require.NoError(t, ForceUnlock(path))
	d, err := Open(context.Background(), path, opts)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestListAndRemove(t *testing.T) {
	path := t.TempDir()
	d, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)
	defer d.Close()

	for _, name := range []string{"seg_2.spdx", "seg_1.spdx", "other.txt"} {
		require.NoError(t, os.WriteFile(d.File(name), []byte("x"), 0644))
	}
	names, err := d.List(".spdx")
	require.NoError(t, err)
	assert.Equal(t, []string{"seg_1.spdx", "seg_2.spdx"}, names)

	require.NoError(t, d.Remove("seg_1.spdx"))
	require.NoError(t, d.Remove("seg_1.spdx"))
	names, err = d.List(".spdx")
	require.NoError(t, err)
	assert.Equal(t, []string{"seg_2.spdx"}, names)
}

func TestUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write anywhere")
	}
	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0555))
	defer os.Chmod(parent, 0755)

	_, err := Open(context.Background(), filepath.Join(parent, "index"), testOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
}

func TestOpenReadOnlyIgnoresActiveWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")
	w, err := Open(context.Background(), path, testOptions())
	require.NoError(t, err)
	defer w.Close()

	r, err := OpenReadOnly(path)
	require.NoError(t, err)
	assert.True(t, r.ReadOnly())
	assert.Error(t, r.Remove(LockFileName))
	require.NoError(t, r.Close())

	locked, err := IsLocked(path)
	require.NoError(t, err)
	assert.True(t, locked, "closing a reader must not release the writer's lock")
}

func TestOpenReadOnlyMissingDirectoryIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent")
	d, err := OpenReadOnly(path)
	require.NoError(t, err)
	names, err := d.List(".spdx")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
