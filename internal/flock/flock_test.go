package flock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestAcquireRelease(t *testing.T) {
	ctx := t.Context()
	lockfile := filepath.Join(t.TempDir(), ".kinject.lock")

	release, err := Acquire(ctx, lockfile, 0)
	assert.NoError(t, err)

	// Held: a second acquisition with no timeout fails immediately.
	_, err = Acquire(ctx, lockfile, 0)
	assert.Error(t, err)

	assert.NoError(t, release())

	// Released: reacquire succeeds and the lockfile is gone afterwards.
	release, err = Acquire(ctx, lockfile, 0)
	assert.NoError(t, err)
	assert.NoError(t, release())
	_, err = os.Stat(lockfile)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireWaitsForHolder(t *testing.T) {
	ctx := t.Context()
	lockfile := filepath.Join(t.TempDir(), ".kinject.lock")

	release, err := Acquire(ctx, lockfile, 0)
	assert.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		r, err := Acquire(ctx, lockfile, 5*time.Second)
		if err == nil {
			err = r()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, release())
	assert.NoError(t, <-done)
}

func TestAcquireTimesOut(t *testing.T) {
	ctx := t.Context()
	lockfile := filepath.Join(t.TempDir(), ".kinject.lock")

	release, err := Acquire(ctx, lockfile, 0)
	assert.NoError(t, err)
	defer func() { assert.NoError(t, release()) }()

	start := time.Now()
	_, err = Acquire(ctx, lockfile, 150*time.Millisecond)
	assert.Error(t, err)
	assert.True(t, time.Since(start) >= 150*time.Millisecond)
}
