// Package flock provides advisory file locking, used to serialise concurrent
// generation runs against the same output tree.
package flock

import (
	"context"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/errors"
)

const pollInterval = 100 * time.Millisecond

// jitter n ± 10%
func jitter(n time.Duration) time.Duration {
	ni := int64(n)
	return time.Duration(ni + rand.Int64N(ni/10) - ni/20) //nolint
}

// Acquire a lock on the given file, waiting up to timeout for a competing
// holder to release it. The returned function releases the lock. A timeout of
// zero tries exactly once.
func Acquire(ctx context.Context, path string, timeout time.Duration) (release func() error, err error) {
	deadline := time.Now().Add(timeout)
	for {
		release, err := tryAcquire(path)
		if err == nil {
			return release, nil
		}
		if !os.IsExist(errors.Unwrap(err)) && !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("timed out acquiring lock %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		case <-time.After(jitter(pollInterval)):
		}
	}
}

func tryAcquire(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600) //nolint
	if err != nil {
		return nil, errors.Wrap(err, "lock held")
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	if err := f.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	return func() error {
		return errors.WithStack(os.Remove(path))
	}, nil
}
