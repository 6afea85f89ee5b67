package inject

import (
	"sync"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/errors"
)

func TestLazyMemoizes(t *testing.T) {
	calls := 0
	l := NewLazy(func() int {
		calls++
		return 42
	})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 42, l.Get())
	assert.Equal(t, 42, l.Get())
	assert.Equal(t, 1, calls)
}

func TestLazyConcurrentGet(t *testing.T) {
	calls := 0
	l := NewLazy(func() string {
		calls++
		return "once"
	})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "once", l.Get())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestEntry(t *testing.T) {
	p := Entry("port", 8080)
	assert.Equal(t, "port", p.Key)
	assert.Equal(t, 8080, p.Value)
}

func TestStoreMemoizes(t *testing.T) {
	var s Store
	calls := 0
	build := func() (any, error) {
		calls++
		return "session", nil
	}
	v, err := s.Get("*app.Session", build)
	assert.NoError(t, err)
	assert.Equal(t, "session", v.(string))

	v, err = s.Get("*app.Session", build)
	assert.NoError(t, err)
	assert.Equal(t, "session", v.(string))
	assert.Equal(t, 1, calls)
}

func TestStoreKeysAreIndependent(t *testing.T) {
	var s Store
	a, err := s.Get("a", func() (any, error) { return 1, nil })
	assert.NoError(t, err)
	b, err := s.Get("b", func() (any, error) { return 2, nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, a.(int))
	assert.Equal(t, 2, b.(int))
}

func TestStoreNestedGet(t *testing.T) {
	// A scoped binding that depends on another scoped binding in the same
	// scope produces a Get whose build callback calls Get on the same store.
	var s Store
	inner := 0
	v, err := s.Get("*app.Auth", func() (any, error) {
		session, err := s.Get("*app.Session", func() (any, error) {
			inner++
			return "session", nil
		})
		if err != nil {
			return nil, err
		}
		return "auth:" + session.(string), nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "auth:session", v.(string))
	assert.Equal(t, 1, inner)

	// Both keys are memoized independently.
	v, err = s.Get("*app.Session", func() (any, error) {
		inner++
		return "rebuilt", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "session", v.(string))
	assert.Equal(t, 1, inner)
}

func TestStoreFirstBuildWinsRace(t *testing.T) {
	var s Store
	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	results := make([]any, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get("clock", func() (any, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return "tick", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()
	for _, v := range results {
		assert.Equal(t, "tick", v.(string))
	}
	mu.Lock()
	assert.True(t, calls >= 1)
	mu.Unlock()
}

func TestStoreRetriesAfterError(t *testing.T) {
	var s Store
	calls := 0
	_, err := s.Get("db", func() (any, error) {
		calls++
		return nil, errors.New("connect failed")
	})
	assert.EqualError(t, err, "connect failed")

	v, err := s.Get("db", func() (any, error) {
		calls++
		return "connected", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "connected", v.(string))
	assert.Equal(t, 2, calls)
}
