package assignment

import (
	"context"
	"sync"
	"time"
)

type lockKey struct {
	kind ResourceKind
	id   string
	date string
}

func keyFor(r Resource, date time.Time) lockKey {
	return lockKey{kind: r.Kind, id: r.ID, date: date.Format(time.DateOnly)}
}

// keyLock is a one-slot semaphore whose waiters can give up on ctx.Done.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// lockTable hands out per-key locks and forgets a key once nobody holds
// or waits for it.
type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*keyLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[lockKey]*keyLock)}
}

// acquire blocks until the key is held or ctx is done. The returned
// release func must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, key lockKey) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				t.unref(key, l)
			})
		}, nil
	case <-ctx.Done():
		t.unref(key, l)
		return nil, ctx.Err()
	}
}

func (t *lockTable) unref(key lockKey, l *keyLock) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
