package ledger

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes work per payment method id.
//
// Each key owns a one-slot channel; holding the slot is holding the lock.
// Entries are reference counted and dropped once nobody holds or waits.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	slot chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyLock)}
}

// Lock acquires every id in canonical order so that two callers locking
// overlapping sets cannot deadlock. Nil ids are ignored.
//
// Waiting honours ctx. On success the returned func releases all ids.
func (k *keyedMutex) Lock(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	keys := canonical(ids)
	held := make([]uuid.UUID, 0, len(keys))

	for _, id := range keys {
		if err := k.acquire(ctx, id); err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				k.release(held[i])
			}
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				k.release(held[i])
			}
		})
	}, nil
}

func (k *keyedMutex) acquire(ctx context.Context, id uuid.UUID) error {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{slot: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.unref(id)
		return ctx.Err()
	}
}

func (k *keyedMutex) release(id uuid.UUID) {
	k.mu.Lock()
	l := k.locks[id]
	k.mu.Unlock()
	<-l.slot
	k.unref(id)
}

func (k *keyedMutex) unref(id uuid.UUID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// canonical returns ids sorted and deduplicated, without uuid.Nil.
func canonical(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })

	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
