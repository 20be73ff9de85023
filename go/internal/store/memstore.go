package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
)

// MemoryStore is an in-process Store. It backs tests and offers the same
// ordering contract as the real adapter: every watcher observes changes in
// the order they were committed.
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	watchers  []*memWatcher
	ephemeral []string
	offset    time.Duration
	nextID    int
}

var _ Store = (*MemoryStore)(nil)

type memWatcher struct {
	id      int
	pattern string
	fn      func(Event)
	stopped atomic.Bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// SetServerOffset fixes the simulated server clock offset. Test hook.
func (s *MemoryStore) SetServerOffset(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = d
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	cp := append([]byte{}, value...)
	s.mu.Lock()
	s.data[key] = cp
	targets := s.matchingWatchers(key)
	s.mu.Unlock()

	dispatch(targets, Event{Key: key, Value: cp})
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFoundf("key %s not found", key)
	}
	return append([]byte{}, value...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	targets := s.matchingWatchers(key)
	s.mu.Unlock()

	if existed {
		dispatch(targets, Event{Key: key, Deleted: true})
	}
	return nil
}

func (s *MemoryStore) DeleteTree(ctx context.Context, prefix string) error {
	s.mu.Lock()
	var keys []string
	for key := range s.data {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys) // deterministic deletion event order
	type removal struct {
		key     string
		targets []*memWatcher
	}
	removals := make([]removal, 0, len(keys))
	for _, key := range keys {
		delete(s.data, key)
		removals = append(removals, removal{key: key, targets: s.matchingWatchers(key)})
	}
	s.mu.Unlock()

	for _, r := range removals {
		dispatch(r.targets, Event{Key: r.key, Deleted: true})
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for key, value := range s.data {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			out[key] = append([]byte{}, value...)
		}
	}
	return out, nil
}

func (s *MemoryStore) Watch(ctx context.Context, pattern string, fn func(Event)) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	w := &memWatcher{id: s.nextID, pattern: pattern, fn: fn}
	s.watchers = append(s.watchers, w)
	return &memSubscription{store: s, watcher: w}, nil
}

type memSubscription struct {
	store   *MemoryStore
	watcher *memWatcher
}

func (s *memSubscription) Unsubscribe() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.watcher.stopped.Store(true)
	for i, w := range s.store.watchers {
		if w.id == s.watcher.id {
			s.store.watchers = append(s.store.watchers[:i], s.store.watchers[i+1:]...)
			return
		}
	}
}

func (s *MemoryStore) RegisterEphemeral(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ephemeral = append(s.ephemeral, key)
}

func (s *MemoryStore) ServerOffset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

func (s *MemoryStore) ServerNow() time.Time {
	return time.Now().Add(s.ServerOffset())
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	keys := append([]string{}, s.ephemeral...)
	s.ephemeral = nil
	s.mu.Unlock()

	for _, key := range keys {
		_ = s.Delete(context.Background(), key)
	}
	return nil
}

// matchingWatchers must be called with the lock held. Returned watchers are
// invoked outside the lock so callbacks may re-enter the store.
func (s *MemoryStore) matchingWatchers(key string) []*memWatcher {
	var out []*memWatcher
	for _, w := range s.watchers {
		if MatchKey(w.pattern, key) {
			out = append(out, w)
		}
	}
	return out
}

func dispatch(targets []*memWatcher, ev Event) {
	for _, w := range targets {
		if w.stopped.Load() {
			continue
		}
		w.fn(ev)
	}
}
