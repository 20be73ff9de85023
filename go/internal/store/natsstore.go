package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
)

const (
	natsMaxReconnects = 10
	natsReconnectWait = 2 * time.Second
)

// NATSStore implements Store on a JetStream key-value bucket. Every session
// document lives under its own key; per-key watch streams give each
// subscriber temporally ordered whole-value updates.
type NATSStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue

	offset time.Duration

	mu        sync.Mutex
	ephemeral []string
}

var _ Store = (*NATSStore)(nil)

// DialNATS connects to the store, creating the bucket when absent, and
// measures the server clock offset from a probe write.
func DialNATS(ctx context.Context, url, bucket string) (*NATSStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("store disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("store reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}

	s := &NATSStore{nc: nc, kv: kv}
	if err := s.measureOffset(ctx); err != nil {
		log.Warn().Err(err).Msg("could not measure server clock offset, assuming zero")
	}
	log.Info().Dur("server_offset", s.offset).Str("bucket", bucket).Msg("store connected")
	return s, nil
}

// measureOffset writes a probe key and compares its server-assigned
// timestamp against the midpoint of the observed round trip.
func (s *NATSStore) measureOffset(ctx context.Context) error {
	key := "clock.probe-" + uuid.New().String()[:8]
	before := time.Now()
	if _, err := s.kv.Put(ctx, key, []byte("probe")); err != nil {
		return fmt.Errorf("write clock probe: %w", err)
	}
	after := time.Now()

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read clock probe: %w", err)
	}
	mid := before.Add(after.Sub(before) / 2)
	s.offset = entry.Created().Sub(mid)

	if err := s.kv.Purge(ctx, key); err != nil {
		log.Debug().Err(err).Msg("could not remove clock probe")
	}
	return nil
}

func (s *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return apperrors.RemoteUnavailable("write "+key, err)
	}
	return nil
}

func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, apperrors.NotFoundf("key %s not found", key)
	}
	if err != nil {
		return nil, apperrors.RemoteUnavailable("read "+key, err)
	}
	return entry.Value(), nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Purge(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return apperrors.RemoteUnavailable("delete "+key, err)
	}
	return nil
}

// DeleteTree removes every key at or below prefix. Each removal fans out to
// watchers as a deletion event, which is how participants observe teardown.
func (s *NATSStore) DeleteTree(ctx context.Context, prefix string) error {
	keys, err := s.keysUnder(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *NATSStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := s.keysUnder(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, err := s.Get(ctx, key)
		if apperrors.Is(err, apperrors.KindNotFound) {
			continue // deleted between list and read
		}
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (s *NATSStore) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, apperrors.RemoteUnavailable("list keys", err)
	}
	var keys []string
	for key := range lister.Keys() {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *NATSStore) Watch(ctx context.Context, pattern string, fn func(Event)) (Subscription, error) {
	watcher, err := s.kv.Watch(ctx, pattern, jetstream.UpdatesOnly())
	if err != nil {
		return nil, apperrors.RemoteUnavailable("watch "+pattern, err)
	}

	sub := &natsSubscription{watcher: watcher}
	go func() {
		for entry := range watcher.Updates() {
			if entry == nil {
				continue
			}
			if sub.stopped.Load() {
				return
			}
			fn(Event{
				Key:     entry.Key(),
				Value:   entry.Value(),
				Deleted: entry.Operation() != jetstream.KeyValuePut,
			})
		}
	}()
	return sub, nil
}

type natsSubscription struct {
	watcher jetstream.KeyWatcher
	once    sync.Once
	stopped atomic.Bool
}

// Unsubscribe stops the watcher. The stopped flag makes the cutoff
// effective immediately, even for an update already queued for delivery.
// Safe to call from inside a watch callback.
func (s *natsSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		if err := s.watcher.Stop(); err != nil {
			log.Debug().Err(err).Msg("stop watcher")
		}
	})
}

func (s *NATSStore) RegisterEphemeral(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ephemeral = append(s.ephemeral, key)
}

// UnregisterEphemeral drops a key from disconnect cleanup, for keys removed
// explicitly before Close.
func (s *NATSStore) UnregisterEphemeral(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.ephemeral {
		if k == key {
			s.ephemeral = append(s.ephemeral[:i], s.ephemeral[i+1:]...)
			return
		}
	}
}

func (s *NATSStore) ServerOffset() time.Duration { return s.offset }

func (s *NATSStore) ServerNow() time.Time { return time.Now().Add(s.offset) }

// Close removes this client's ephemeral keys, then drops the connection.
func (s *NATSStore) Close() error {
	s.mu.Lock()
	keys := append([]string{}, s.ephemeral...)
	s.ephemeral = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("remove ephemeral key")
		}
	}
	s.nc.Close()
	return nil
}
