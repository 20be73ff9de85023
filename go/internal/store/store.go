// Package store wraps the external replicated key-value store behind the
// small surface the session layer needs: whole-value put/get, subtree
// delete, ordered per-key watch streams, ephemeral presence keys, and a
// server clock offset for drift-corrected countdowns.
package store

import (
	"context"
	"strings"
	"time"
)

// Event is one observed change to a watched key. The store guarantees each
// watcher an ordered stream of whole-value updates per key; nothing is
// guaranteed about ordering across different writers.
type Event struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Subscription detaches a watcher. Unsubscribe must take effect
// synchronously so a torn-down session cannot receive stale callbacks.
type Subscription interface {
	Unsubscribe()
}

// Store is the replicated store adapter.
type Store interface {
	// Put replaces the whole value at key.
	Put(ctx context.Context, key string, value []byte) error
	// Get reads the current value, returning a not-found application
	// error when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes a single key.
	Delete(ctx context.Context, key string) error
	// DeleteTree removes the key and everything beneath it.
	DeleteTree(ctx context.Context, prefix string) error
	// List returns the current values under a prefix, keyed by full key.
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	// Watch invokes fn for every subsequent change matching pattern.
	// Patterns use dot-separated tokens with "*" and ">" wildcards.
	Watch(ctx context.Context, pattern string, fn func(Event)) (Subscription, error)
	// RegisterEphemeral marks a key for removal when this client
	// disconnects from the store.
	RegisterEphemeral(key string)
	// ServerOffset is the measured difference between the store's server
	// clock and the local clock.
	ServerOffset() time.Duration
	// ServerNow is the local clock shifted onto the server clock.
	ServerNow() time.Time
	// Close detaches from the store, removing ephemeral keys first.
	Close() error
}

// SessionKeys builds the store layout for one session subtree.
type SessionKeys struct {
	id string
}

// KeysFor returns the key layout for a session code.
func KeysFor(sessionID string) SessionKeys {
	return SessionKeys{id: sessionID}
}

func (k SessionKeys) Root() string   { return "sessions." + k.id }
func (k SessionKeys) Data() string   { return k.Root() + ".data" }
func (k SessionKeys) Timer() string  { return k.Root() + ".timer" }
func (k SessionKeys) Reveal() string { return k.Root() + ".reveal" }

func (k SessionKeys) UsersPrefix() string  { return k.Root() + ".users" }
func (k SessionKeys) UsersPattern() string { return k.UsersPrefix() + ".>" }
func (k SessionKeys) User(userID string) string {
	return k.UsersPrefix() + "." + userID
}

// UserFromKey extracts the user ID from a presence key, or "" when the key
// is not under the users subtree.
func (k SessionKeys) UserFromKey(key string) string {
	prefix := k.UsersPrefix() + "."
	if !strings.HasPrefix(key, prefix) {
		return ""
	}
	return strings.TrimPrefix(key, prefix)
}

// MatchKey reports whether a dot-separated key matches a watch pattern.
// "*" matches exactly one token, ">" matches one or more trailing tokens.
func MatchKey(pattern, key string) bool {
	pt := strings.Split(pattern, ".")
	kt := strings.Split(key, ".")
	for i, p := range pt {
		if p == ">" {
			return len(kt) > i
		}
		if i >= len(kt) {
			return false
		}
		if p != "*" && p != kt[i] {
			return false
		}
	}
	return len(pt) == len(kt)
}
