// Package reveal synchronizes card text visibility across a session. The
// host picks a hide mode; every peer applies the observed record verbatim,
// so reveal state is trivially last writer wins.
package reveal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/models"
	"github.com/dhanucoding/retro-app/go/internal/permission"
	"github.com/dhanucoding/retro-app/go/internal/store"
)

// Identity supplies the session facts the permission gate needs.
type Identity interface {
	Connected() bool
	IsHost() bool
}

// Coordinator holds the local visibility mode and mirrors it to the
// session's reveal document.
type Coordinator struct {
	mu       sync.Mutex
	identity Identity
	mode     models.RevealMode

	st  store.Store // nil while detached
	key string

	warnOnce *sync.Once
	onMode   func(models.RevealMode)
	onNotice func(string)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithModeFunc registers the renderer callback. It runs after every applied
// record, even when the mode is unchanged, so a re-render is never skipped.
func WithModeFunc(fn func(models.RevealMode)) Option {
	return func(c *Coordinator) { c.onMode = fn }
}

// WithNoticeFunc registers the callback for user-facing visibility notices.
// It fires only when a remote record actually changes the mode, and never
// for the host who made the change.
func WithNoticeFunc(fn func(string)) Option {
	return func(c *Coordinator) { c.onNotice = fn }
}

// New returns a coordinator with text fully visible.
func New(identity Identity, opts ...Option) *Coordinator {
	c := &Coordinator{
		identity: identity,
		mode:     models.RevealModeNone,
		warnOnce: &sync.Once{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach binds the coordinator to a session's reveal document.
func (c *Coordinator) Attach(st store.Store, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = st
	c.key = key
	c.warnOnce = &sync.Once{}
}

// Detach unbinds from the store without touching local state.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = nil
	c.key = ""
}

// Mode returns the current visibility mode.
func (c *Coordinator) Mode() models.RevealMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Seed writes the current mode to the store only when no reveal document
// exists yet, so a rejoining host never clobbers live state. Safe to call
// repeatedly.
func (c *Coordinator) Seed(ctx context.Context) error {
	c.mu.Lock()
	st, key := c.st, c.key
	rec := c.recordLocked()
	c.mu.Unlock()
	if st == nil {
		return nil
	}

	if _, err := st.Get(ctx, key); err == nil {
		return nil
	} else if !apperrors.Is(err, apperrors.KindNotFound) {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return st.Put(ctx, key, payload)
}

// SetMode switches the visibility mode and publishes it. Host-only while
// connected.
func (c *Coordinator) SetMode(mode models.RevealMode) error {
	if !mode.Valid() {
		return apperrors.Validationf("unknown hide mode %q", mode)
	}
	if !permission.CanControlReveal(c.identity.Connected(), c.identity.IsHost()) {
		return apperrors.Forbiddenf("only the session host can change text visibility")
	}

	c.mu.Lock()
	c.mode = mode
	rec := c.recordLocked()
	c.mu.Unlock()

	c.push(rec)
	c.emit(mode)
	return nil
}

// Toggle flips between fully hidden and fully visible, the two modes a
// solo or offline user can reach.
func (c *Coordinator) Toggle() error {
	next := models.RevealModeAll
	if c.Mode() == models.RevealModeAll {
		next = models.RevealModeNone
	}
	return c.SetMode(next)
}

// ApplyRecord applies a reveal document observed from the store. The
// renderer callback always runs; the notice fires only when the mode
// actually changed, and not for the host whose own write is echoing back.
func (c *Coordinator) ApplyRecord(rec models.RevealRecord) {
	mode := rec.HideMode

	c.mu.Lock()
	changed := c.mode != mode
	c.mode = mode
	c.mu.Unlock()

	c.emit(mode)
	if changed && !c.identity.IsHost() && c.onNotice != nil {
		c.onNotice(mode.Describe())
	}
}

// ResetLocal returns to fully visible without writing to the store, for
// session teardown observed remotely.
func (c *Coordinator) ResetLocal() {
	c.mu.Lock()
	c.mode = models.RevealModeNone
	c.mu.Unlock()
	c.emit(models.RevealModeNone)
}

func (c *Coordinator) recordLocked() models.RevealRecord {
	var lastUpdated int64
	if c.st != nil {
		lastUpdated = c.st.ServerNow().UnixMilli()
	}
	return models.RevealRecord{
		IsTextHidden: c.mode == models.RevealModeAll,
		HideMode:     c.mode,
		LastUpdated:  lastUpdated,
	}
}

// push is best-effort: a failed write never rolls back local state.
func (c *Coordinator) push(rec models.RevealRecord) {
	c.mu.Lock()
	st, key, once := c.st, c.key, c.warnOnce
	c.mu.Unlock()
	if st == nil {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Msg("marshal reveal record")
		return
	}
	if err := st.Put(context.Background(), key, payload); err != nil {
		once.Do(func() {
			log.Warn().Err(err).Msg("reveal sync unavailable, continuing locally")
		})
	}
}

func (c *Coordinator) emit(mode models.RevealMode) {
	if c.onMode != nil {
		c.onMode(mode)
	}
}
