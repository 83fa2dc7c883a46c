// Package calendar owns a collection of event definitions. It expands them
// into occurrences for date ranges and applies scoped edits and deletes.
//
// Writers are serialized and publish immutable snapshots; readers never wait
// on storage and never observe a half-applied edit.
package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
	"github.com/cyp0633/calrecur/storage"
	"github.com/cyp0633/calrecur/storage/memory"
)

// Config holds the optional collaborators of a Calendar.
type Config struct {
	Logger *slog.Logger
	// Engine configures stepping and the expansion cache. The zero value
	// means recurrence.DefaultEngineConfig.
	Engine recurrence.EngineConfig
	// Now returns the current time; it decides "today" and timestamps.
	Now func() time.Time
	// NewID generates definition ids.
	NewID func() string
}

// snapshot is an immutable view of the collection. It is replaced, never
// modified, once published.
type snapshot struct {
	revision uint64
	defs     []event.Definition
	byID     map[string]int
}

func newSnapshot(revision uint64, defs []event.Definition) *snapshot {
	s := &snapshot{revision: revision, defs: defs, byID: make(map[string]int, len(defs))}
	for i := range defs {
		s.byID[defs[i].ID] = i
	}
	return s
}

func (s *snapshot) get(id string) (*event.Definition, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.defs[i], true
}

// Calendar is the single owner of a definition collection.
type Calendar struct {
	store    storage.Storage
	logger   *slog.Logger
	expander *Expander
	cache    *recurrence.Cache[[]event.Occurrence]
	now      func() time.Time
	newID    func() string

	// writeMu serializes mutations and flushes.
	writeMu sync.Mutex
	// snapMu guards only the snapshot pointer.
	snapMu sync.RWMutex
	snap   *snapshot
	dirty  atomic.Bool
}

// New loads the collection from store. A nil store keeps everything in memory.
func New(ctx context.Context, store storage.Storage, cfg Config) (*Calendar, error) {
	if store == nil {
		store = memory.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Engine == (recurrence.EngineConfig{}) {
		cfg.Engine = recurrence.DefaultEngineConfig
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	loaded, err := store.LoadAll(ctx)
	if err != nil {
		return nil, &Error{Kind: KindPersistence, Message: "failed to load definitions", Err: err}
	}

	defs := make([]event.Definition, 0, len(loaded))
	seen := make(map[string]bool, len(loaded))
	for _, d := range loaded {
		if d.ID == "" || seen[d.ID] {
			cfg.Logger.Warn("skipping definition with missing or duplicate id", "id", d.ID)
			continue
		}
		seen[d.ID] = true
		if err := d.Validate(); err != nil {
			cfg.Logger.Warn("loaded definition breaks invariants", "id", d.ID, "error", err)
		}
		defs = append(defs, d)
	}

	c := &Calendar{
		store:    store,
		logger:   cfg.Logger,
		expander: NewExpander(recurrence.NewEngineWithConfig(cfg.Engine), cfg.Logger),
		now:      cfg.Now,
		newID:    cfg.NewID,
		snap:     newSnapshot(1, defs),
	}
	if cfg.Engine.CacheEnabled {
		c.cache = recurrence.NewCache[[]event.Occurrence](cfg.Engine.CacheConfig)
	}

	c.logger.Info("calendar loaded", "definitions", len(defs))
	return c, nil
}

// Close stops background work. The calendar must not be used afterwards.
func (c *Calendar) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

func (c *Calendar) current() *snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

func (c *Calendar) publish(s *snapshot) {
	c.snapMu.Lock()
	c.snap = s
	c.snapMu.Unlock()
}

// Revision increases with every committed mutation.
func (c *Calendar) Revision() uint64 {
	return c.current().revision
}

// CurrentDate returns today's date.
func (c *Calendar) CurrentDate() time.Time {
	return recurrence.DateOf(c.now())
}

// Expand returns the sorted occurrences within [from, to], both inclusive.
// The returned slice is the caller's; the occurrences it holds are shared
// with the cache and must be treated as read-only.
func (c *Calendar) Expand(from, to time.Time) ([]event.Occurrence, error) {
	snap := c.current()
	if c.cache == nil {
		return c.expander.Expand(snap.defs, from, to)
	}

	key := recurrence.Key("expand",
		strconv.FormatUint(snap.revision, 10),
		recurrence.DateOf(from).Format(recurrence.DateLayout),
		recurrence.DateOf(to).Format(recurrence.DateLayout))
	if cached, ok := c.cache.Get(key); ok {
		return append([]event.Occurrence(nil), cached...), nil
	}

	occs, err := c.expander.Expand(snap.defs, from, to)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, occs)
	return append([]event.Occurrence(nil), occs...), nil
}

// Today returns the occurrences of the current date.
func (c *Calendar) Today() ([]event.Occurrence, error) {
	today := c.CurrentDate()
	return c.Expand(today, today)
}

// NextDays returns the occurrences of the n days starting today.
func (c *Calendar) NextDays(n int) ([]event.Occurrence, error) {
	if n < 1 {
		return nil, invalidRange("day count %d is below 1", n)
	}
	today := c.CurrentDate()
	return c.Expand(today, recurrence.AddDays(today, n-1))
}

// UpcomingDates returns up to limit dates of a definition from today on.
// Masters follow their rule without override suppression; other definitions
// yield their own date when it is not past.
func (c *Calendar) UpcomingDates(id string, limit int) ([]time.Time, error) {
	d, ok := c.current().get(id)
	if !ok {
		return nil, notFound(id)
	}
	today := c.CurrentDate()
	if !d.IsMaster() {
		if d.IsCancellation() || d.EndDate.Before(today) {
			return []time.Time{}, nil
		}
		return []time.Time{d.StartDate}, nil
	}

	dates, truncated := c.expander.Engine().Upcoming(d.Series(), today, limit)
	if truncated {
		c.logger.Warn("upcoming dates truncated at iteration ceiling", "id", id, "returned", len(dates))
	}
	if dates == nil {
		dates = []time.Time{}
	}
	return dates, nil
}

// Get returns a copy of one definition.
func (c *Calendar) Get(id string) (event.Definition, error) {
	d, ok := c.current().get(id)
	if !ok {
		return event.Definition{}, notFound(id)
	}
	return d.Clone(), nil
}

// Definitions returns copies of all definitions in collection order.
func (c *Calendar) Definitions() []event.Definition {
	snap := c.current()
	out := make([]event.Definition, len(snap.defs))
	for i := range snap.defs {
		out[i] = snap.defs[i].Clone()
	}
	return out
}

// Dirty reports whether a committed mutation has not reached storage.
func (c *Calendar) Dirty() bool {
	return c.dirty.Load()
}

// Flush writes the whole collection to storage when it is dirty.
func (c *Calendar) Flush(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.dirty.Load() {
		return nil
	}
	snap := c.current()
	if err := c.store.SaveAll(ctx, snap.defs); err != nil {
		c.logger.Error("flush failed", "revision", snap.revision, "error", err)
		return &Error{Kind: KindPersistence, Message: "flush failed", Err: err}
	}
	c.dirty.Store(false)
	c.logger.Info("flushed unsaved changes", "revision", snap.revision, "definitions", len(snap.defs))
	return nil
}

// mutate runs fn on a private copy of the collection and publishes the
// result in one swap. An fn error leaves the calendar untouched. A storage
// error is returned after the swap, wrapped as a persistence failure.
func (c *Calendar) mutate(ctx context.Context, op string, fn func(*tx) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.current()
	t := newTx(cur, c.now().UTC())
	if err := fn(t); err != nil {
		return err
	}
	if !t.changed() {
		return nil
	}

	next := t.commit(cur.revision + 1)
	c.publish(next)
	change := t.changeset()
	c.logger.Debug("committed mutation",
		"op", op,
		"revision", next.revision,
		"upserted", len(change.Upserted),
		"deleted", len(change.Deleted))

	return c.persist(ctx, op, change, next)
}

// persist writes one committed change. After a failure the next write saves
// the full snapshot, since the failed change is missing from storage.
func (c *Calendar) persist(ctx context.Context, op string, change storage.Changeset, snap *snapshot) error {
	var err error
	if c.dirty.Load() {
		err = c.store.SaveAll(ctx, snap.defs)
	} else {
		err = storage.Apply(ctx, c.store, change, snap.defs)
	}
	if err != nil {
		c.dirty.Store(true)
		c.logger.Error("failed to persist mutation", "op", op, "revision", snap.revision, "error", err)
		return &Error{
			Kind:    KindPersistence,
			Message: fmt.Sprintf("%s applied in memory but not saved", op),
			Err:     err,
		}
	}
	c.dirty.Store(false)
	return nil
}
