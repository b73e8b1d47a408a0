// Package cache is the client-side entity cache. Every write goes through
// Set, whose updater runs under the store lock, so a read-modify-write is
// atomic. Updaters must not block and must not mutate the prior value.
// A write that lands while a fetch of the same key is in flight is replayed
// on top of the fetched value, so updaters may run more than once.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrFetchCancelled is returned by Fetch when the key was cancelled or
// invalidated while the load was in flight. The loaded value is discarded.
var ErrFetchCancelled = errors.New("cache: fetch cancelled")

// Updater computes the next value of a key. ok is false when the key holds
// no value.
type Updater func(prev any, ok bool) any

// Loader loads the authoritative value of a key.
type Loader func(ctx context.Context) (any, error)

// Change describes a committed write or an invalidation.
type Change struct {
	Key         Key
	Version     uint64
	Invalidated bool
}

type entry struct {
	value   any
	version uint64
}

// keyState survives invalidation of the entry itself.
type keyState struct {
	epoch    uint64 // bumped by Invalidate
	fetchGen uint64 // bumped by Invalidate and CancelPending
	pending  *pendingFetch
}

type pendingFetch struct {
	cancel context.CancelFunc
	replay []Updater
}

// Store is a keyed, versioned cache.
type Store struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	states    map[Key]*keyState
	clock     uint64
	listeners map[uint64]func(Change)
	nextID    uint64
	group     singleflight.Group
	logger    *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries:   make(map[Key]*entry),
		states:    make(map[Key]*keyState),
		listeners: make(map[uint64]func(Change)),
		logger:    logger,
	}
}

// Get returns the value under key.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Version returns the version of the value under key, zero when absent.
func (s *Store) Version(key Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.version
	}
	return 0
}

// Set replaces the value under key with fn's result and returns the new
// version. fn receives a nil prev and ok=false when the key is empty.
func (s *Store) Set(key Key, fn Updater) uint64 {
	s.mu.Lock()
	version, _ := s.applyLocked(key, fn, true)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, Change{Key: key, Version: version})
	return version
}

// SetIfPresent is Set for keys that already hold a value. It reports false,
// leaving the value untouched, when the key is empty. fn still applies to
// the result of a fetch of key in flight.
func (s *Store) SetIfPresent(key Key, fn func(prev any) any) (uint64, bool) {
	s.mu.Lock()
	version, ok := s.applyLocked(key, func(prev any, _ bool) any { return fn(prev) }, false)
	if !ok {
		s.mu.Unlock()
		return 0, false
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, Change{Key: key, Version: version})
	return version, true
}

// Put stores value under key.
func (s *Store) Put(key Key, value any) uint64 {
	return s.Set(key, func(any, bool) any { return value })
}

// Invalidate drops the value under key and aborts any fetch in flight for
// it. Snapshots taken earlier can no longer be restored.
func (s *Store) Invalidate(keys ...Key) {
	s.mu.Lock()
	var cancels []context.CancelFunc
	for _, key := range keys {
		delete(s.entries, key)
		st := s.stateLocked(key)
		st.epoch++
		st.fetchGen++
		if st.pending != nil {
			cancels = append(cancels, st.pending.cancel)
			st.pending = nil
		}
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, key := range keys {
		notify(listeners, Change{Key: key, Invalidated: true})
	}
}

// InvalidateWhere invalidates every cached key matching match.
func (s *Store) InvalidateWhere(match func(Key) bool) {
	s.mu.Lock()
	var keys []Key
	for key := range s.entries {
		if match(key) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()

	if len(keys) > 0 {
		s.Invalidate(keys...)
	}
}

// CancelPending aborts the fetch in flight for key, if any. The cached value
// is left untouched.
func (s *Store) CancelPending(key Key) {
	s.mu.Lock()
	st := s.stateLocked(key)
	st.fetchGen++
	pending := st.pending
	st.pending = nil
	s.mu.Unlock()

	if pending != nil {
		pending.cancel()
	}
}

// Fetch loads key through load and commits the result unless the key was
// cancelled or invalidated meanwhile. Concurrent fetches of one key share a
// single load. ctx only bounds the caller's wait; the load itself runs until
// it completes or CancelPending aborts it.
func (s *Store) Fetch(ctx context.Context, key Key, load Loader) (any, error) {
	ch := s.group.DoChan(key.String(), func() (any, error) {
		return s.load(ctx, key, load)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (s *Store) load(parent context.Context, key Key, load Loader) (any, error) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	pending := &pendingFetch{cancel: cancel}
	s.mu.Lock()
	st := s.stateLocked(key)
	gen := st.fetchGen
	st.pending = pending
	s.mu.Unlock()

	value, err := load(ctx)

	s.mu.Lock()
	if st.pending == pending {
		st.pending = nil
	}
	if st.fetchGen != gen {
		s.mu.Unlock()
		s.logger.Debug("Discarding cancelled fetch", "key", key.String())
		return nil, ErrFetchCancelled
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	for _, fn := range pending.replay {
		value = fn(value, true)
	}
	version := s.commitLocked(key, value)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, Change{Key: key, Version: version})
	return value, nil
}

// Pending reports whether a fetch for key is in flight.
func (s *Store) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return ok && st.pending != nil
}

// OnChange registers fn for every committed change. The returned func
// removes it. fn runs outside the store lock and may read the store.
func (s *Store) OnChange(fn func(Change)) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Keys returns every key currently holding a value.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// applyLocked runs fn against the current value of key and commits the
// result. Without upsert an empty key is left alone. Either way fn is queued
// for replay onto a fetch in flight, whose result supersedes the current
// value.
func (s *Store) applyLocked(key Key, fn Updater, upsert bool) (uint64, bool) {
	if st, ok := s.states[key]; ok && st.pending != nil {
		st.pending.replay = append(st.pending.replay, fn)
	}
	e, ok := s.entries[key]
	if !ok && !upsert {
		return 0, false
	}
	var prev any
	if ok {
		prev = e.value
	}
	return s.commitLocked(key, fn(prev, ok)), true
}

func (s *Store) commitLocked(key Key, value any) uint64 {
	s.clock++
	s.entries[key] = &entry{value: value, version: s.clock}
	return s.clock
}

func (s *Store) stateLocked(key Key) *keyState {
	st, ok := s.states[key]
	if !ok {
		st = &keyState{}
		s.states[key] = st
	}
	return st
}

func (s *Store) listenersLocked() []func(Change) {
	if len(s.listeners) == 0 {
		return nil
	}
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
