// Package dispatch runs mutations optimistically: the expected effect is
// written to the cache before the request is sent and rolled back to the
// exact prior value if the request fails.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/realtime-chatroom/client/cache"
)

// ErrSuperseded is returned by a call that a newer call on the same target
// took over before it completed. Its outcome is not applied; the newer
// call's is.
var ErrSuperseded = errors.New("dispatch: superseded by a newer mutation")

// Patch is the optimistic effect of an action on one key. Apply only runs
// on a key holding a value unless Upsert is set. A nil Apply only guards the
// key: pending fetches are cancelled and the value is rolled back on failure.
type Patch struct {
	Key    cache.Key
	Apply  cache.Updater
	Upsert bool
}

// Action is one mutation.
type Action struct {
	Name string
	// Target names the entity the action mutates, such as a message id. A
	// call on a target replaces any call on that target still in flight. An
	// empty Target never replaces anything.
	Target  string
	Patches []Patch
	Request Request
	// Commit replaces optimistic state with the server's response.
	Commit func(store *cache.Store, body []byte) error
}

// Dispatcher applies actions to a store.
type Dispatcher struct {
	store  *cache.Store
	doer   Doer
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

// call is the rollback context of one Dispatch. It is never shared between
// calls; a superseding call copies what it takes over. Dirty keys were
// written by someone else after their baseline was taken and can only be
// invalidated on rollback.
type call struct {
	action     string
	target     string
	keys       []cache.Key
	baselines  map[cache.Key]cache.Snapshot
	expect     map[cache.Key]uint64
	dirty      map[cache.Key]bool
	superseded bool
}

// New creates a dispatcher. Store listeners run while the dispatcher commits
// and must not dispatch.
func New(store *cache.Store, doer Doer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		doer:     doer,
		logger:   logger,
		inflight: make(map[string]*call),
	}
}

// Dispatch runs a: cancel pending fetches of its keys, snapshot them, apply
// the patches, send the request, then commit or roll back. Cancelling ctx
// aborts the request, which rolls the call back.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) ([]byte, error) {
	c := d.begin(a)
	body, err := d.doer.Do(ctx, a.Request)
	return d.finish(c, a, body, err)
}

// InFlight reports whether a call on target is outstanding.
func (d *Dispatcher) InFlight(target string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[target]
	return ok
}

func (d *Dispatcher) begin(a Action) *call {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := &call{
		action:    a.Name,
		target:    a.Target,
		baselines: make(map[cache.Key]cache.Snapshot),
		expect:    make(map[cache.Key]uint64),
		dirty:     make(map[cache.Key]bool),
	}
	if a.Target != "" {
		if prev, ok := d.inflight[a.Target]; ok {
			d.supersede(c, prev)
		}
		d.inflight[a.Target] = c
	}

	for _, p := range a.Patches {
		d.store.CancelPending(p.Key)
		snap, version, applied := d.store.ApplyWithSnapshot(p.Key, p.Apply, p.Upsert)
		if _, seen := c.baselines[p.Key]; !seen {
			c.keys = append(c.keys, p.Key)
			c.baselines[p.Key] = snap
		} else if snap.Version() != c.expect[p.Key] {
			c.dirty[p.Key] = true
		}
		if applied {
			c.expect[p.Key] = version
		} else {
			c.expect[p.Key] = snap.Version()
		}
	}
	return c
}

// supersede moves prev's rollback context to c. The baselines prev captured
// predate its own optimistic writes, so they are the ones c rolls back to.
func (d *Dispatcher) supersede(c, prev *call) {
	d.logger.Debug("Superseding in-flight mutation", "previous", prev.action, "action", c.action, "target", c.target)
	prev.superseded = true
	for _, key := range prev.keys {
		c.keys = append(c.keys, key)
		c.baselines[key] = prev.baselines[key]
		c.expect[key] = prev.expect[key]
		c.dirty[key] = prev.dirty[key]
	}
}

func (d *Dispatcher) finish(c *call, a Action, body []byte, err error) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.superseded {
		d.logger.Debug("Discarding superseded mutation result", "action", a.Name, "error", err)
		return nil, ErrSuperseded
	}
	if c.target != "" && d.inflight[c.target] == c {
		delete(d.inflight, c.target)
	}

	if err != nil {
		d.logger.Info("Mutation failed, rolling back", "action", a.Name, "error", err)
		d.rollback(c)
		return nil, err
	}

	if a.Commit != nil {
		if cerr := a.Commit(d.store, body); cerr != nil {
			d.logger.Warn("Failed to apply mutation response, refetching", "action", a.Name, "error", cerr)
			d.store.Invalidate(c.keys...)
		}
	}
	return body, nil
}

// rollback restores every key the call still owns. A key someone else wrote
// to meanwhile cannot be restored without losing that write, so it is
// invalidated and refetched instead.
func (d *Dispatcher) rollback(c *call) {
	for i := len(c.keys) - 1; i >= 0; i-- {
		key := c.keys[i]
		if c.dirty[key] || d.store.Version(key) != c.expect[key] {
			d.logger.Debug("Key changed during mutation, invalidating", "key", key.String())
			d.store.Invalidate(key)
			continue
		}
		d.store.Restore(c.baselines[key])
	}
}
