package cache

// Snapshot is the value of one key at a point in time.
type Snapshot struct {
	Key     Key
	value   any
	present bool
	version uint64
	epoch   uint64
}

// Value returns the captured value.
func (s Snapshot) Value() (any, bool) {
	return s.value, s.present
}

// Version returns the version of the captured value, zero when it was absent.
func (s Snapshot) Version() uint64 {
	return s.version
}

// Snapshot captures the current value of key.
func (s *Store) Snapshot(key Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Key: key, epoch: s.stateLocked(key).epoch}
	if e, ok := s.entries[key]; ok {
		snap.value, snap.present, snap.version = e.value, true, e.version
	}
	return snap
}

// ApplyWithSnapshot captures key and applies fn to it in one step, so no
// other write can land between the two. Without upsert fn only runs on a key
// holding a value; a nil fn only captures. applied reports whether fn ran,
// in which case version is the committed version.
func (s *Store) ApplyWithSnapshot(key Key, fn Updater, upsert bool) (snap Snapshot, version uint64, applied bool) {
	s.mu.Lock()
	snap = Snapshot{Key: key, epoch: s.stateLocked(key).epoch}
	if e, ok := s.entries[key]; ok {
		snap.value, snap.present, snap.version = e.value, true, e.version
	}
	if fn == nil {
		s.mu.Unlock()
		return snap, 0, false
	}
	version, applied = s.applyLocked(key, fn, upsert)
	var listeners []func(Change)
	if applied {
		listeners = s.listenersLocked()
	}
	s.mu.Unlock()

	notify(listeners, Change{Key: key, Version: version})
	return snap, version, applied
}

// Restore puts the captured value back exactly, removing the key when it was
// empty at capture time. If the key was invalidated since the snapshot, the
// snapshot no longer describes a state the cache agrees on, so the key is
// invalidated again instead and Restore returns false.
func (s *Store) Restore(snap Snapshot) bool {
	s.mu.Lock()
	if s.stateLocked(snap.Key).epoch != snap.epoch {
		s.mu.Unlock()
		s.logger.Debug("Snapshot is stale, invalidating", "key", snap.Key.String())
		s.Invalidate(snap.Key)
		return false
	}

	var change Change
	if snap.present {
		change = Change{Key: snap.Key, Version: s.commitLocked(snap.Key, snap.value)}
	} else {
		delete(s.entries, snap.Key)
		change = Change{Key: snap.Key, Invalidated: true}
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, change)
	return true
}
