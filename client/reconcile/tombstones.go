package reconcile

// maxTombstones bounds the deleted ids remembered per room.
const maxTombstones = 256

// tombstones remembers the most recently deleted message ids of a room, so
// a creation delivered after its deletion is not applied.
type tombstones struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newTombstones(size int) *tombstones {
	return &tombstones{
		ids:  make(map[string]struct{}, size),
		ring: make([]string, 0, size),
	}
}

func (t *tombstones) add(id string) {
	if _, ok := t.ids[id]; ok {
		return
	}
	if len(t.ring) < cap(t.ring) {
		t.ring = append(t.ring, id)
	} else {
		delete(t.ids, t.ring[t.next])
		t.ring[t.next] = id
		t.next = (t.next + 1) % len(t.ring)
	}
	t.ids[id] = struct{}{}
}

func (t *tombstones) has(id string) bool {
	_, ok := t.ids[id]
	return ok
}
