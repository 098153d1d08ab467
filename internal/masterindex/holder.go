package masterindex

import "sync/atomic"

// Holder publishes the latest snapshot to readers. Swap is a single
// atomic pointer update, so a reader either sees the previous complete
// index or the new complete index, never a partial one.
type Holder struct {
	current atomic.Pointer[MasterIndex]
	version atomic.Int64
}

// NewHolder returns a holder primed with an empty snapshot so readers
// never need a nil check.
func NewHolder() *Holder {
	h := &Holder{}
	h.current.Store(Build(0, Input{}))
	return h
}

// Current returns the latest complete snapshot.
func (h *Holder) Current() *MasterIndex {
	return h.current.Load()
}

// NextVersion reserves the version number for the next rebuild.
func (h *Holder) NextVersion() int {
	return int(h.version.Add(1))
}

// Swap publishes a newly built snapshot, discarding the previous one.
func (h *Holder) Swap(idx *MasterIndex) {
	h.current.Store(idx)
}
