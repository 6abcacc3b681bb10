// Package kvio defines the minimal key/value capability the EVM runner sees
// during a replay, and the batch overlay used to satisfy reads that happen
// inside a single multi-action receipt before any of its writes are
// committed to storage.
package kvio

// Reader is the read side of the capability: get a value and test for its
// presence, without distinguishing "absent" from "present but empty" unless
// HasKey is consulted explicitly.
type Reader interface {
	Get(key []byte) ([]byte, bool)
	HasKey(key []byte) bool
}

// Writer is the write side: set a value or remove a key entirely.
type Writer interface {
	Set(key []byte, value []byte)
	Remove(key []byte)
}

// View is the full capability bundle handed to one EVM runner call. It is
// deliberately narrow -- storage get/set/remove/has-key -- rather than the
// large multi-method trait a naive port would carry; see
// internal/evmrunner for the rest of the capability set (the action log).
type View interface {
	Reader
	Writer
}

// Overlay is a batch read/write view stacked on top of a base Reader. Writes
// land in the overlay only; reads consult the overlay first and fall back to
// the base. It exists so that, within one multi-action receipt, action N+1
// observes the writes made by action N before any of them are durably
// committed -- the same role played by the teacher's
// revm_bridge.stateDBImpl.pendingBasic/pendingStorage maps layered over a
// *state.StateDB.
type Overlay struct {
	base    Reader
	pending map[string][]byte
	deleted map[string]struct{}
}

// NewOverlay creates an overlay backed by base. base may be nil, in which
// case all reads through the overlay that are not themselves pending writes
// report absent.
func NewOverlay(base Reader) *Overlay {
	return &Overlay{
		base:    base,
		pending: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Get implements Reader. Overlay writes shadow the base; overlay deletes
// shadow the base too (both take priority over whatever the base reports).
func (o *Overlay) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if v, ok := o.pending[k]; ok {
		return v, true
	}
	if _, ok := o.deleted[k]; ok {
		return nil, false
	}
	if o.base == nil {
		return nil, false
	}
	return o.base.Get(key)
}

// HasKey implements Reader.
func (o *Overlay) HasKey(key []byte) bool {
	_, ok := o.Get(key)
	return ok
}

// Set implements Writer; the write is visible to subsequent Get calls on
// this overlay but is never pushed to the base.
func (o *Overlay) Set(key []byte, value []byte) {
	k := string(key)
	delete(o.deleted, k)
	cp := append([]byte(nil), value...)
	o.pending[k] = cp
}

// Remove implements Writer.
func (o *Overlay) Remove(key []byte) {
	k := string(key)
	delete(o.pending, k)
	o.deleted[k] = struct{}{}
}

// Writes returns the overlay's accumulated writes as ordered key/value
// (or key/nil-for-delete) entries, in an iteration order the caller should
// treat as insertion order is not guaranteed by a map; callers that need a
// stable Diff should use diff.Builder instead of reading this map directly.
func (o *Overlay) Writes() (set map[string][]byte, removed map[string]struct{}) {
	return o.pending, o.deleted
}
