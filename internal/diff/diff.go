// Package diff implements the ordered set of (key -> Modify(value) | Delete)
// writes produced by one replay (spec §3, §4.1). A Diff is a plain value
// type: it can be built incrementally, appended to another Diff with
// last-write-wins semantics, compared structurally, and reverted against any
// kvio.Writer.
package diff

import (
	"bytes"

	"github.com/aurora-is-near/go-refiner/internal/kvio"
)

// OpKind distinguishes a write from a removal.
type OpKind uint8

const (
	// Modify sets the key to a new value.
	Modify OpKind = iota
	// Delete removes the key entirely.
	Delete
)

// Op is one ordered write in a Diff.
type Op struct {
	Key   []byte
	Kind  OpKind
	Value []byte // only meaningful when Kind == Modify
}

// Diff is an ordered sequence of Ops. Order matters for revert (undo must
// run in reverse) but equality is structural over the final effective state
// of each key, matching spec §3's "equality is structural".
type Diff struct {
	ops []Op
	// prior records, for every key ever touched, the value observed the
	// first time that key was touched (nil + present=false means the key
	// did not exist). It is populated by Builder and used by Revert.
	prior map[string]priorValue
}

type priorValue struct {
	value   []byte
	present bool
}

// Empty reports whether the diff carries no writes at all.
func (d *Diff) Empty() bool {
	return d == nil || len(d.ops) == 0
}

// Ops returns the ordered writes. Callers must not mutate the result.
func (d *Diff) Ops() []Op {
	if d == nil {
		return nil
	}
	return d.ops
}

// Equal reports structural equality: same set of keys with the same final
// effective kind/value for each, irrespective of intermediate writes to the
// same key within either diff.
func (d *Diff) Equal(other *Diff) bool {
	af := d.finalState()
	bf := other.finalState()
	if len(af) != len(bf) {
		return false
	}
	for k, av := range af {
		bv, ok := bf[k]
		if !ok || av.Kind != bv.Kind {
			return false
		}
		if av.Kind == Modify && !bytes.Equal(av.Value, bv.Value) {
			return false
		}
	}
	return true
}

func (d *Diff) finalState() map[string]Op {
	out := make(map[string]Op)
	for _, op := range d.Ops() {
		out[string(op.Key)] = op
	}
	return out
}

// Append concatenates other's writes after d's, with last-write-wins
// semantics on re-reads of the same key's effective state (spec §3:
// "append(other) concatenates writes with last-write-wins semantics").
func (d *Diff) Append(other *Diff) *Diff {
	out := &Diff{}
	out.ops = append(out.ops, d.Ops()...)
	out.ops = append(out.ops, other.Ops()...)
	out.prior = mergePrior(d, other)
	return out
}

func mergePrior(a, b *Diff) map[string]priorValue {
	merged := make(map[string]priorValue)
	if a != nil {
		for k, v := range a.prior {
			merged[k] = v
		}
	}
	if b != nil {
		for k, v := range b.prior {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged
}

// Revert undoes every key this diff touched against w, restoring each key's
// value to what it held the first time the diff's Builder observed it
// (spec §4.1: "revert must undo every key the supplied diff touched").
func (d *Diff) Revert(w kvio.Writer) {
	if d == nil {
		return
	}
	seen := make(map[string]struct{})
	for i := len(d.ops) - 1; i >= 0; i-- {
		op := d.ops[i]
		k := string(op.Key)
		if _, done := seen[k]; done {
			continue
		}
		seen[k] = struct{}{}
		pv, ok := d.prior[k]
		if !ok || !pv.present {
			w.Remove(op.Key)
			continue
		}
		w.Set(op.Key, pv.value)
	}
}

// Builder accumulates a Diff while writes happen against a base reader. It
// is the counterpart of kvio.Overlay: the overlay enforces read-your-writes
// semantics during replay, the Builder records the resulting Diff for
// storage and reconciliation (spec §4.5 step 5/7).
type Builder struct {
	base  kvio.Reader
	diff  Diff
	touch map[string]struct{}
}

// NewBuilder creates a Builder whose prior-value snapshots are taken from
// base the first time each key is written.
func NewBuilder(base kvio.Reader) *Builder {
	return &Builder{base: base, touch: make(map[string]struct{})}
}

func (b *Builder) notePrior(key string, rawKey []byte) {
	if _, ok := b.touch[key]; ok {
		return
	}
	b.touch[key] = struct{}{}
	if b.diff.prior == nil {
		b.diff.prior = make(map[string]priorValue)
	}
	if b.base == nil {
		b.diff.prior[key] = priorValue{present: false}
		return
	}
	v, ok := b.base.Get(rawKey)
	b.diff.prior[key] = priorValue{value: v, present: ok}
}

// Set implements kvio.Writer, recording a Modify op.
func (b *Builder) Set(key []byte, value []byte) {
	b.notePrior(string(key), key)
	b.diff.ops = append(b.diff.ops, Op{Key: append([]byte(nil), key...), Kind: Modify, Value: append([]byte(nil), value...)})
}

// Remove implements kvio.Writer, recording a Delete op.
func (b *Builder) Remove(key []byte) {
	b.notePrior(string(key), key)
	b.diff.ops = append(b.diff.ops, Op{Key: append([]byte(nil), key...), Kind: Delete})
}

// Diff returns the accumulated Diff. The Builder remains usable afterwards;
// callers that want an immutable snapshot should treat the result as
// read-only.
func (b *Builder) Diff() *Diff {
	out := b.diff
	return &out
}

// FromOps builds a Diff directly from a pre-ordered op list, for storage
// deserialization. No prior-value tracking is available on a Diff built this
// way, so Revert against it will fall back to removing every touched key
// rather than restoring pre-diff values; callers that need accurate revert
// semantics on a loaded diff must keep the prior snapshot alongside it in
// storage (see internal/storage).
func FromOps(ops []Op) *Diff {
	cp := make([]Op, len(ops))
	copy(cp, ops)
	return &Diff{ops: cp}
}
