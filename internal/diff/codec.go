package diff

import (
	"encoding/binary"
	"fmt"
)

// MarshalBinary encodes the diff's ops and prior-value snapshots into a flat
// byte format, for persistence in internal/storage. There is no library in
// the pack for a generic "ordered key/value diff" wire format, so this is a
// small hand-rolled length-prefixed encoding, the same style go-ethereum's
// own rlp-adjacent internal encodings use for fixed, narrowly-scoped
// records.
func (d *Diff) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = appendU32(buf, uint32(len(d.Ops())))
	for _, op := range d.Ops() {
		buf = appendBytes(buf, op.Key)
		buf = append(buf, byte(op.Kind))
		if op.Kind == Modify {
			buf = appendBytes(buf, op.Value)
		}
	}
	buf = appendU32(buf, uint32(len(d.prior)))
	for k, pv := range d.prior {
		buf = appendBytes(buf, []byte(k))
		if pv.present {
			buf = append(buf, 1)
			buf = appendBytes(buf, pv.value)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes a diff previously produced by MarshalBinary.
func (d *Diff) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	n, err := r.u32()
	if err != nil {
		return err
	}
	ops := make([]Op, 0, n)
	for i := uint32(0); i < n; i++ {
		key, err := r.bytes()
		if err != nil {
			return err
		}
		kindByte, err := r.byte()
		if err != nil {
			return err
		}
		op := Op{Key: key, Kind: OpKind(kindByte)}
		if op.Kind == Modify {
			val, err := r.bytes()
			if err != nil {
				return err
			}
			op.Value = val
		}
		ops = append(ops, op)
	}
	np, err := r.u32()
	if err != nil {
		return err
	}
	prior := make(map[string]priorValue, np)
	for i := uint32(0); i < np; i++ {
		k, err := r.bytes()
		if err != nil {
			return err
		}
		present, err := r.byte()
		if err != nil {
			return err
		}
		if present == 1 {
			v, err := r.bytes()
			if err != nil {
				return err
			}
			prior[string(k)] = priorValue{value: v, present: true}
		} else {
			prior[string(k)] = priorValue{present: false}
		}
	}
	d.ops = ops
	d.prior = prior
	return nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendU32(buf, uint32(len(v)))
	return append(buf, v...)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, fmt.Errorf("diff: truncated u32 at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, fmt.Errorf("diff: truncated byte at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("diff: truncated bytes field at offset %d", r.pos)
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return append([]byte(nil), out...), nil
}
