// Package legacy implements the four historical on-wire SubmitResult
// layouts the engine has produced over its lifetime, and the try-in-order
// decoder spec §4.5 step 6 and spec §9 require be preserved exactly ("do
// not modernize this to a single shape"). Grounded on
// original_source/refiner-lib/src/legacy.rs: SubmitResult (current, here
// "V7"), SubmitResultLegacyV1, SubmitResultLegacyV2, SubmitResultLegacyV3,
// and their From conversions into the current shape.
package legacy

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// StatusTag is the decoded TransactionStatus discriminant, carried into
// hashchain metadata as part of HashchainOutputKind (spec §4.7).
type StatusTag uint8

const (
	StatusSucceed StatusTag = iota
	StatusRevert
	StatusOutOfGas
	StatusOutOfFund
	StatusOutOfOffset
	StatusCallTooDeep
)

// Status is the decoded TransactionStatus value: a discriminant plus, for
// Succeed/Revert, the associated output bytes.
type Status struct {
	Tag    StatusTag
	Output []byte // meaningful when Tag is StatusSucceed or StatusRevert
}

// Log is one decoded EVM log, normalized to the current (address-bearing)
// shape regardless of which legacy layout it was read from.
type Log struct {
	Address [20]byte
	Topics  [][32]byte
	Data    []byte
}

// SubmitResult is the engine's current, normalized decode of a Submit-kind
// replay's output bytes, regardless of which on-wire shape produced it.
type SubmitResult struct {
	Status  Status
	GasUsed uint64
	Logs    []Log
}

// OutputKindTag records which on-wire shape the bytes were actually
// decoded as, for hashchain metadata reconstruction (spec §4.7's
// HashchainOutputKind: SubmitResultLegacyV1|V2|V3|V7).
type OutputKindTag uint8

const (
	OutputKindV7 OutputKindTag = iota
	OutputKindLegacyV1
	OutputKindLegacyV2
	OutputKindLegacyV3
)

var errTruncated = errors.New("legacy: truncated submit result")

// DecodeSubmitResult tries each on-wire shape in order -- current (V7)
// first, then LegacyV1, LegacyV2, LegacyV3 -- exactly mirroring
// decode_submit_result's or_else chain in legacy.rs. The first shape that
// parses without error wins; callers must not skip shapes even if an
// earlier one "looks close", since borsh's permissive tag matching means a
// legacy buffer can coincidentally parse as a different legacy shape.
func DecodeSubmitResult(data []byte) (SubmitResult, OutputKindTag, error) {
	if sr, err := decodeV7(data); err == nil {
		return sr, OutputKindV7, nil
	}
	if sr, err := decodeLegacyV1(data); err == nil {
		return sr, OutputKindLegacyV1, nil
	}
	if sr, err := decodeLegacyV2(data); err == nil {
		return sr, OutputKindLegacyV2, nil
	}
	if sr, err := decodeLegacyV3(data); err == nil {
		return sr, OutputKindLegacyV3, nil
	}
	return SubmitResult{}, 0, fmt.Errorf("legacy: no known SubmitResult shape matched %d bytes", len(data))
}

// decodeV7 parses the current shape: an explicit version byte (7),
// TransactionStatus, gas_used (u64 LE), and Vec<ResultLog> where each
// ResultLog carries its own 20-byte address.
func decodeV7(data []byte) (SubmitResult, error) {
	r := &cursor{buf: data}
	version, err := r.u8()
	if err != nil || version != 7 {
		return SubmitResult{}, errTruncated
	}
	status, err := readStatus(r)
	if err != nil {
		return SubmitResult{}, err
	}
	gasUsed, err := r.u64()
	if err != nil {
		return SubmitResult{}, err
	}
	logs, err := readLogsWithAddress(r)
	if err != nil {
		return SubmitResult{}, err
	}
	if !r.exhausted() {
		return SubmitResult{}, errTruncated
	}
	return SubmitResult{Status: status, GasUsed: gasUsed, Logs: logs}, nil
}

// decodeLegacyV1 parses {status, gas_used, logs: Vec<ResultLog>} -- like V7
// but with no leading version byte (ResultLog here already carries an
// address per legacy.rs's direct `logs: Vec<ResultLog>` field).
func decodeLegacyV1(data []byte) (SubmitResult, error) {
	r := &cursor{buf: data}
	status, err := readStatus(r)
	if err != nil {
		return SubmitResult{}, err
	}
	gasUsed, err := r.u64()
	if err != nil {
		return SubmitResult{}, err
	}
	logs, err := readLogsWithAddress(r)
	if err != nil {
		return SubmitResult{}, err
	}
	if !r.exhausted() {
		return SubmitResult{}, errTruncated
	}
	return SubmitResult{Status: status, GasUsed: gasUsed, Logs: logs}, nil
}

// decodeLegacyV2 parses {status, gas_used, logs: Vec<ResultLogV1>} --
// ResultLogV1 has no address field; the zero address is substituted on
// conversion (legacy.rs's `ResultLogV1 -> ResultLog` impl).
func decodeLegacyV2(data []byte) (SubmitResult, error) {
	r := &cursor{buf: data}
	status, err := readStatus(r)
	if err != nil {
		return SubmitResult{}, err
	}
	gasUsed, err := r.u64()
	if err != nil {
		return SubmitResult{}, err
	}
	logs, err := readLogsNoAddress(r)
	if err != nil {
		return SubmitResult{}, err
	}
	if !r.exhausted() {
		return SubmitResult{}, errTruncated
	}
	return SubmitResult{Status: status, GasUsed: gasUsed, Logs: logs}, nil
}

// decodeLegacyV3 parses {status: bool, gas_used, result: Vec<u8>, logs:
// Vec<ResultLogV1>}, the oldest shape, predating the TransactionStatus
// enum: status=true means Succeed(result), status=false with non-empty
// result means Revert(result), and status=false with empty result means
// OutOfFund (legacy.rs's exact `SubmitResultLegacyV3 -> SubmitResult`
// conversion).
func decodeLegacyV3(data []byte) (SubmitResult, error) {
	r := &cursor{buf: data}
	statusByte, err := r.u8()
	if err != nil {
		return SubmitResult{}, err
	}
	gasUsed, err := r.u64()
	if err != nil {
		return SubmitResult{}, err
	}
	result, err := r.bytesVec()
	if err != nil {
		return SubmitResult{}, err
	}
	logs, err := readLogsNoAddress(r)
	if err != nil {
		return SubmitResult{}, err
	}
	if !r.exhausted() {
		return SubmitResult{}, errTruncated
	}
	var status Status
	switch {
	case statusByte != 0:
		status = Status{Tag: StatusSucceed, Output: result}
	case len(result) != 0:
		status = Status{Tag: StatusRevert, Output: result}
	default:
		status = Status{Tag: StatusOutOfFund}
	}
	return SubmitResult{Status: status, GasUsed: gasUsed, Logs: logs}, nil
}

func readStatus(r *cursor) (Status, error) {
	tag, err := r.u8()
	if err != nil {
		return Status{}, err
	}
	switch StatusTag(tag) {
	case StatusSucceed, StatusRevert:
		out, err := r.bytesVec()
		if err != nil {
			return Status{}, err
		}
		return Status{Tag: StatusTag(tag), Output: out}, nil
	case StatusOutOfGas, StatusOutOfFund, StatusOutOfOffset, StatusCallTooDeep:
		return Status{Tag: StatusTag(tag)}, nil
	default:
		return Status{}, fmt.Errorf("legacy: unknown status tag %d", tag)
	}
}

func readLogsWithAddress(r *cursor) ([]Log, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	logs := make([]Log, 0, n)
	for i := uint32(0); i < n; i++ {
		var addr [20]byte
		if err := r.fixed(addr[:]); err != nil {
			return nil, err
		}
		topics, err := readTopics(r)
		if err != nil {
			return nil, err
		}
		data, err := r.bytesVec()
		if err != nil {
			return nil, err
		}
		logs = append(logs, Log{Address: addr, Topics: topics, Data: data})
	}
	return logs, nil
}

func readLogsNoAddress(r *cursor) ([]Log, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	logs := make([]Log, 0, n)
	for i := uint32(0); i < n; i++ {
		topics, err := readTopics(r)
		if err != nil {
			return nil, err
		}
		data, err := r.bytesVec()
		if err != nil {
			return nil, err
		}
		logs = append(logs, Log{Topics: topics, Data: data})
	}
	return logs, nil
}

func readTopics(r *cursor) ([][32]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	topics := make([][32]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		var t [32]byte
		if err := r.fixed(t[:]); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// cursor is a small borsh-subset reader: u8/u32/u64 little-endian, fixed
// byte arrays, and length-prefixed byte vectors. No library in the
// retrieved pack implements borsh decoding (checked across every example
// go.mod), so this narrow, purpose-built reader replaces it rather than
// pulling in a general-purpose but unavailable dependency.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) exhausted() bool { return c.pos == len(c.buf) }

func (c *cursor) u8() (uint8, error) {
	if c.pos+1 > len(c.buf) {
		return 0, errTruncated
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if c.pos+8 > len(c.buf) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

func (c *cursor) fixed(out []byte) error {
	if c.pos+len(out) > len(c.buf) {
		return errTruncated
	}
	copy(out, c.buf[c.pos:c.pos+len(out)])
	c.pos += len(out)
	return nil
}

func (c *cursor) bytesVec() ([]byte, error) {
	n, err := c.u32()
	if err != nil {
		return nil, err
	}
	if c.pos+int(n) > len(c.buf) {
		return nil, errTruncated
	}
	out := append([]byte(nil), c.buf[c.pos:c.pos+int(n)]...)
	c.pos += int(n)
	return out, nil
}
