// Package hashchain computes and validates the externally-auditable
// hashchain: per-transaction intrinsic hashes, the streaming compact
// Merkle tree over them, and the per-block hashchain value (spec §4.7).
// Grounded on original_source/refiner-lib/src/hashchain (metadata tag
// sets and the block hashchain preimage) and, for keccak256 itself, on
// the teacher's use of go-ethereum's crypto package throughout
// core/vm.
package hashchain

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// InputKind tags which canonical representation an inner transaction's
// input bytes were reconstructed from.
type InputKind int

const (
	InputRlp InputKind = iota
	InputCallArgsLegacy
	InputCallArgsV1
	InputCallArgsV2
	InputSubmitWithArgs
	InputExplicit
)

// InputMetadata carries exactly what's needed to reconstruct canonical
// input bytes for the intrinsic-hash check. For every kind except
// SubmitWithArgs the stored Raw bytes already are the canonical
// representation; SubmitWithArgs additionally re-encodes its max gas
// price and gas token address ahead of the embedded transaction bytes,
// since those fields are not themselves part of the embedded rlp.
type InputMetadata struct {
	Kind            InputKind
	Raw             []byte   // canonical bytes for Rlp/CallArgsLegacy/CallArgsV1/CallArgsV2/Explicit
	MaxGasPrice     []byte   // big-endian, unsigned; used only when Kind == InputSubmitWithArgs
	GasTokenAddress *[20]byte // nil means "not present" (borsh Option::None)
	InnerRaw        []byte   // the embedded Submit transaction bytes, used only when Kind == InputSubmitWithArgs
}

// Reconstruct returns the canonical input_bytes the spec's intrinsic-hash
// formula hashes.
func (m InputMetadata) Reconstruct() []byte {
	if m.Kind != InputSubmitWithArgs {
		return m.Raw
	}
	out := make([]byte, 0, 1+32+1+20+len(m.InnerRaw))
	if m.MaxGasPrice != nil {
		out = append(out, 1)
		out = append(out, leftPad32(m.MaxGasPrice)...)
	} else {
		out = append(out, 0)
	}
	if m.GasTokenAddress != nil {
		out = append(out, 1)
		out = append(out, m.GasTokenAddress[:]...)
	} else {
		out = append(out, 0)
	}
	out = append(out, m.InnerRaw...)
	return out
}

func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// OutputKind tags which SubmitResult on-wire shape (or absence of one)
// an inner transaction's output bytes came from.
type OutputKind int

const (
	OutputSubmitResultLegacyV1 OutputKind = iota
	OutputSubmitResultLegacyV2
	OutputSubmitResultLegacyV3
	OutputSubmitResultV7
	OutputExplicit
	OutputNone
)

// OutputMetadata carries the canonical output bytes, or none for
// transactions whose outcome carried no return value at all.
type OutputMetadata struct {
	Kind OutputKind
	Raw  []byte // meaningful for every Kind except OutputNone
}

// Reconstruct returns the canonical output_bytes the spec's
// intrinsic-hash formula hashes.
func (m OutputMetadata) Reconstruct() []byte {
	if m.Kind == OutputNone {
		return nil
	}
	return m.Raw
}

// IntrinsicHash computes H_tx = keccak256(BE32(|name|) || name ||
// BE32(|in|) || in || BE32(|out|) || out) (spec §4.7 step 1).
func IntrinsicHash(methodName string, input InputMetadata, output OutputMetadata) [32]byte {
	in := input.Reconstruct()
	out := output.Reconstruct()
	buf := make([]byte, 0, 12+len(methodName)+len(in)+len(out))
	buf = appendBE32(buf, len(methodName))
	buf = append(buf, methodName...)
	buf = appendBE32(buf, len(in))
	buf = append(buf, in...)
	buf = appendBE32(buf, len(out))
	buf = append(buf, out...)
	return [32]byte(crypto.Keccak256(buf))
}

func appendBE32(buf []byte, n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return append(buf, b[:]...)
}

// ErrIncorrectTxHash is returned when a transaction's attached hashchain
// metadata does not reconstruct to its recorded intrinsic hash (spec §4.7
// step 1, §9 invariant P6).
type ErrIncorrectTxHash struct {
	MethodName string
	Want       [32]byte
	Got        [32]byte
}

func (e *ErrIncorrectTxHash) Error() string {
	return fmt.Sprintf("hashchain: incorrect intrinsic hash for %q: want %x got %x", e.MethodName, e.Want, e.Got)
}

// ValidateIntrinsicHash recomputes the intrinsic hash and compares it
// against want, rejecting the transaction on mismatch.
func ValidateIntrinsicHash(methodName string, input InputMetadata, output OutputMetadata, want [32]byte) error {
	got := IntrinsicHash(methodName, input, output)
	if got != want {
		return &ErrIncorrectTxHash{MethodName: methodName, Want: want, Got: got}
	}
	return nil
}

// BlockHash computes H_block = keccak256(BE32(chain_id) || engine_account
// || BE64(height) || previous_hashchain || txs_hash || logs_bloom) (spec
// §4.7 step 3).
func BlockHash(chainID uint32, engineAccount string, height uint64, previous [32]byte, txsHash [32]byte, logsBloom []byte) [32]byte {
	buf := make([]byte, 0, 4+len(engineAccount)+8+32+32+len(logsBloom))
	buf = appendBE32(buf, int(chainID))
	buf = append(buf, engineAccount...)
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], height)
	buf = append(buf, h[:]...)
	buf = append(buf, previous[:]...)
	buf = append(buf, txsHash[:]...)
	buf = append(buf, logsBloom...)
	return [32]byte(crypto.Keccak256(buf))
}
