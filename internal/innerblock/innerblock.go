// Package innerblock assembles the Aurora/EVM-shaped inner block from the
// ordered transactions a block consumer replayed (spec §4.6). Grounded on
// the teacher's core/revm_state_processor.go (receipt bloom via
// types.CreateBloom, trie roots via types.DeriveSha +
// trie.NewStackTrie(nil), as seen in its own tests) generalized from
// go-ethereum's block shape to the refiner's NEAR-derived one.
package innerblock

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/aurora-is-near/go-refiner/internal/outer"
)

// NearMetadataKind distinguishes a block produced from an observed outer
// block from a synthetic skip block (spec §4.6).
type NearMetadataKind int

const (
	NearMetadataExistingBlock NearMetadataKind = iota
	NearMetadataSkipBlock
)

// NearMetadata carries the inner block's outer-chain provenance.
type NearMetadata struct {
	Kind       NearMetadataKind
	NearHash       outer.Hash
	NearParentHash outer.Hash
	Author         string
}

// Transaction is one replayed entry bound for an inner block: enough to
// compute roots, bloom, and gas accounting without re-deriving them from
// the replay machinery.
type Transaction struct {
	Hash        common.Hash // transaction_hash per spec §4.6's "per-transaction derived hash"
	OutputBytes []byte
	Logs        []*types.Log
	GasUsed     uint64
	// TypeByte is 0x00 for a normal engine call and 0xfe for an opaque
	// inner transaction synthesized from a non-FunctionCall outer action
	// (spec §3: "surfaced as type-0xfe inner transactions").
	TypeByte byte
	// ReceiptSize is the borsh-serialized size of the originating
	// receipt, counted once per distinct receipt hash (spec §4.6's
	// "size" field; seen-receipts de-duplication happens in the caller,
	// which only includes a Transaction here for receipts it hasn't
	// already sized).
	ReceiptSize uint64
}

// Block is the refiner's inner-block output (spec §4.6).
type Block struct {
	Hash              common.Hash
	ParentHash        common.Hash
	Height            uint64
	TransactionsRoot  common.Hash
	ReceiptsRoot      common.Hash
	LogsBloom         types.Bloom
	GasUsed           uint64
	Size              uint64
	StateRoot         common.Hash
	Miner             common.Address
	NearMetadata      NearMetadata
	Transactions      []Transaction
}

// BlockHash computes H(25 zero bytes || BE64(chain_id) || "aurora" ||
// BE64(height)) via SHA-256 (spec §4.6's block-hash preimage). The same
// scheme computes the parent hash at height-1.
func BlockHash(chainID uint64, height uint64) common.Hash {
	buf := make([]byte, 25, 25+8+6+8)
	buf = appendBE64(buf, chainID)
	buf = append(buf, "aurora"...)
	buf = appendBE64(buf, height)
	return common.Hash(sha256.Sum256(buf))
}

func appendBE64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// DerivedTxHash computes the per-transaction derived hash (spec §4.6's
// closing paragraph): keccak256(raw_rlp_bytes) for Submit transactions,
// or the receipt's (possibly virtual) id reinterpreted as 32 bytes for
// every other kind.
func DerivedTxHash(isSubmit bool, rawRlp []byte, receiptOrVirtualID [32]byte) common.Hash {
	if isSubmit {
		return common.Hash(crypto.Keccak256Hash(rawRlp))
	}
	return common.Hash(receiptOrVirtualID)
}

// Build assembles an inner block from its ordered transactions.
//
// stateRoot is the outer block's prev_state_root carried through
// unchanged (spec §4.6); miner is the implicit EVM address already
// derived from the outer block's author.
func Build(chainID uint64, height uint64, txs []Transaction, stateRoot common.Hash, miner common.Address, meta NearMetadata) *Block {
	block := &Block{
		Hash:         BlockHash(chainID, height),
		ParentHash:   BlockHash(chainID, height-1),
		Height:       height,
		StateRoot:    stateRoot,
		Miner:        miner,
		NearMetadata: meta,
		Transactions: txs,
	}

	var gasUsed, size uint64
	var allLogs []*types.Log
	receiptHashes := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		gasUsed += tx.GasUsed
		size += tx.ReceiptSize
		allLogs = append(allLogs, tx.Logs...)
		receiptHashes = append(receiptHashes, crypto.Keccak256Hash(tx.OutputBytes))
	}
	block.GasUsed = gasUsed
	block.Size = size
	block.TransactionsRoot = hashLeaves(collectHashes(txs))
	block.ReceiptsRoot = hashLeaves(receiptHashes)

	synthReceipts := make([]*types.Receipt, 0, len(txs))
	for _, log := range allLogs {
		synthReceipts = append(synthReceipts, &types.Receipt{Logs: []*types.Log{log}})
	}
	block.LogsBloom = types.CreateBloom(synthReceipts)

	return block
}

func collectHashes(txs []Transaction) []common.Hash {
	out := make([]common.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.Hash
	}
	return out
}

// hashLeaves builds an ordered trie root over raw 32-byte leaves, the
// same construction the teacher uses for transaction/receipt roots
// (types.DeriveSha backed by a fresh StackTrie), generalized to leaves
// that are already bare hashes rather than RLP-encoded objects.
func hashLeaves(leaves []common.Hash) common.Hash {
	list := hashList(leaves)
	return types.DeriveSha(list, trie.NewStackTrie(nil))
}

// hashList adapts a []common.Hash to the types.DerivableList interface
// DeriveSha requires (Len + EncodeIndex).
type hashList []common.Hash

func (h hashList) Len() int { return len(h) }

func (h hashList) EncodeIndex(i int, w *bytes.Buffer) {
	w.Write(h[i][:])
}
