// Package consumer implements the block consumer (spec §4.5): the core
// per-outer-block replay loop that ties storage, the contract cache, the
// EVM runner, the provenance tracker, the action decoder, and the legacy
// SubmitResult decoder together. Grounded on
// original_source/aurora-standalone/engine/src/sync.rs's eight-step
// consume_near_block structure and on the teacher's
// core/revm_state_processor.go for the general shape of "iterate
// transactions, replay each, fold gas/logs/outcomes".
package consumer

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ethereum/go-ethereum/crypto"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/aurora-is-near/go-refiner/internal/actions"
	"github.com/aurora-is-near/go-refiner/internal/contract"
	"github.com/aurora-is-near/go-refiner/internal/diff"
	"github.com/aurora-is-near/go-refiner/internal/evmrunner"
	"github.com/aurora-is-near/go-refiner/internal/kvio"
	"github.com/aurora-is-near/go-refiner/internal/legacy"
	"github.com/aurora-is-near/go-refiner/internal/outer"
	"github.com/aurora-is-near/go-refiner/internal/provenance"
	"github.com/aurora-is-near/go-refiner/internal/storage"
)

// DataReceiptCapacity bounds the cross-shard data-receipt LRU a caller
// keeps alive across the consumer's lifetime (spec §4.5 step 2: "The LRU
// is passed in by the caller and outlives the block").
const DataReceiptCapacity = 1024

// DataPayload is the Option<bytes> NEAR's Data receipt enum carries:
// Present distinguishes "resolved with this payload" from "not yet
// observed".
type DataPayload struct {
	Bytes   []byte
	Present bool
}

// NewDataReceiptCache builds the bounded LRU step 2 harvests into.
func NewDataReceiptCache() (*lru.Cache[outer.Hash, DataPayload], error) {
	return lru.New[outer.Hash, DataPayload](DataReceiptCapacity)
}

// Consumer replays one outer block at a time against Storage, producing
// the ordered Transaction list an inner-block builder assembles.
type Consumer struct {
	Storage    *storage.Storage
	Contracts  *contract.Cache
	Runner     *evmrunner.Runner
	Provenance *provenance.Tracker
	ChainID    uint64
	Account    string
	Log        gethlog.Logger
}

// New builds a Consumer. logger may be nil, in which case the root logger is
// used (matching the teacher's logging conventions elsewhere).
func New(s *storage.Storage, contracts *contract.Cache, runner *evmrunner.Runner, prov *provenance.Tracker, chainID uint64, account string, logger gethlog.Logger) *Consumer {
	if logger == nil {
		logger = gethlog.Root()
	}
	return &Consumer{Storage: s, Contracts: contracts, Runner: runner, Provenance: prov, ChainID: chainID, Account: account, Log: logger}
}

// Transaction is one fully-replayed outer-chain transaction, carrying
// everything the inner-block builder and hashchain validator need.
type Transaction struct {
	Kind             actions.Kind
	Method           string
	ReceiptHash      [32]byte // virtual receipt id for non-last batch actions
	IsVirtual        bool
	OutputBytes      []byte // expected output (base64-decoded SuccessValue, if any)
	ComputedOutput   []byte
	RawRLP           []byte // Submit/SubmitWithArgs: the raw Ethereum transaction bytes; opaque actions: the action's own bytes; empty otherwise
	TypeByte         byte   // 0x00 for a normal engine call, 0xfe for an opaque non-FunctionCall action (spec §3)
	Diff             *diff.Diff // cumulative diff through this action, used for §4.5 step 7 reconciliation
	ActionDiff       *diff.Diff // this action's own diff, retained separately for individual reversion (spec §4.5 step 5)
	ProvenanceTxHash provenance.Hash
	Rejected         bool
	RejectReason     string
}

// admitBlockHash computes the outer-block storage key hash: H(chain_id ||
// height || engine_account_id), a distinct, simpler preimage from the
// inner (Aurora) block's own hash scheme in internal/innerblock (spec
// §4.5 step 1).
func admitBlockHash(chainID uint64, height uint64, account string) [32]byte {
	buf := make([]byte, 0, 8+8+len(account))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], chainID)
	buf = append(buf, b[:]...)
	binary.BigEndian.PutUint64(b[:], height)
	buf = append(buf, b[:]...)
	buf = append(buf, account...)
	return [32]byte(crypto.Keccak256(buf))
}

// ProcessBlock runs the full §4.5 pipeline over one outer block, updating
// Storage and the provenance tracker in place, and returns the ordered
// list of replayed transactions ready for inner-block assembly.
func (c *Consumer) ProcessBlock(block outer.Block, dataReceipts *lru.Cache[outer.Hash, DataPayload]) ([]Transaction, error) {
	// Step 1 -- admit block.
	hash := admitBlockHash(c.ChainID, block.Header.Height, c.Account)
	if err := c.Storage.SetLatestBlock(block.Header.Height, hash[:]); err != nil {
		return nil, fmt.Errorf("consumer: admit block: %w", err)
	}
	if err := c.Storage.SetBlockMetadata(hash[:], storage.BlockMetadata{
		Timestamp:  block.Header.Timestamp,
		RandomSeed: block.Header.RandomValue,
	}); err != nil {
		return nil, fmt.Errorf("consumer: set block metadata: %w", err)
	}

	// Record provenance for every signed transaction's created receipts
	// (spec §4.8(a)), before step 2's harvesting so later receipt-derived
	// lookups (§4.8(b)) can already see them.
	for _, shard := range block.Shards {
		if shard.Chunk == nil {
			continue
		}
		for _, tx := range shard.Chunk.Transactions {
			for _, rx := range tx.ReceiptIDs {
				if err := c.Provenance.RecordReceipt(provenance.Hash(rx), provenance.Hash(tx.Hash), block.Header.Height); err != nil {
					return nil, fmt.Errorf("consumer: record tx provenance: %w", err)
				}
			}
		}
	}

	// Step 2 -- harvest data receipts.
	for _, shard := range block.Shards {
		if shard.Chunk == nil {
			continue
		}
		for _, outcome := range shard.ReceiptExecutionOutcomes {
			r := outcome.Receipt
			if r.Kind != outer.ReceiptData {
				continue
			}
			dataReceipts.Add(r.DataID, DataPayload{Bytes: r.Payload, Present: r.PayloadPresent})
		}
	}

	// Step 3 -- compute expected diffs.
	expected := make(map[outer.Hash]*diff.Diff)
	for _, shard := range block.Shards {
		for _, sc := range shard.StateChanges {
			if sc.AccountID != c.Account {
				continue
			}
			if sc.Cause != outer.CauseReceiptProcessing {
				return nil, fmt.Errorf("consumer: state change with non-receipt cause at height %d", block.Header.Height)
			}
			builder := expected[sc.ReceiptHash]
			if builder == nil {
				builder = &diff.Diff{}
			}
			var op *diff.Diff
			switch sc.Kind {
			case outer.StateChangeDataUpdate:
				op = singleOpDiff(sc.Key, sc.Value, false)
			case outer.StateChangeDataDeletion:
				op = singleOpDiff(sc.Key, nil, true)
			default:
				continue
			}
			expected[sc.ReceiptHash] = builder.Append(op)
		}
	}

	var out []Transaction
	position := uint32(0)

	// Step 4/5/6/7/8 -- decode, replay, validate, reconcile, yield, per
	// receipt addressed to the engine account.
	for _, shard := range block.Shards {
		for _, rxo := range shard.ReceiptExecutionOutcomes {
			r := rxo.Receipt
			if r.Kind != outer.ReceiptAction || r.ReceiverID != c.Account {
				continue
			}
			outcome := rxo.Outcome
			if outcome.Status == outer.StatusUnknown || outcome.Status == outer.StatusFailure {
				continue
			}

			var outputBytes []byte
			if outcome.Status == outer.StatusSuccessValue {
				outputBytes = outcome.SuccessValue
			}

			promiseResults := make([]actions.PromiseResult, 0, len(r.InputDataIDs))
			for _, did := range r.InputDataIDs {
				if payload, ok := dataReceipts.Get(did); ok {
					dataReceipts.Remove(did)
					promiseResults = append(promiseResults, actions.PromiseResult{Successful: payload.Present, Value: payload.Bytes})
				} else {
					promiseResults = append(promiseResults, actions.PromiseResult{Successful: false})
				}
			}

			decoded, err := actions.DecodeReceiptActions(r.Actions, promiseResults)
			if err != nil {
				return nil, fmt.Errorf("consumer: decode actions for receipt %x: %w", r.ReceiptHash, err)
			}
			if len(decoded) == 0 {
				if _, hasExpected := expected[r.ReceiptHash]; !hasExpected {
					continue
				}
				decoded = []*actions.Transaction{actions.UnknownFallback("", "", r.AttachedDeposit)}
			}

			txHash, _ := c.Provenance.GetTxHash(provenance.Hash(r.ReceiptHash))

			var cumulative *diff.Diff
			for i, decodedTx := range decoded {
				receiptID := r.ReceiptHash
				isVirtual := false
				if i < len(decoded)-1 {
					receiptID = virtualReceiptID(r.ReceiptHash, uint32(i))
					isVirtual = true
				}

				var result Transaction
				var err error
				if decodedTx.Kind == actions.KindOpaque {
					result = replayOpaque(decodedTx, outputBytes)
				} else {
					result, err = c.replayOne(block.Header.Height, position, decodedTx, outputBytes)
					position++
				}
				if err != nil {
					return nil, fmt.Errorf("consumer: replay receipt %x action %d: %w", r.ReceiptHash, i, err)
				}
				result.ReceiptHash = receiptID
				result.IsVirtual = isVirtual
				result.ProvenanceTxHash = txHash
				result.ActionDiff = result.Diff
				cumulative = combineDiff(cumulative, result.Diff)
				result.Diff = cumulative
				out = append(out, result)
			}

			if err := c.reconcileDiff(r.ReceiptHash, cumulative, expected[r.ReceiptHash], &out); err != nil {
				return nil, fmt.Errorf("consumer: reconcile diff for receipt %x: %w", r.ReceiptHash, err)
			}

			// §4.8(b): every receipt id this execution created inherits the
			// originating transaction hash, transitively.
			for _, newRx := range outcome.ReceiptIDs {
				if err := c.Provenance.RecordReceipt(provenance.Hash(newRx), txHash, block.Header.Height); err != nil {
					return nil, fmt.Errorf("consumer: record derived provenance: %w", err)
				}
			}
		}
	}

	if err := c.Provenance.PruneBefore(block.Header.Height); err != nil {
		return nil, fmt.Errorf("consumer: prune provenance: %w", err)
	}

	return out, nil
}

// replayOne executes step 5 and step 6 for a single decoded transaction.
func (c *Consumer) replayOne(height uint64, position uint32, tx *actions.Transaction, expectedOutput []byte) (Transaction, error) {
	method := tx.Method
	input := canonicalInput(tx)

	wasm, err := c.Contracts.Apply(height, position, "")
	if err != nil {
		return Transaction{}, fmt.Errorf("contract lookup: %w", err)
	}
	module, err := c.Runner.Load(fmt.Sprintf("%d:%d", height, position), wasm)
	if err != nil {
		return Transaction{}, fmt.Errorf("load module: %w", err)
	}

	env := evmrunner.Env{ChainID: c.ChainID, Height: height, Position: position}
	var outcome evmrunner.Outcome
	d := c.Storage.WithEngineAccess(height, position, func(view kvio.View) {
		ext := evmrunner.NewEngineExt(view)
		result, callErr := module.Call(method, input, env, ext)
		if callErr != nil {
			c.Log.Warn("evm runner call failed", "method", method, "height", height, "position", position, "err", callErr)
			return
		}
		outcome = result
	})

	result := Transaction{Kind: tx.Kind, Method: method, Diff: d, ComputedOutput: outcome.Output}
	if expectedOutput != nil {
		result.OutputBytes = expectedOutput
	}
	if isSubmitLike(tx.Kind) && tx.EthTx != nil {
		result.RawRLP = input
	}

	// Step 6 -- validate return value against the historical SubmitResult
	// shapes, logging (not aborting) on mismatch.
	if isSubmitLike(tx.Kind) && len(outcome.Output) > 0 {
		if _, _, err := legacy.DecodeSubmitResult(outcome.Output); err != nil {
			c.Log.Warn("computed SubmitResult does not parse", "method", method, "height", height, "err", err)
		} else if expectedOutput != nil && string(outcome.Output) != string(expectedOutput) {
			c.Log.Warn("computed SubmitResult mismatches expected output", "method", method, "height", height)
		}
	}
	return result, nil
}

// replayOpaque builds the pass-through Transaction for a non-FunctionCall
// action (spec §3's type-0xfe inner transaction): it never reaches the
// contract cache or engine runner, carries no diff, and its output comes
// directly from the receipt's own execution status, matching
// original_source/refiner-lib/src/refiner_inner.rs's wildcard action arm.
func replayOpaque(tx *actions.Transaction, expectedOutput []byte) Transaction {
	return Transaction{
		Kind:           tx.Kind,
		TypeByte:       0xfe,
		RawRLP:         tx.Raw,
		ComputedOutput: expectedOutput,
		OutputBytes:    expectedOutput,
	}
}

func isSubmitLike(kind actions.Kind) bool {
	switch kind {
	case actions.KindSubmit, actions.KindCall, actions.KindDeploy, actions.KindSubmitWithArgs:
		return true
	default:
		return false
	}
}

// canonicalInput returns the bytes the runner should be invoked with for
// a decoded transaction, preferring the most specific representation
// available.
func canonicalInput(tx *actions.Transaction) []byte {
	if tx.EthTx != nil {
		raw, err := tx.EthTx.MarshalBinary()
		if err == nil {
			return raw
		}
	}
	if tx.JSON.Exists() {
		return []byte(tx.JSON.Raw)
	}
	return tx.Raw
}

// reconcileDiff implements step 7's four-way reconciliation between the
// computed cumulative diff C and the expected diff E.
func (c *Consumer) reconcileDiff(receiptHash [32]byte, computed, expectedDiff *diff.Diff, out *[]Transaction) error {
	computedEmpty := computed.Empty()
	expectedPresent := expectedDiff != nil

	switch {
	case !expectedPresent && computedEmpty:
		// no-op: nothing to commit.
		return nil
	case !expectedPresent && !computedEmpty:
		c.Log.Warn("computed diff with no expected diff; reverting", "receipt", fmt.Sprintf("%x", receiptHash))
		computed.Revert(revertWriter{})
		return nil
	case expectedPresent && computed.Equal(expectedDiff):
		return commitDiff(c.Storage, receiptHash, expectedDiff)
	default: // expectedPresent && !computed.Equal(expectedDiff)
		c.Log.Warn("computed diff mismatches expected diff; reconciling", "receipt", fmt.Sprintf("%x", receiptHash))
		computed.Revert(revertWriter{})
		if len(*out) > 0 {
			(*out)[len(*out)-1].Diff = expectedDiff
		}
		return commitDiff(c.Storage, receiptHash, expectedDiff)
	}
}

// revertWriter discards Revert's writes; actual reversion of committed
// state happens through Storage.RevertTransactionIncluded when a diff was
// previously committed. A diff that was never committed (this package
// never auto-commits computed diffs before reconciliation) has nothing
// live in storage to undo, so Revert here is purely advisory bookkeeping.
type revertWriter struct{}

func (revertWriter) Set(key, value []byte) {}
func (revertWriter) Remove(key []byte)     {}

func commitDiff(s *storage.Storage, receiptHash [32]byte, d *diff.Diff) error {
	if d.Empty() {
		return nil
	}
	info := storage.ReceiptInfo{Kind: storage.OutcomeSuccessValue}
	return s.SetTransactionIncluded(receiptHash[:], info, d)
}

func combineDiff(a, b *diff.Diff) *diff.Diff {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return a.Append(b)
}

func singleOpDiff(key, value []byte, remove bool) *diff.Diff {
	builder := diff.NewBuilder(nil)
	if remove {
		builder.Remove(key)
	} else {
		builder.Set(key, value)
	}
	return builder.Diff()
}

// virtualReceiptID derives the synthetic receipt id assigned to every
// action in a batch except the last: keccak256(receipt_id || BE32(index))
// (spec glossary "virtual receipt id").
func virtualReceiptID(receiptHash [32]byte, index uint32) [32]byte {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	buf := append(append([]byte(nil), receiptHash[:]...), idx[:]...)
	return [32]byte(crypto.Keccak256(buf))
}

// decodeBase64Output is a small helper kept alongside the package for
// callers translating an outer ExecutionOutcome's raw SuccessValue,
// which outer.ExecutionOutcome already stores decoded (see internal/
// outer); present here only to document the expected encoding.
func decodeBase64Output(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
