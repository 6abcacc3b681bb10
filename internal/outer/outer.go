// Package outer defines the outer-chain (NEAR) data model the refiner
// consumes: blocks, shards, receipts, actions and state-change events (spec
// §3). Grounded on
// original_source/refiner-types/src/near_block.rs's BlockView/
// ExecutionOutcomeWithReceipt/ReceiptEnumView/ActionView/
// StateChangeValueView shapes, trimmed to the fields the core refiner
// actually reads.
package outer

// Hash is a 32-byte outer-chain hash (block, receipt, transaction, or
// data id).
type Hash [32]byte

// BlockHeader carries the fields of spec §3's OuterBlock header.
type BlockHeader struct {
	Height         uint64
	Timestamp      uint64
	RandomValue    Hash
	PrevStateRoot  Hash
	PrevHash       Hash
	Author         string
}

// Block is one outer-chain block: a header plus an ordered sequence of
// shards. Heights across consecutive Blocks are strictly monotonic but may
// skip (spec §3).
type Block struct {
	Header BlockHeader
	Shards []Shard
}

// Chunk carries the transactions included in one shard, alongside their
// execution outcomes.
type Chunk struct {
	Transactions []SignedTransaction
}

// Shard is one shard's contribution to a Block: an optional chunk plus the
// receipt-execution-outcomes and state-change events observed in it.
type Shard struct {
	Chunk                     *Chunk
	ReceiptExecutionOutcomes  []ExecutionOutcomeWithReceipt
	StateChanges              []StateChangeEvent
}

// SignedTransaction is one outer-chain transaction included in a chunk,
// together with the receipt ids its execution created.
type SignedTransaction struct {
	Hash      Hash
	ReceiptIDs []Hash
}

// ReceiptKind distinguishes an action receipt from a data (promise-result)
// receipt (spec §3's Receipt).
type ReceiptKind uint8

const (
	ReceiptAction ReceiptKind = iota
	ReceiptData
)

// Receipt is either an action receipt (Actions populated) or a data receipt
// (DataID/Payload populated), identified by a 32-byte Hash.
type Receipt struct {
	ReceiptHash  Hash
	PredecessorID string
	ReceiverID   string
	SignerID     string
	Kind         ReceiptKind

	// Action receipt fields.
	InputDataIDs []Hash
	Actions      []Action
	AttachedDeposit string // decimal string, parsed by callers that need it

	// Data receipt fields.
	DataID  Hash
	Payload []byte
	PayloadPresent bool
}

// ActionKind enumerates the outer-chain action variants. Only FunctionCall
// is semantically relevant to the refiner; all others are opaque (spec §3).
type ActionKind uint8

const (
	ActionFunctionCall ActionKind = iota
	ActionOther
)

// Action is a tagged variant; FunctionCall carries method/args/deposit, all
// other kinds surface as opaque type-0xfe inner transactions (spec §3/§4.4).
type Action struct {
	Kind       ActionKind
	Method     string
	ArgsBase64 string
	Deposit    string

	// Raw is the action's own borsh-serialized bytes (NEAR's
	// action.try_to_vec() equivalent), meaningful only when Kind ==
	// ActionOther: it becomes the opaque type-0xfe inner transaction's
	// input (spec §3).
	Raw []byte
}

// OutcomeStatus mirrors ExecutionOutcome (spec §3): only SuccessValue and
// SuccessReceiptId are considered for replay.
type OutcomeStatus uint8

const (
	StatusUnknown OutcomeStatus = iota
	StatusFailure
	StatusSuccessValue
	StatusSuccessReceiptID
)

// ExecutionOutcome carries one receipt's execution result.
type ExecutionOutcome struct {
	Status        OutcomeStatus
	SuccessValue  []byte   // base64-free raw bytes, meaningful when Status == StatusSuccessValue
	SuccessReceiptID Hash  // meaningful when Status == StatusSuccessReceiptID
	ReceiptIDs    []Hash   // receipt ids created by this execution
	GasBurnt      uint64
}

// ExecutionOutcomeWithReceipt pairs a Receipt with its ExecutionOutcome, the
// unit the block consumer iterates per shard (spec §4.5 step 4).
type ExecutionOutcomeWithReceipt struct {
	Receipt Receipt
	Outcome ExecutionOutcome
}

// StateChangeCause enumerates why a state-change event fired. Anything
// other than ReceiptProcessing is a protocol error per spec §4.5 step 3.
type StateChangeCause uint8

const (
	CauseReceiptProcessing StateChangeCause = iota
	CauseOther
)

// StateChangeKind distinguishes a data write from a data deletion.
type StateChangeKind uint8

const (
	StateChangeDataUpdate StateChangeKind = iota
	StateChangeDataDeletion
	StateChangeOtherKind
)

// StateChangeEvent is one outer-chain published state mutation, folded by
// the block consumer into expected per-receipt diffs (spec §4.5 step 3).
type StateChangeEvent struct {
	AccountID   string
	Kind        StateChangeKind
	Key         []byte
	Value       []byte // meaningful when Kind == StateChangeDataUpdate
	Cause       StateChangeCause
	ReceiptHash Hash // meaningful when Cause == CauseReceiptProcessing
}
