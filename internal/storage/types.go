package storage

// BlockMetadata carries the timestamp and random seed for one outer block,
// as persisted alongside its hash (spec §4.5 step 1).
type BlockMetadata struct {
	Timestamp  uint64
	RandomSeed [32]byte
}

// OutcomeKind mirrors ExecutionOutcome (spec §3): only SuccessValue and
// SuccessReceiptId are ever persisted here, since Unknown/Failure receipts
// are dropped before they reach storage.
type OutcomeKind uint8

const (
	OutcomeSuccessValue OutcomeKind = iota
	OutcomeSuccessReceiptID
)

// ReceiptInfo is the per-receipt outcome record persisted by
// set_transaction_included (spec §4.1).
type ReceiptInfo struct {
	Kind          OutcomeKind
	Value         []byte // meaningful when Kind == OutcomeSuccessValue
	ReceiptIDLink [32]byte // meaningful when Kind == OutcomeSuccessReceiptID
}
