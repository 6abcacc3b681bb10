// Package storage implements the refiner's persistent, append-only,
// height-indexed store (spec §4.1): block metadata, per-receipt diffs and
// outcomes, the engine-account-id sentinel, and a custom-data-at timeline
// used by the contract-version cache. It is backed by
// github.com/cockroachdb/pebble, which the teacher already depends on and
// which exposes the range-delete primitive the provenance tracker (and, in
// principle, future pruning of this store) needs directly.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/aurora-is-near/go-refiner/internal/diff"
	"github.com/aurora-is-near/go-refiner/internal/kvio"
	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/log"
)

// Storage is a single logical handle over the pebble database. Multiple
// Storage values can share one underlying *pebble.DB via Share, matching
// spec §4.1's "share() -> Storage ... independent handle ... without
// racing the writer".
type Storage struct {
	db  *pebble.DB
	log log.Logger
	// owned is true for the Storage value that opened db and is therefore
	// responsible for closing it.
	owned bool
}

// Open opens (or creates) a pebble database at path and verifies the
// engine-account-id sentinel. If the database is new, accountID is written
// as the sentinel. If it already holds a different account id, Open returns
// ErrAccountMismatch (spec §4.1: "sentinel verified on open; mismatched
// account id fails with AccountMismatch").
func Open(path string, accountID string, logger log.Logger) (*Storage, error) {
	if logger == nil {
		logger = log.Root()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: rocksdb open: %w", err)
	}
	s := &Storage{db: db, log: logger, owned: true}
	if err := s.checkOrSetAccountID(accountID); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) checkOrSetAccountID(accountID string) error {
	existing, closer, err := s.db.Get(sentinelAccountKey)
	if err == pebble.ErrNotFound {
		return s.db.Set(sentinelAccountKey, []byte(accountID), pebble.Sync)
	}
	if err != nil {
		return fmt.Errorf("storage: rocksdb get sentinel: %w", err)
	}
	defer closer.Close()
	if string(existing) != accountID {
		return ErrAccountMismatch
	}
	return nil
}

// GetEngineAccountID returns the sentinel stored at open time.
func (s *Storage) GetEngineAccountID() (string, error) {
	v, closer, err := s.db.Get(sentinelAccountKey)
	if err != nil {
		return "", fmt.Errorf("storage: rocksdb get sentinel: %w", err)
	}
	defer closer.Close()
	return string(v), nil
}

// Close releases the underlying database, if this handle owns it.
func (s *Storage) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Share returns an independent Storage handle over the same underlying
// pebble database, for concurrent read-only traffic (spec §4.1). The
// contract-cache/runner instance a caller pairs with the shared handle is
// the caller's responsibility to keep independent, per spec §5.
func (s *Storage) Share() *Storage {
	return &Storage{db: s.db, log: s.log, owned: false}
}

// SetLatestBlock records height/hash as the latest known block.
func (s *Storage) SetLatestBlock(height uint64, hash []byte) error {
	if err := s.db.Set(blockHashKey(height), hash, pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb set block hash: %w", err)
	}
	if err := s.db.Set(blockHeightKey(hash), beU64(height), pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb set block height: %w", err)
	}
	if err := s.db.Set(latestBlockKey, beU64(height), pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb set latest marker: %w", err)
	}
	if _, _, err := s.db.Get(earliestBlockKey); err == pebble.ErrNotFound {
		if err := s.db.Set(earliestBlockKey, beU64(height), pebble.Sync); err != nil {
			return fmt.Errorf("storage: rocksdb set earliest marker: %w", err)
		}
	}
	return nil
}

// GetLatestBlock returns (hash, height) of the most recently recorded block.
func (s *Storage) GetLatestBlock() ([]byte, uint64, error) {
	return s.readMarker(latestBlockKey)
}

// GetEarliestBlock returns (hash, height) of the earliest recorded block.
func (s *Storage) GetEarliestBlock() ([]byte, uint64, error) {
	return s.readMarker(earliestBlockKey)
}

func (s *Storage) readMarker(marker []byte) ([]byte, uint64, error) {
	v, closer, err := s.db.Get(marker)
	if err == pebble.ErrNotFound {
		return nil, 0, ErrNoBlockAtHeight
	}
	if err != nil {
		return nil, 0, fmt.Errorf("storage: rocksdb get marker: %w", err)
	}
	height := binary.BigEndian.Uint64(v)
	closer.Close()
	hash, hcloser, err := s.db.Get(blockHashKey(height))
	if err != nil {
		return nil, 0, fmt.Errorf("storage: rocksdb get block hash: %w", err)
	}
	defer hcloser.Close()
	return append([]byte(nil), hash...), height, nil
}

// GetBlockHashByHeight returns the block hash recorded at height.
func (s *Storage) GetBlockHashByHeight(height uint64) ([]byte, error) {
	v, closer, err := s.db.Get(blockHashKey(height))
	if err == pebble.ErrNotFound {
		return nil, ErrNoBlockAtHeight
	}
	if err != nil {
		return nil, fmt.Errorf("storage: rocksdb get block hash: %w", err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// GetBlockHeightByHash returns the height recorded for hash.
func (s *Storage) GetBlockHeightByHash(hash []byte) (uint64, error) {
	v, closer, err := s.db.Get(blockHeightKey(hash))
	if err == pebble.ErrNotFound {
		return 0, ErrNoBlockAtHeight
	}
	if err != nil {
		return 0, fmt.Errorf("storage: rocksdb get block height: %w", err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(v), nil
}

// SetBlockMetadata persists the timestamp/random-seed pair for hash.
func (s *Storage) SetBlockMetadata(hash []byte, meta BlockMetadata) error {
	buf := make([]byte, 8+32)
	binary.BigEndian.PutUint64(buf[:8], meta.Timestamp)
	copy(buf[8:], meta.RandomSeed[:])
	if err := s.db.Set(blockMetadataKey(hash), buf, pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb set block metadata: %w", err)
	}
	return nil
}

// GetBlockMetadata returns the metadata recorded for hash.
func (s *Storage) GetBlockMetadata(hash []byte) (BlockMetadata, error) {
	v, closer, err := s.db.Get(blockMetadataKey(hash))
	if err == pebble.ErrNotFound {
		return BlockMetadata{}, ErrNoBlockAtHeight
	}
	if err != nil {
		return BlockMetadata{}, fmt.Errorf("storage: rocksdb get block metadata: %w", err)
	}
	defer closer.Close()
	var meta BlockMetadata
	meta.Timestamp = binary.BigEndian.Uint64(v[:8])
	copy(meta.RandomSeed[:], v[8:])
	return meta, nil
}

// SetTransactionIncluded persists the outcome info and diff for one
// receipt, and applies the diff's writes to engine state (spec §4.1).
func (s *Storage) SetTransactionIncluded(receiptHash []byte, info ReceiptInfo, d *diff.Diff) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := writeReceiptInfo(batch, receiptHash, info); err != nil {
		return err
	}
	encoded, err := d.MarshalBinary()
	if err != nil {
		return fmt.Errorf("storage: encode diff: %w", err)
	}
	if err := batch.Set(receiptDiffKey(receiptHash), encoded, nil); err != nil {
		return fmt.Errorf("storage: rocksdb set receipt diff: %w", err)
	}
	for _, op := range d.Ops() {
		k := engineStateKey(op.Key)
		switch op.Kind {
		case diff.Modify:
			if err := batch.Set(k, op.Value, nil); err != nil {
				return fmt.Errorf("storage: rocksdb apply diff write: %w", err)
			}
		case diff.Delete:
			if err := batch.Delete(k, nil); err != nil {
				return fmt.Errorf("storage: rocksdb apply diff delete: %w", err)
			}
		}
	}
	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb apply batch: %w", err)
	}
	return nil
}

// RevertTransactionIncluded is the inverse of SetTransactionIncluded: it
// restores every key d touched to its pre-diff value and removes the
// persisted receipt info/diff records (spec §4.1: "these are inverse
// operations; revert must undo every key the supplied diff touched").
func (s *Storage) RevertTransactionIncluded(receiptHash []byte, d *diff.Diff) error {
	w := &batchWriter{batch: s.db.NewBatch()}
	defer w.batch.Close()
	d.Revert(w)
	if err := w.batch.Delete(receiptDiffKey(receiptHash), nil); err != nil {
		return fmt.Errorf("storage: rocksdb delete receipt diff: %w", err)
	}
	if err := w.batch.Delete(receiptOutcomeKey(receiptHash), nil); err != nil {
		return fmt.Errorf("storage: rocksdb delete receipt outcome: %w", err)
	}
	if w.err != nil {
		return w.err
	}
	if err := s.db.Apply(w.batch, pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb apply revert batch: %w", err)
	}
	return nil
}

// batchWriter adapts a *pebble.Batch to kvio.Writer so diff.Diff.Revert can
// be driven directly against a pending batch.
type batchWriter struct {
	batch *pebble.Batch
	err   error
}

func (w *batchWriter) Set(key, value []byte) {
	if w.err != nil {
		return
	}
	w.err = w.batch.Set(engineStateKey(key), value, nil)
}

func (w *batchWriter) Remove(key []byte) {
	if w.err != nil {
		return
	}
	w.err = w.batch.Delete(engineStateKey(key), nil)
}

func writeReceiptInfo(batch *pebble.Batch, receiptHash []byte, info ReceiptInfo) error {
	var buf []byte
	buf = append(buf, byte(info.Kind))
	switch info.Kind {
	case OutcomeSuccessValue:
		buf = appendLenPrefixed(buf, info.Value)
	case OutcomeSuccessReceiptID:
		buf = append(buf, info.ReceiptIDLink[:]...)
	}
	if err := batch.Set(receiptOutcomeKey(receiptHash), buf, nil); err != nil {
		return fmt.Errorf("storage: rocksdb set receipt outcome: %w", err)
	}
	return nil
}

func appendLenPrefixed(buf, v []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(v)))
	buf = append(buf, l[:]...)
	return append(buf, v...)
}

// GetReceiptOutcome returns the persisted outcome info for a receipt.
func (s *Storage) GetReceiptOutcome(receiptHash []byte) (ReceiptInfo, error) {
	v, closer, err := s.db.Get(receiptOutcomeKey(receiptHash))
	if err == pebble.ErrNotFound {
		return ReceiptInfo{}, ErrNotFound
	}
	if err != nil {
		return ReceiptInfo{}, fmt.Errorf("storage: rocksdb get receipt outcome: %w", err)
	}
	defer closer.Close()
	info := ReceiptInfo{Kind: OutcomeKind(v[0])}
	switch info.Kind {
	case OutcomeSuccessValue:
		n := binary.BigEndian.Uint32(v[1:5])
		info.Value = append([]byte(nil), v[5:5+n]...)
	case OutcomeSuccessReceiptID:
		copy(info.ReceiptIDLink[:], v[1:])
	}
	return info, nil
}

// GetReceiptDiff returns the persisted diff for a receipt.
func (s *Storage) GetReceiptDiff(receiptHash []byte) (*diff.Diff, error) {
	v, closer, err := s.db.Get(receiptDiffKey(receiptHash))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: rocksdb get receipt diff: %w", err)
	}
	defer closer.Close()
	d := &diff.Diff{}
	if err := d.UnmarshalBinary(v); err != nil {
		return nil, fmt.Errorf("storage: decode receipt diff: %w", err)
	}
	return d, nil
}

// engineReader adapts Storage's engine-state partition to kvio.Reader.
type engineReader struct {
	s *Storage
}

func (r engineReader) Get(key []byte) ([]byte, bool) {
	v, closer, err := r.s.db.Get(engineStateKey(key))
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	return append([]byte(nil), v...), true
}

func (r engineReader) HasKey(key []byte) bool {
	_, ok := r.Get(key)
	return ok
}

// engineAccessView composes a kvio.Overlay over committed engine state with
// a diff.Builder so replay code sees a single kvio.View: reads see the
// view's own earlier writes first and fall through to committed engine
// state, writes land in the overlay and the Builder until the caller
// decides what to do with the resulting Diff.
type engineAccessView struct {
	overlay *kvio.Overlay
	builder *diff.Builder
}

func (v engineAccessView) Get(key []byte) ([]byte, bool) { return v.overlay.Get(key) }
func (v engineAccessView) HasKey(key []byte) bool        { return v.overlay.HasKey(key) }
func (v engineAccessView) Set(key []byte, value []byte) {
	v.overlay.Set(key, value)
	v.builder.Set(key, value)
}
func (v engineAccessView) Remove(key []byte) {
	v.overlay.Remove(key)
	v.builder.Remove(key)
}

// WithEngineAccess supplies f with a batch-overlaid view of engine state at
// (height, position) and returns the Diff f's writes produced; nothing is
// committed automatically (spec §4.1: "Writes performed inside f are
// collected into a fresh Diff and returned; nothing is committed
// automatically"). height/position are accepted for interface parity with
// spec §4.1's signature; this in-process Storage does not itself branch
// behavior on them (callers needing position-addressed code resolution use
// internal/contract, which is keyed by (height, position) separately).
func (s *Storage) WithEngineAccess(height uint64, position uint32, f func(view kvio.View)) *diff.Diff {
	builder := diff.NewBuilder(engineReader{s})
	view := engineAccessView{overlay: kvio.NewOverlay(engineReader{s}), builder: builder}
	f(view)
	return builder.Diff()
}

// SetCustomData stores an arbitrary byte value under key, for engine code
// artifacts and other non-height-indexed data (spec §4.1).
func (s *Storage) SetCustomData(key, value []byte) error {
	if err := s.db.Set(customDataKey(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb set custom data: %w", err)
	}
	return nil
}

// GetCustomData returns the value stored under key, or ErrNotFound.
func (s *Storage) GetCustomData(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(customDataKey(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: rocksdb get custom data: %w", err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// SetCustomDataAt records value in key's height-indexed timeline at
// (height, position) (spec §4.1, used for write-once-per-height contract
// code and version bindings).
func (s *Storage) SetCustomDataAt(key []byte, height uint64, position uint32, value []byte) error {
	if err := s.db.Set(customDataAtKey(key, height, position), value, pebble.Sync); err != nil {
		return fmt.Errorf("storage: rocksdb set custom-data-at: %w", err)
	}
	return nil
}

// GetCustomDataAt returns the newest timeline entry for key with
// (h', p') <= (height, position), or ErrNotFound if none exists (spec
// §4.1's lexicographic "newest entry at or before" rule).
func (s *Storage) GetCustomDataAt(key []byte, height uint64, position uint32) ([]byte, error) {
	upper := customDataAtKey(key, height, position)
	// Append a 0xff byte to the upper bound so the target key itself is
	// included in the iteration range (UpperBound is exclusive).
	upperInclusive := append(append([]byte(nil), upper...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: customDataAtPrefix(key),
		UpperBound: upperInclusive,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: rocksdb new iter: %w", err)
	}
	defer iter.Close()
	if !iter.Last() {
		return nil, ErrNotFound
	}
	return append([]byte(nil), iter.Value()...), nil
}
