package storage

import "encoding/binary"

// Key prefixes partitioning the single pebble keyspace, per spec §4.1.
// Each is one byte so lexicographic ordering within a prefix is untouched
// by the prefix itself.
const (
	prefixBlockHash        byte = 0x01 // height(BE64) -> hash(32)
	prefixBlockHeight      byte = 0x02 // hash(32) -> height(BE64)
	prefixBlockMetadata    byte = 0x03 // hash(32) -> metadata
	prefixEngineState      byte = 0x04 // address-keyed engine state (raw key passthrough)
	prefixReceiptDiff      byte = 0x05 // receipt hash(32) -> encoded Diff
	prefixReceiptOutcome   byte = 0x06 // receipt hash(32) -> encoded outcome info
	prefixCustomData       byte = 0x07 // arbitrary key -> bytes
	prefixCustomDataAt     byte = 0x08 // len(key)(BE32) || key || height(BE64) || position(BE32) -> bytes
	prefixSentinelAccount  byte = 0x09 // fixed key -> engine account id
	prefixLatestBlock      byte = 0x0a // fixed key -> height(BE64)
	prefixEarliestBlock    byte = 0x0b // fixed key -> height(BE64)
)

func beU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func beU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func withPrefix(p byte, rest ...[]byte) []byte {
	n := 1
	for _, r := range rest {
		n += len(r)
	}
	out := make([]byte, 0, n)
	out = append(out, p)
	for _, r := range rest {
		out = append(out, r...)
	}
	return out
}

func blockHashKey(height uint64) []byte     { return withPrefix(prefixBlockHash, beU64(height)) }
func blockHeightKey(hash []byte) []byte     { return withPrefix(prefixBlockHeight, hash) }
func blockMetadataKey(hash []byte) []byte   { return withPrefix(prefixBlockMetadata, hash) }
func receiptDiffKey(hash []byte) []byte     { return withPrefix(prefixReceiptDiff, hash) }
func receiptOutcomeKey(hash []byte) []byte  { return withPrefix(prefixReceiptOutcome, hash) }
func customDataKey(key []byte) []byte       { return withPrefix(prefixCustomData, key) }
func engineStateKey(key []byte) []byte      { return withPrefix(prefixEngineState, key) }

// customDataAtKey produces a key whose lexicographic order matches
// (key, height, position) ordering, as required by the timeline lookup in
// spec §4.1 ("lookup at (key, h, p) returns the newest entry with
// (h', p') <= (h, p)").
func customDataAtKey(key []byte, height uint64, position uint32) []byte {
	out := make([]byte, 0, 1+len(key)+1+8+4)
	out = append(out, prefixCustomDataAt)
	out = append(out, beU32(uint32(len(key)))...)
	out = append(out, key...)
	out = append(out, beU64(height)...)
	out = append(out, beU32(position)...)
	return out
}

// customDataAtPrefix returns the key prefix shared by all timeline entries
// for key, used to bound an upper-iterator at (height, position).
func customDataAtPrefix(key []byte) []byte {
	out := make([]byte, 0, 1+4+len(key))
	out = append(out, prefixCustomDataAt)
	out = append(out, beU32(uint32(len(key)))...)
	out = append(out, key...)
	return out
}

var (
	sentinelAccountKey = []byte{prefixSentinelAccount}
	latestBlockKey     = []byte{prefixLatestBlock}
	earliestBlockKey   = []byte{prefixEarliestBlock}
)
