package consumer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/go-refiner/internal/actions"
	"github.com/aurora-is-near/go-refiner/internal/diff"
)

func TestAdmitBlockHashIsDeterministicAndInputSensitive(t *testing.T) {
	h1 := admitBlockHash(1313161554, 100, "aurora")
	h2 := admitBlockHash(1313161554, 100, "aurora")
	require.Equal(t, h1, h2)

	h3 := admitBlockHash(1313161554, 101, "aurora")
	require.NotEqual(t, h1, h3)

	h4 := admitBlockHash(1313161554, 100, "other.near")
	require.NotEqual(t, h1, h4)
}

func TestVirtualReceiptIDVariesByIndex(t *testing.T) {
	var receiptHash [32]byte
	receiptHash[0] = 0xaa

	id0 := virtualReceiptID(receiptHash, 0)
	id1 := virtualReceiptID(receiptHash, 1)
	require.NotEqual(t, id0, id1)
	require.NotEqual(t, receiptHash, id0)

	// Deterministic: same inputs give the same virtual id.
	require.Equal(t, id0, virtualReceiptID(receiptHash, 0))
}

func TestSingleOpDiffRemoveVsSet(t *testing.T) {
	setDiff := singleOpDiff([]byte("k"), []byte("v"), false)
	require.False(t, setDiff.Empty())
	ops := setDiff.Ops()
	require.Len(t, ops, 1)
	require.Equal(t, []byte("v"), ops[0].Value)

	removeDiff := singleOpDiff([]byte("k"), nil, true)
	require.Len(t, removeDiff.Ops(), 1)
}

func TestCombineDiffHandlesNils(t *testing.T) {
	require.Nil(t, combineDiff(nil, nil))
	d := singleOpDiff([]byte("k"), []byte("v"), false)
	require.Same(t, d, combineDiff(nil, d))
	require.Same(t, d, combineDiff(d, nil))

	other := singleOpDiff([]byte("k2"), []byte("v2"), false)
	combined := combineDiff(d, other)
	require.Len(t, combined.Ops(), 2)
}

func TestReplayOpaqueBypassesEngineAndCarriesExpectedOutput(t *testing.T) {
	tx := &actions.Transaction{Kind: actions.KindOpaque, Raw: []byte("create-account-bytes")}
	result := replayOpaque(tx, []byte("receipt-output"))

	require.Equal(t, actions.KindOpaque, result.Kind)
	require.Equal(t, byte(0xfe), result.TypeByte)
	require.Equal(t, []byte("create-account-bytes"), result.RawRLP)
	require.Equal(t, []byte("receipt-output"), result.ComputedOutput)
	require.Equal(t, []byte("receipt-output"), result.OutputBytes)
	require.Nil(t, result.Diff)
}

func TestActionDiffRetainsPerActionDiffSeparatelyFromCumulative(t *testing.T) {
	first := singleOpDiff([]byte("k1"), []byte("v1"), false)
	second := singleOpDiff([]byte("k2"), []byte("v2"), false)

	results := []Transaction{{Diff: first}, {Diff: second}}
	var cumulative *diff.Diff
	for i := range results {
		results[i].ActionDiff = results[i].Diff
		cumulative = combineDiff(cumulative, results[i].Diff)
		results[i].Diff = cumulative
	}

	require.Same(t, first, results[0].ActionDiff)
	require.Same(t, second, results[1].ActionDiff)
	require.Len(t, results[0].Diff.Ops(), 1)
	require.Len(t, results[1].Diff.Ops(), 2)
}

func TestBE32RoundTripSanity(t *testing.T) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 42)
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(buf[:]))
}
