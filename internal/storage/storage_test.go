package storage

import (
	"testing"

	"github.com/aurora-is-near/go-refiner/internal/diff"
	"github.com/aurora-is-near/go-refiner/internal/kvio"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(t.TempDir(), "aurora", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAccountSentinelMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "aurora", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(dir, "not-aurora", nil)
	require.ErrorIs(t, err, ErrAccountMismatch)
}

func TestBlockHashHeightRoundTrip(t *testing.T) {
	s := openTemp(t)
	hash := make([]byte, 32)
	hash[0] = 0xab
	require.NoError(t, s.SetLatestBlock(105089746, hash))

	gotHash, gotHeight, err := s.GetLatestBlock()
	require.NoError(t, err)
	require.Equal(t, hash, gotHash)
	require.Equal(t, uint64(105089746), gotHeight)

	h, err := s.GetBlockHeightByHash(hash)
	require.NoError(t, err)
	require.Equal(t, uint64(105089746), h)
}

func TestTransactionIncludedAndRevert(t *testing.T) {
	s := openTemp(t)

	receiptHash := []byte("receipt-hash-0000000000000001")
	d := s.WithEngineAccess(1, 0, func(v kvio.View) {
		v.Set([]byte("key-a"), []byte("value-1"))
	})
	require.NoError(t, s.SetTransactionIncluded(receiptHash, ReceiptInfo{Kind: OutcomeSuccessValue, Value: []byte("ok")}, d))

	stored, err := s.GetReceiptDiff(receiptHash)
	require.NoError(t, err)
	require.True(t, stored.Equal(d))

	v, ok := engineReader{s}.Get([]byte("key-a"))
	require.True(t, ok)
	require.Equal(t, []byte("value-1"), v)

	require.NoError(t, s.RevertTransactionIncluded(receiptHash, d))
	_, ok = engineReader{s}.Get([]byte("key-a"))
	require.False(t, ok)

	_, err = s.GetReceiptDiff(receiptHash)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCustomDataAtNewestAtOrBefore(t *testing.T) {
	s := openTemp(t)
	key := []byte("contract-code")

	require.NoError(t, s.SetCustomDataAt(key, 100_000_000, 0, []byte("v3.7.0")))
	require.NoError(t, s.SetCustomDataAt(key, 110_000_000, 0, []byte("v3.9.0")))
	require.NoError(t, s.SetCustomDataAt(key, 120_000_000, 0, []byte("v3.9.1")))

	v, err := s.GetCustomDataAt(key, 100_100_000, 0)
	require.NoError(t, err)
	require.Equal(t, "v3.7.0", string(v))

	v, err = s.GetCustomDataAt(key, 100_000_000, 0)
	require.NoError(t, err)
	require.Equal(t, "v3.7.0", string(v))

	_, err = s.GetCustomDataAt(key, 99_999_999, 0)
	require.ErrorIs(t, err, ErrNotFound)

	v, err = s.GetCustomDataAt(key, 110_000_001, 0)
	require.NoError(t, err)
	require.Equal(t, "v3.9.0", string(v))
}

func TestDiffAppendLastWriteWins(t *testing.T) {
	b1 := diff.NewBuilder(nil)
	b1.Set([]byte("k"), []byte("v1"))
	d1 := b1.Diff()

	b2 := diff.NewBuilder(nil)
	b2.Set([]byte("k"), []byte("v2"))
	d2 := b2.Diff()

	merged := d1.Append(d2)
	require.Len(t, merged.Ops(), 2)
	require.Equal(t, []byte("v2"), merged.Ops()[1].Value)
}

func TestShareIsIndependentHandle(t *testing.T) {
	s := openTemp(t)
	shared := s.Share()
	require.False(t, shared.owned)

	hash := make([]byte, 32)
	require.NoError(t, s.SetLatestBlock(1, hash))
	_, h, err := shared.GetLatestBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(1), h)

	// Closing the shared handle must not close the owning one's db.
	require.NoError(t, shared.Close())
	_, _, err = s.GetLatestBlock()
	require.NoError(t, err)
}
