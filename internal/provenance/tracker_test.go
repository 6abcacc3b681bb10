package provenance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func hashOf(b byte) Hash {
	var h Hash
	h[31] = b
	return h
}

// TestProvenanceSurvivesRestart exercises the shape of spec scenario S6:
// receipts recorded at one height are still resolvable after a restart,
// and pruning drops entries older than the retention window while keeping
// recent ones, including a receipt derived transitively from another
// receipt.
func TestProvenanceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	tracker, err := Open(dir, 0)
	require.NoError(t, err)

	rx1, tx1 := hashOf(1), hashOf(0xaa)
	require.NoError(t, tracker.RecordReceipt(rx1, tx1, 34_834_053))
	got, ok := tracker.GetTxHash(rx1)
	require.True(t, ok)
	require.Equal(t, tx1, got)

	require.NoError(t, tracker.PruneBefore(34_834_053))
	require.NoError(t, tracker.Close())

	tracker, err = Open(dir, 34_834_053)
	require.NoError(t, err)
	got, ok = tracker.GetTxHash(rx1)
	require.True(t, ok)
	require.Equal(t, tx1, got)

	rx2, tx2 := hashOf(2), hashOf(0xbb)
	require.NoError(t, tracker.RecordReceipt(rx2, tx2, 51_188_689))
	require.NoError(t, tracker.PruneBefore(51_188_689))
	require.NoError(t, tracker.Close())

	// After pruning at height 51,188,689 the much older block 34,834,053's
	// entry should be gone from the persistent store (PersistentHistoryBlocks
	// below that threshold), but the just-recorded one survives restart.
	tracker, err = Open(dir, 51_188_689)
	require.NoError(t, err)
	_, ok = tracker.GetTxHash(rx1)
	require.False(t, ok)
	got, ok = tracker.GetTxHash(rx2)
	require.True(t, ok)
	require.Equal(t, tx2, got)

	// rx3 is produced from rx2, which came from tx2: it should resolve to
	// tx2 transitively.
	rx3 := hashOf(3)
	txForRx2, ok := tracker.GetTxHash(rx2)
	require.True(t, ok)
	require.NoError(t, tracker.RecordReceipt(rx3, txForRx2, 51_188_690))

	require.NoError(t, tracker.PruneBefore(51_188_690))
	require.NoError(t, tracker.Close())

	tracker, err = Open(dir, 51_188_690)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })

	got, ok = tracker.GetTxHash(rx2)
	require.True(t, ok)
	require.Equal(t, tx2, got)
	got, ok = tracker.GetTxHash(rx3)
	require.True(t, ok)
	require.Equal(t, tx2, got)
}
