package innerblock

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestBlockHashIsDeterministicAndHeightSensitive(t *testing.T) {
	h1 := BlockHash(1313161554, 100)
	h2 := BlockHash(1313161554, 100)
	require.Equal(t, h1, h2)

	h3 := BlockHash(1313161554, 101)
	require.NotEqual(t, h1, h3)

	// parent-hash scheme reuses the same preimage one height down.
	parent := BlockHash(1313161554, 99)
	require.NotEqual(t, h1, parent)
}

func TestBuildAccumulatesGasAndSize(t *testing.T) {
	txs := []Transaction{
		{Hash: common.Hash{1}, OutputBytes: []byte("a"), GasUsed: 21000, ReceiptSize: 100},
		{Hash: common.Hash{2}, OutputBytes: []byte("b"), GasUsed: 50000, ReceiptSize: 200},
	}
	block := Build(1313161554, 10, txs, common.Hash{}, common.Address{}, NearMetadata{Kind: NearMetadataExistingBlock})
	require.Equal(t, uint64(71000), block.GasUsed)
	require.Equal(t, uint64(300), block.Size)
	require.NotEqual(t, common.Hash{}, block.TransactionsRoot)
	require.NotEqual(t, common.Hash{}, block.ReceiptsRoot)
}

func TestBuildPreservesOpaqueTransactionTypeByte(t *testing.T) {
	txs := []Transaction{
		{Hash: common.Hash{1}, TypeByte: 0x00},
		{Hash: common.Hash{2}, TypeByte: 0xfe},
	}
	block := Build(1313161554, 10, txs, common.Hash{}, common.Address{}, NearMetadata{Kind: NearMetadataExistingBlock})
	require.Equal(t, byte(0x00), block.Transactions[0].TypeByte)
	require.Equal(t, byte(0xfe), block.Transactions[1].TypeByte)
}

func TestBuildEmptyBlockHasEmptyRoots(t *testing.T) {
	block := Build(1313161554, 10, nil, common.Hash{}, common.Address{}, NearMetadata{Kind: NearMetadataSkipBlock})
	require.Equal(t, uint64(0), block.GasUsed)
	require.Equal(t, types.EmptyRootHash, block.TransactionsRoot)
	require.Equal(t, types.EmptyRootHash, block.ReceiptsRoot)
}

// TestBlockHashMatchesS4Vector pins the literal self-check vector: chain id
// 1313161554, height 62482103 hashes to 97ccface... .
func TestBlockHashMatchesS4Vector(t *testing.T) {
	got := BlockHash(1313161554, 62482103)
	want := common.HexToHash("0x97ccface51e97c896591c88ecb8106c4f48816493e1f7b1172245fb333a0e782")
	require.Equal(t, want, got)
}

func TestDerivedTxHashSubmitVsOther(t *testing.T) {
	rawRlp := []byte("rlp-bytes")
	submitHash := DerivedTxHash(true, rawRlp, [32]byte{})
	require.NotEqual(t, common.Hash{}, submitHash)

	var virtualID [32]byte
	virtualID[31] = 7
	otherHash := DerivedTxHash(false, nil, virtualID)
	require.Equal(t, common.Hash(virtualID), otherHash)
}
