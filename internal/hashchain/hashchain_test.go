package hashchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestIntrinsicHashRoundTrip(t *testing.T) {
	in := InputMetadata{Kind: InputRlp, Raw: []byte("rlp-bytes")}
	out := OutputMetadata{Kind: OutputSubmitResultV7, Raw: []byte("submit-result-bytes")}
	h := IntrinsicHash("submit", in, out)
	require.NoError(t, ValidateIntrinsicHash("submit", in, out, h))

	tampered := out
	tampered.Raw = []byte("different")
	err := ValidateIntrinsicHash("submit", in, tampered, h)
	require.Error(t, err)
	var mismatch *ErrIncorrectTxHash
	require.ErrorAs(t, err, &mismatch)
}

// TestSubmitWithArgsReconstructionIsSensitiveToFields guards the known
// EIP-1559-adjacent fragility here: any change to the recorded gas price
// or gas token address must change the reconstructed input, and
// therefore the intrinsic hash.
func TestSubmitWithArgsReconstructionIsSensitiveToFields(t *testing.T) {
	addr := [20]byte{1, 2, 3}
	base := InputMetadata{
		Kind:            InputSubmitWithArgs,
		MaxGasPrice:     []byte{0x01, 0x00},
		GasTokenAddress: &addr,
		InnerRaw:        []byte("inner-tx"),
	}
	out := OutputMetadata{Kind: OutputNone}
	h1 := IntrinsicHash("submit_with_args", base, out)

	changed := base
	changed.MaxGasPrice = []byte{0x02, 0x00}
	h2 := IntrinsicHash("submit_with_args", changed, out)
	require.NotEqual(t, h1, h2)

	noToken := base
	noToken.GasTokenAddress = nil
	h3 := IntrinsicHash("submit_with_args", noToken, out)
	require.NotEqual(t, h1, h3)
}

func TestOutputNoneReconstructsEmpty(t *testing.T) {
	out := OutputMetadata{Kind: OutputNone, Raw: []byte("should be ignored")}
	require.Empty(t, out.Reconstruct())
}

func TestCompactTreeDeterministicAndOrderSensitive(t *testing.T) {
	leaves := []func() [32]byte{
		func() [32]byte { return [32]byte{1} },
		func() [32]byte { return [32]byte{2} },
		func() [32]byte { return [32]byte{3} },
		func() [32]byte { return [32]byte{4} },
		func() [32]byte { return [32]byte{5} },
	}

	buildRoot := func(order []int) [32]byte {
		tree := NewCompactTree()
		for _, idx := range order {
			tree.Add(leaves[idx]())
		}
		return tree.Root()
	}

	r1 := buildRoot([]int{0, 1, 2, 3, 4})
	r2 := buildRoot([]int{0, 1, 2, 3, 4})
	require.Equal(t, r1, r2)

	r3 := buildRoot([]int{4, 3, 2, 1, 0})
	require.NotEqual(t, r1, r3)
}

func TestCompactTreeEmptyRootIsKeccakOfEmpty(t *testing.T) {
	tree := NewCompactTree()
	require.Equal(t, uint64(0), tree.Count())
	root := tree.Root()
	require.Equal(t, [32]byte(crypto.Keccak256(nil)), root)
}

func TestBlockHashDependsOnEveryField(t *testing.T) {
	prev := [32]byte{9}
	txs := [32]byte{8}
	bloom := make([]byte, 256)
	base := BlockHash(1313161554, "aurora", 100, prev, txs, bloom)

	diffHeight := BlockHash(1313161554, "aurora", 101, prev, txs, bloom)
	require.NotEqual(t, base, diffHeight)

	diffPrev := prev
	diffPrev[0] ^= 1
	require.NotEqual(t, base, BlockHash(1313161554, "aurora", 100, diffPrev, txs, bloom))
}
