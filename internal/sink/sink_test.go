package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/go-refiner/internal/innerblock"
	"github.com/aurora-is-near/go-refiner/internal/stream"
)

func TestEmitWritesBatchedFileAndSentinel(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSink(root)
	require.NoError(t, err)

	block := innerblock.Build(1313161554, 12345, nil, [32]byte{}, [20]byte{}, innerblock.NearMetadata{})
	err = s.Emit(context.Background(), block, stream.EmitMetadata{NearHeight: 777})
	require.NoError(t, err)

	batchDir := filepath.Join(root, "10000")
	data, err := os.ReadFile(filepath.Join(batchDir, "12345.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "\"Height\":12345")

	_, err = os.Stat(filepath.Join(root, ".PARTIAL"))
	require.True(t, os.IsNotExist(err))

	height, ok, err := ReadSentinel(root)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(777), height)
}

func TestReadSentinelAbsentReturnsFalse(t *testing.T) {
	root := t.TempDir()
	_, ok, err := ReadSentinel(root)
	require.NoError(t, err)
	require.False(t, ok)
}
