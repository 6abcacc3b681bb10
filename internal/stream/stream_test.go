package stream

import (
	"context"
	"io"
	"sync"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/go-refiner/internal/consumer"
	"github.com/aurora-is-near/go-refiner/internal/innerblock"
	"github.com/aurora-is-near/go-refiner/internal/outer"
)

type fakeSource struct {
	blocks []*outer.Block
	idx    int
}

func (f *fakeSource) Next(ctx context.Context) (*outer.Block, error) {
	if f.idx >= len(f.blocks) {
		return nil, io.EOF
	}
	b := f.blocks[f.idx]
	f.idx++
	return b, nil
}

type fakeConsumer struct {
	txs []consumer.Transaction
}

func (f fakeConsumer) ProcessBlock(block outer.Block, dataReceipts *lru.Cache[outer.Hash, consumer.DataPayload]) ([]consumer.Transaction, error) {
	return f.txs, nil
}

type recordingSink struct {
	mu     sync.Mutex
	emits  []EmitMetadata
}

func (s *recordingSink) Emit(ctx context.Context, block *innerblock.Block, meta EmitMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emits = append(s.emits, meta)
	return nil
}

// TestDriverEmitsSkipBlocksForGaps exercises the near_stream.rs-grounded
// skip-block behavior: a gap between consecutive observed heights emits
// one skip block per missing height before the real block.
func TestDriverEmitsSkipBlocksForGaps(t *testing.T) {
	blocks := []*outer.Block{
		{Header: outer.BlockHeader{Height: 10}},
		{Header: outer.BlockHeader{Height: 13}},
	}
	source := &fakeSource{blocks: blocks}
	sink := &recordingSink{}
	last := uint64(9)
	driver := &Driver{
		Source:     source,
		Consumer:   fakeConsumer{},
		Sink:       sink,
		ChainID:    1313161554,
		Account:    "aurora",
		LastHeight: &last,
		Metrics:    &Metrics{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := driver.Run(ctx)
	require.Error(t, err) // fakeSource terminates with io.EOF, surfaced as the driver's error

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// height 10 (real), then for height 13: skip 11, skip 12, then real 13.
	require.Len(t, sink.emits, 4)
	require.False(t, sink.emits[0].IsSkip)
	require.Equal(t, uint64(10), sink.emits[0].NearHeight)
	require.True(t, sink.emits[1].IsSkip)
	require.Equal(t, uint64(11), sink.emits[1].NearHeight)
	require.True(t, sink.emits[2].IsSkip)
	require.Equal(t, uint64(12), sink.emits[2].NearHeight)
	require.False(t, sink.emits[3].IsSkip)
	require.Equal(t, uint64(13), sink.emits[3].NearHeight)

	require.Equal(t, uint64(2), driver.Metrics.Processed.Load())
	require.Equal(t, uint64(2), driver.Metrics.Skipped.Load())
}

// TestConsumeOnePropagatesOpaqueTypeByte exercises the opaque-action path
// end to end: a consumer.Transaction carrying TypeByte 0xfe must surface on
// the built inner block's corresponding Transaction, matching spec §3's
// type-0xfe inner transaction requirement.
func TestConsumeOnePropagatesOpaqueTypeByte(t *testing.T) {
	blocks := []*outer.Block{{Header: outer.BlockHeader{Height: 10}}}
	source := &fakeSource{blocks: blocks}
	sink := &recordingBlockSink{}
	driver := &Driver{
		Source: source,
		Consumer: fakeConsumer{txs: []consumer.Transaction{
			{TypeByte: 0x00},
			{TypeByte: 0xfe},
		}},
		Sink:    sink,
		ChainID: 1313161554,
		Account: "aurora",
		Metrics: &Metrics{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := driver.Run(ctx)
	require.Error(t, err) // fakeSource terminates with io.EOF

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.blocks, 1)
	require.Len(t, sink.blocks[0].Transactions, 2)
	require.Equal(t, byte(0x00), sink.blocks[0].Transactions[0].TypeByte)
	require.Equal(t, byte(0xfe), sink.blocks[0].Transactions[1].TypeByte)
}

type recordingBlockSink struct {
	mu     sync.Mutex
	blocks []*innerblock.Block
}

func (s *recordingBlockSink) Emit(ctx context.Context, block *innerblock.Block, meta EmitMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, block)
	return nil
}
