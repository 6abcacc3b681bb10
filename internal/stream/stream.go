// Package stream wires the outer-block source, the block consumer, and
// the inner-block sink into the three-stage cooperative pipeline spec §5
// describes: ingest, consume (refine), and emit, connected by bounded
// mailboxes. Grounded on original_source/refiner-lib/src/near_stream.rs's
// NearStream::next_block (skip-block emission, last-seen-height
// tracking) generalized from its single-call shape into the teacher's
// channel-and-goroutine idiom (core/revm_state_processor.go processes a
// block synchronously per call; this package adds the surrounding
// concurrency spec §5 requires, which the teacher's narrower scope never
// needed).
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aurora-is-near/go-refiner/internal/actions"
	"github.com/aurora-is-near/go-refiner/internal/consumer"
	"github.com/aurora-is-near/go-refiner/internal/hashchain"
	"github.com/aurora-is-near/go-refiner/internal/innerblock"
	"github.com/aurora-is-near/go-refiner/internal/outer"
)

// MailboxCapacity is the bounded channel capacity between pipeline stages
// (spec §5: "connected by bounded mailboxes (1000 items each)").
const MailboxCapacity = 1000

// Source yields outer blocks in strictly monotonic, possibly-skipped
// height order (spec §6's outer-stream consumer interface: "next() ->
// Option<OuterBlock>; blocking").
type Source interface {
	Next(ctx context.Context) (*outer.Block, error)
}

// EmitMetadata accompanies every emitted inner block with its outer-chain
// provenance, for the sink to persist alongside the block itself.
type EmitMetadata struct {
	NearHeight uint64
	NearHash   outer.Hash
	IsSkip     bool
}

// Sink persists one inner block (spec §6's inner-block sink interface:
// "emit(InnerBlock, metadata) -> (); blocking").
type Sink interface {
	Emit(ctx context.Context, block *innerblock.Block, meta EmitMetadata) error
}

// Metrics are the pipeline's internal counters. No exposition endpoint is
// wired to them (a Prometheus endpoint is explicitly out of scope); they
// exist for the driver's own observability and tests.
type Metrics struct {
	Processed        atomic.Uint64
	Skipped          atomic.Uint64
	UnknownTxReceipt  atomic.Uint64
}

// Driver runs the three-stage pipeline: one goroutine reads from Source,
// one replays each block through Consumer (emitting skip blocks as
// needed), and one hands finished inner blocks to Sink.
type Driver struct {
	Source     Source
	Consumer   consumerDeps
	Sink       Sink
	ChainID    uint64
	Account    string
	LastHeight *uint64 // nil means "no block observed yet"
	Metrics    *Metrics
	Log        gethlog.Logger

	lastStateRoot [32]byte
}

// consumerDeps is the narrow surface stream needs from *consumer.Consumer,
// declared here so tests can substitute a fake without constructing a
// full Storage/Runner/contract stack.
type consumerDeps interface {
	ProcessBlock(block outer.Block, dataReceipts *lru.Cache[outer.Hash, consumer.DataPayload]) ([]consumer.Transaction, error)
}

// NewDriver builds a Driver. logger may be nil.
func NewDriver(source Source, c *consumer.Consumer, sink Sink, chainID uint64, account string, lastHeight *uint64, logger gethlog.Logger) *Driver {
	if logger == nil {
		logger = gethlog.Root()
	}
	return &Driver{
		Source:     source,
		Consumer:   c,
		Sink:       sink,
		ChainID:    chainID,
		Account:    account,
		LastHeight: lastHeight,
		Metrics:    &Metrics{},
		Log:        logger,
	}
}

// Run drives the pipeline until ctx is cancelled (the broadcast shutdown
// signal, spec §5) or the source/sink return an error. Ingestion,
// consumption, and emission run as three goroutines connected by bounded
// channels; a full downstream channel blocks its producer (spec §5's
// backpressure model).
func (d *Driver) Run(ctx context.Context) error {
	ingested := make(chan *outer.Block, MailboxCapacity)
	emitted := make(chan emitJob, MailboxCapacity)
	errCh := make(chan error, 3)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); d.ingest(ctx, ingested, errCh) }()
	go func() { defer wg.Done(); d.consume(ctx, ingested, emitted, errCh) }()
	go func() { defer wg.Done(); d.emit(ctx, emitted, errCh) }()

	// Every stage observes ctx.Done() or its own channel closing and
	// drains in-flight work before returning (spec §5's cancellation
	// semantics), so Run only needs to wait for all three to finish
	// before reporting the first error any of them saw.
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

type emitJob struct {
	block *innerblock.Block
	meta  EmitMetadata
}

func (d *Driver) ingest(ctx context.Context, out chan<- *outer.Block, errCh chan<- error) {
	defer close(out)
	for {
		block, err := d.Source.Next(ctx)
		if err != nil {
			errCh <- fmt.Errorf("stream: ingest: %w", err)
			return
		}
		if block == nil {
			return
		}
		select {
		case out <- block:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Driver) consume(ctx context.Context, in <-chan *outer.Block, out chan<- emitJob, errCh chan<- error) {
	defer close(out)
	dataReceipts, err := consumer.NewDataReceiptCache()
	if err != nil {
		errCh <- fmt.Errorf("stream: new data-receipt cache: %w", err)
		return
	}
	prevHashchain := [32]byte{}

	for {
		select {
		case block, ok := <-in:
			if !ok {
				return
			}
			if err := d.consumeOne(ctx, block, dataReceipts, &prevHashchain, out); err != nil {
				errCh <- err
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Driver) consumeOne(ctx context.Context, block *outer.Block, dataReceipts *lru.Cache[outer.Hash, consumer.DataPayload], prevHashchain *[32]byte, out chan<- emitJob) error {
	height := block.Header.Height

	if d.LastHeight != nil {
		for h := *d.LastHeight + 1; h < height; h++ {
			skip := innerblock.Build(d.ChainID, h, nil, d.lastStateRoot, [20]byte{}, innerblock.NearMetadata{Kind: innerblock.NearMetadataSkipBlock})
			d.Metrics.Skipped.Add(1)
			if err := sendEmit(ctx, out, emitJob{block: skip, meta: EmitMetadata{NearHeight: h, IsSkip: true}}); err != nil {
				return err
			}
		}
	}

	txs, err := d.Consumer.ProcessBlock(*block, dataReceipts)
	if err != nil {
		return fmt.Errorf("stream: process block %d: %w", height, err)
	}

	innerTxs := make([]innerblock.Transaction, 0, len(txs))
	tree := hashchain.NewCompactTree()
	for _, tx := range txs {
		isSubmit := tx.Kind == actions.KindSubmit || tx.Kind == actions.KindSubmitWithArgs
		innerTxs = append(innerTxs, innerblock.Transaction{
			Hash:        innerblock.DerivedTxHash(isSubmit, tx.RawRLP, tx.ReceiptHash),
			OutputBytes: tx.ComputedOutput,
			TypeByte:    tx.TypeByte,
		})

		// The per-tx intrinsic hash here is computed directly from
		// tx.RawRLP and the replayed output rather than reconstructed from
		// stored hashchain metadata tags, since the outer-chain ingestion
		// layer that would carry that metadata is out of scope. tx.RawRLP
		// is set only for Submit/SubmitWithArgs and opaque actions, so every
		// other kind is hashed with an empty input.
		input := hashchain.InputMetadata{Kind: hashchain.InputExplicit, Raw: tx.RawRLP}
		output := hashchain.OutputMetadata{Kind: hashchain.OutputExplicit, Raw: tx.ComputedOutput}
		if len(tx.ComputedOutput) == 0 {
			output = hashchain.OutputMetadata{Kind: hashchain.OutputNone}
		}
		tree.Add(hashchain.IntrinsicHash(tx.Method, input, output))
	}

	built := innerblock.Build(d.ChainID, height, innerTxs, common.Hash(block.Header.PrevStateRoot), [20]byte{}, innerblock.NearMetadata{
		Kind:           innerblock.NearMetadataExistingBlock,
		NearHash:       outer.Hash(built32(block)),
		NearParentHash: block.Header.PrevHash,
		Author:         block.Header.Author,
	})

	blockHashchain := hashchain.BlockHash(uint32(d.ChainID), d.Account, height, *prevHashchain, tree.Root(), built.LogsBloom[:])
	*prevHashchain = blockHashchain

	heightCopy := height
	d.LastHeight = &heightCopy
	d.lastStateRoot = built.StateRoot
	d.Metrics.Processed.Add(1)

	return sendEmit(ctx, out, emitJob{block: built, meta: EmitMetadata{NearHeight: height, NearHash: block.Header.PrevHash}})
}

func built32(block *outer.Block) [32]byte {
	// Placeholder outer-block-hash identity: the refiner's outer-stream
	// ingestion (out of scope here, spec Non-goals) is expected to supply
	// the true NEAR block hash on OuterBlock; until wired, the previous
	// hash is reused as a stable per-height stand-in so NearMetadata
	// remains internally consistent.
	return block.Header.PrevHash
}

func sendEmit(ctx context.Context, out chan<- emitJob, job emitJob) error {
	select {
	case out <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) emit(ctx context.Context, in <-chan emitJob, errCh chan<- error) {
	for {
		select {
		case job, ok := <-in:
			if !ok {
				return
			}
			if err := d.Sink.Emit(ctx, job.block, job.meta); err != nil {
				errCh <- fmt.Errorf("stream: emit height %d: %w", job.meta.NearHeight, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
