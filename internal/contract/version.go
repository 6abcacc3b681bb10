// Package contract implements the versioned engine-code cache and the
// remote version-at-height resolver described in spec §4.2, grounded on
// original_source/engine/src/contract/version.rs (VersionMap,
// VersionRequest) and original_source/engine/src/storage_ext.rs
// (store_contract/store_contract_by_version/apply).
package contract

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// threshold is one (height, version) entry in the version map, sorted
// ascending by Height.
type threshold struct {
	Height  uint64
	Version string
}

// VersionMap answers "which engine-code version governs height h", per
// spec §4.2: "Lookup is 'greatest threshold <= h'... heights above a
// configured inaccurate watermark resolve to None".
type VersionMap struct {
	thresholds []threshold
	inaccurate uint64 // heights >= inaccurate resolve to ("", false)
	hasWatermark bool
}

// NewVersionMap constructs an empty map. Populate adds entries.
func NewVersionMap() *VersionMap {
	return &VersionMap{}
}

// SetInaccurateWatermark marks the height at and above which the map no
// longer has reliable data; VersionAtHeight returns ok=false for such
// heights, requiring the caller to supply an explicit version (spec §4.2).
func (m *VersionMap) SetInaccurateWatermark(height uint64) {
	m.inaccurate = height
	m.hasWatermark = true
}

// Insert adds or replaces the threshold entry at height, keeping the table
// sorted ascending by height.
func (m *VersionMap) Insert(height uint64, version string) {
	for i, t := range m.thresholds {
		if t.Height == height {
			m.thresholds[i].Version = version
			return
		}
	}
	m.thresholds = append(m.thresholds, threshold{Height: height, Version: version})
	sort.Slice(m.thresholds, func(i, j int) bool { return m.thresholds[i].Height < m.thresholds[j].Height })
}

// VersionAtHeight returns the version governing height h: the entry with
// the greatest threshold <= h. If h is below the first threshold, or at or
// above the inaccurate watermark, ok is false (spec §4.2 exactly, including
// S5's test vectors).
func (m *VersionMap) VersionAtHeight(h uint64) (version string, ok bool) {
	if m.hasWatermark && h >= m.inaccurate {
		return "", false
	}
	if len(m.thresholds) == 0 || h < m.thresholds[0].Height {
		return "", false
	}
	// Greatest threshold <= h: binary-search for the insertion point and
	// step back one.
	idx := sort.Search(len(m.thresholds), func(i int) bool { return m.thresholds[i].Height > h })
	if idx == 0 {
		return "", false
	}
	return m.thresholds[idx-1].Version, true
}

// Prober probes a remote read-only NEAR RPC endpoint for the version
// deployed at a given height, used to populate a VersionMap by binary-chop
// (original_source/engine/src/contract/version.rs's populate/populate_next).
type Prober struct {
	client  *retryablehttp.Client
	baseURL string
}

// NewProber builds a Prober with exponential backoff capped at 60s and a
// 4s per-request timeout (spec §4.2/§5), using go-retryablehttp (already an
// indirect teacher dependency) rather than a hand-rolled retry loop.
func NewProber(baseURL string) *Prober {
	c := retryablehttp.NewClient()
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 60 * time.Second
	c.RetryMax = 12
	c.HTTPClient.Timeout = 4 * time.Second
	c.Logger = nil
	return &Prober{client: c, baseURL: baseURL}
}

// RPCCall calls the engine's get_version view method at block height.
// The actual RPC payload shape is NEAR's standard view-call JSON-RPC
// request; callers inject the request/response marshaling so this package
// stays independent of a concrete NEAR client library (none of the
// retrieved examples bundle one).
type RPCCall func(ctx context.Context, client *retryablehttp.Client, baseURL string, height uint64) (string, error)

// Populate runs a binary-chop search over [low, high] using call to probe
// individual heights, inserting every observed (height, version) transition
// into m. This mirrors populate_next's probe-then-bisect loop: whenever two
// adjacent probes disagree, the boundary is narrowed until the exact
// threshold height is found.
func Populate(ctx context.Context, m *VersionMap, p *Prober, call RPCCall, low, high uint64) error {
	if low > high {
		return fmt.Errorf("contract: invalid probe range [%d, %d]", low, high)
	}
	lowVersion, err := call(ctx, p.client, p.baseURL, low)
	if err != nil {
		return fmt.Errorf("contract: probe height %d: %w", low, err)
	}
	m.Insert(low, lowVersion)
	return bisect(ctx, m, p, call, low, lowVersion, high)
}

func bisect(ctx context.Context, m *VersionMap, p *Prober, call RPCCall, low uint64, lowVersion string, high uint64) error {
	if high <= low+1 {
		highVersion, err := call(ctx, p.client, p.baseURL, high)
		if err != nil {
			return fmt.Errorf("contract: probe height %d: %w", high, err)
		}
		if highVersion != lowVersion {
			m.Insert(high, highVersion)
		}
		return nil
	}
	mid := low + (high-low)/2
	midVersion, err := call(ctx, p.client, p.baseURL, mid)
	if err != nil {
		return fmt.Errorf("contract: probe height %d: %w", mid, err)
	}
	if midVersion == lowVersion {
		return bisect(ctx, m, p, call, mid, midVersion, high)
	}
	m.Insert(mid, midVersion)
	if err := bisect(ctx, m, p, call, low, lowVersion, mid); err != nil {
		return err
	}
	return bisect(ctx, m, p, call, mid, midVersion, high)
}
