package contract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ContractKey is the fixed custom-data key under which engine code is
// addressed, matching original_source/engine/src/storage_ext.rs's
// CONTRACT_KEY = b"\0".
var ContractKey = []byte{0x00}

// ErrNotFound mirrors spec §4.2's apply() failure mode:
// "else -> fail NotFound{height, pos}".
type ErrNotFound struct {
	Height   uint64
	Position uint32
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("contract: not found for height=%d position=%d", e.Height, e.Position)
}

// dataAtStore is the subset of internal/storage.Storage the cache needs:
// the (key, height, position) timeline plus plain custom-data-by-version
// storage. Declared as an interface here so this package does not import
// internal/storage directly, avoiding a cycle with callers that construct
// both.
type dataAtStore interface {
	GetCustomDataAt(key []byte, height uint64, position uint32) ([]byte, error)
	SetCustomDataAt(key []byte, height uint64, position uint32, value []byte) error
	GetCustomData(key []byte) ([]byte, error)
	SetCustomData(key []byte, value []byte) error
}

func versionKey(version string) []byte {
	return append(append([]byte(nil), ContractKey...), []byte(version)...)
}

// Cache resolves "which WASM bytes govern replay at (height, position)"
// per spec §4.2's two address schemes and 4-step apply() resolution, and
// keeps an LRU of compiled contracts (capacity 10) to avoid recompiling the
// same bytes on every replay.
type Cache struct {
	store        dataAtStore
	fsFallbackDir string
	compiled     *lru.Cache[string, []byte]
	versions     *VersionMap
}

// NewCache builds a Cache backed by store, with fsFallbackDir used as the
// last-resort filesystem lookup keyed by version string (spec §4.2 step 3).
func NewCache(store dataAtStore, fsFallbackDir string, versions *VersionMap) (*Cache, error) {
	compiled, err := lru.New[string, []byte](10)
	if err != nil {
		return nil, fmt.Errorf("contract: new lru: %w", err)
	}
	return &Cache{store: store, fsFallbackDir: fsFallbackDir, compiled: compiled, versions: versions}, nil
}

// StoreContractByVersion writes bytes under the write-once-by-version
// scheme. A second write for the same version with different bytes is
// rejected, preserving "write-once" (spec §4.2).
func (c *Cache) StoreContractByVersion(version string, bytes []byte) error {
	existing, err := c.store.GetCustomData(versionKey(version))
	if err == nil {
		if string(existing) != string(bytes) {
			return fmt.Errorf("contract: version %q already bound to different bytes", version)
		}
		return nil
	}
	return c.store.SetCustomData(versionKey(version), bytes)
}

// StoreContract writes bytes under the write-once-per-(height,position)
// scheme.
func (c *Cache) StoreContract(height uint64, position uint32, bytes []byte) error {
	existing, err := c.store.GetCustomDataAt(ContractKey, height, position)
	if err == nil {
		if string(existing) != string(bytes) {
			return fmt.Errorf("contract: (height=%d, position=%d) already bound to different bytes", height, position)
		}
		return nil
	}
	return c.store.SetCustomDataAt(ContractKey, height, position, bytes)
}

// Apply resolves the WASM bytes governing (height, position), following
// spec §4.2's 4-step order:
//  1. custom_data_at(CONTRACT_KEY, height, position) if present.
//  2. else, if a version is supplied or resolvable, read by version, write
//     through into (height, position), then use it.
//  3. else, fall back to the filesystem, keyed by version string.
//  4. else, fail NotFound{height, position}.
func (c *Cache) Apply(height uint64, position uint32, explicitVersion string) ([]byte, error) {
	if bytes, err := c.store.GetCustomDataAt(ContractKey, height, position); err == nil {
		return c.loadCompiled(fmt.Sprintf("pos:%d:%d", height, position), bytes)
	}

	version := explicitVersion
	if version == "" && c.versions != nil {
		if v, ok := c.versions.VersionAtHeight(height); ok {
			version = v
		}
	}
	if version != "" {
		if bytes, err := c.store.GetCustomData(versionKey(version)); err == nil {
			if err := c.store.SetCustomDataAt(ContractKey, height, position, bytes); err != nil {
				return nil, fmt.Errorf("contract: write-through (height=%d, position=%d): %w", height, position, err)
			}
			return c.loadCompiled("ver:"+version, bytes)
		}

		if c.fsFallbackDir != "" {
			path := filepath.Join(c.fsFallbackDir, version+".wasm")
			if bytes, err := os.ReadFile(path); err == nil {
				return c.loadCompiled("fs:"+version, bytes)
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("contract: read fallback %s: %w", path, err)
			}
		}
	}

	return nil, &ErrNotFound{Height: height, Position: position}
}

// loadCompiled returns bytes, populating the compiled-contract LRU under
// cacheKey. The LRU's purpose here is purely to avoid recompiling WASM
// bytes the EVM runner has already prepared a compiled module for; this
// package only tracks the raw bytes, the runner package owns the actual
// compiled-module cache keyed the same way.
func (c *Cache) loadCompiled(cacheKey string, bytes []byte) ([]byte, error) {
	if cached, ok := c.compiled.Get(cacheKey); ok {
		return cached, nil
	}
	c.compiled.Add(cacheKey, bytes)
	return bytes, nil
}
