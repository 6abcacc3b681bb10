package evmrunner

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Env carries the block-level context a call needs but which is not part of
// the key/value capability: the promise results available to the method
// (spec §4.3's call(method, input, promise_results, env, ext)).
type Env struct {
	ChainID        uint64
	Height         uint64
	Position       uint32
	Timestamp      uint64
	PromiseResults [][]byte
}

// Outcome is the result of one runner call: the raw return bytes the caller
// must interpret per spec §4.5 step 6 (SubmitResult / legacy shapes), plus
// the Ext's action log for the caller to fold into storage.
type Outcome struct {
	Output  []byte
	Actions []LoggedAction
}

// ErrBadReturnData is returned when the loaded module produces output the
// runner cannot interpret as a length-prefixed byte buffer (spec §4.3: "On
// unknown outcome data the runner returns BadReturnData").
var ErrBadReturnData = errors.New("evmrunner: bad return data")

// Module is the loaded, callable unit of engine code: a compiled WASM blob
// exposing a named-method entry point. Loading is delegated to a build-tag
// selected backend (see runner_cgo.go); without the cgo+engine build tags,
// NewDefaultRunner returns an error rather than silently no-op'ing, since a
// refiner that cannot execute code cannot make progress (spec §7
// "Initialization" error class).
type Module interface {
	// Call invokes method against ext with input and env, returning the raw
	// output bytes. Scheduling is single-threaded and synchronous: Call
	// blocks the caller (spec §4.3, §5 "suspension point (iv)").
	Call(method string, input []byte, env Env, ext Ext) (Outcome, error)
	// Version returns the ASCII version string the module's get_version
	// export reports, with trailing whitespace stripped (spec §6).
	Version() (string, error)
	// Close releases any resources (compiled module, FFI handles) backing
	// this Module.
	Close() error
}

// Runner loads WASM blobs into Modules and keeps an LRU of compiled
// modules (capacity 10, spec §4.3: "A per-runner LRU of compiled contracts
// (capacity 10) avoids recompilation").
type Runner struct {
	compiled *lru.Cache[string, Module]
	loader   func(bytes []byte) (Module, error)
}

// NewRunner builds a Runner using loader to turn raw WASM bytes into a
// callable Module. Production wiring supplies loadCGOModule (runner_cgo.go,
// gated behind the cgo+engine build tags); tests supply a fake loader.
func NewRunner(loader func(bytes []byte) (Module, error)) (*Runner, error) {
	compiled, err := lru.NewWithEvict[string, Module](10, func(_ string, m Module) {
		_ = m.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("evmrunner: new lru: %w", err)
	}
	return &Runner{compiled: compiled, loader: loader}, nil
}

// Load returns a Module for the given cacheKey/bytes pair, compiling (via
// the configured loader) only on a cache miss.
func (r *Runner) Load(cacheKey string, bytes []byte) (Module, error) {
	if m, ok := r.compiled.Get(cacheKey); ok {
		return m, nil
	}
	m, err := r.loader(bytes)
	if err != nil {
		return nil, fmt.Errorf("evmrunner: load %q: %w", cacheKey, err)
	}
	r.compiled.Add(cacheKey, m)
	return m, nil
}

// Close releases every cached module.
func (r *Runner) Close() {
	for _, key := range r.compiled.Keys() {
		if m, ok := r.compiled.Peek(key); ok {
			_ = m.Close()
		}
	}
	r.compiled.Purge()
}
