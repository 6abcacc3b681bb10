//go:build !cgo || !engine
// +build !cgo !engine

package evmrunner

import "fmt"

// NewDefaultRunner reports that no engine backend was compiled in. Builds
// without cgo, or without the `engine` build tag, cannot execute code at
// all -- per spec §7's "Initialization" error class ("Engine-code not
// present and no version resolvable... bubble up, refiner cannot make
// progress on this height"), so this is a hard error rather than a silent
// no-op runner.
func NewDefaultRunner() (*Runner, error) {
	return nil, fmt.Errorf("evmrunner: built without cgo+engine support; rebuild with -tags engine and CGO_ENABLED=1")
}
