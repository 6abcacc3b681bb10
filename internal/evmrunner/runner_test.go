package evmrunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeModule is a trivial Module used to exercise Runner's caching and the
// Ext capability boundary without a compiled engine library.
type fakeModule struct {
	version string
	calls   int
}

func (f *fakeModule) Call(method string, input []byte, env Env, ext Ext) (Outcome, error) {
	f.calls++
	ext.LogAction(ActionTransfer, []byte("transferred"))
	ext.Set([]byte("k"), []byte(method))
	return Outcome{Output: append([]byte("echo:"), input...), Actions: ext.Actions()}, nil
}

func (f *fakeModule) Version() (string, error) { return f.version, nil }
func (f *fakeModule) Close() error              { return nil }

func TestRunnerCachesCompiledModules(t *testing.T) {
	loads := 0
	loader := func(bytes []byte) (Module, error) {
		loads++
		return &fakeModule{version: "v3.7.0"}, nil
	}
	r, err := NewRunner(loader)
	require.NoError(t, err)

	m1, err := r.Load("v3.7.0", []byte("wasm-bytes"))
	require.NoError(t, err)
	m2, err := r.Load("v3.7.0", []byte("wasm-bytes"))
	require.NoError(t, err)
	require.Same(t, m1, m2)
	require.Equal(t, 1, loads)

	ext := NewEngineExt(&memView{data: map[string][]byte{}})
	out, err := m1.Call("call", []byte("payload"), Env{}, ext)
	require.NoError(t, err)
	require.Equal(t, "echo:payload", string(out.Output))
	require.Len(t, out.Actions, 1)
}

type memView struct{ data map[string][]byte }

func (m *memView) Get(key []byte) ([]byte, bool) { v, ok := m.data[string(key)]; return v, ok }
func (m *memView) HasKey(key []byte) bool        { _, ok := m.data[string(key)]; return ok }
func (m *memView) Set(key []byte, value []byte)  { m.data[string(key)] = value }
func (m *memView) Remove(key []byte)             { delete(m.data, string(key)) }

func TestNoopExtDiscardsWrites(t *testing.T) {
	ext := NewNoopExt()
	ext.Set([]byte("k"), []byte("v"))
	_, ok := ext.Get([]byte("k"))
	require.False(t, ok)
}
