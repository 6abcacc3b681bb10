package contract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// memStore is a trivial in-memory dataAtStore for testing Cache in
// isolation from internal/storage.
type memStore struct {
	byVersion map[string][]byte
	byPos     map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{byVersion: map[string][]byte{}, byPos: map[string][]byte{}}
}

func posKey(height uint64, position uint32) string {
	return string(append([]byte{byte(height >> 56), byte(height >> 48), byte(height >> 40), byte(height >> 32),
		byte(height >> 24), byte(height >> 16), byte(height >> 8), byte(height)}, byte(position)))
}

func (m *memStore) GetCustomDataAt(key []byte, height uint64, position uint32) ([]byte, error) {
	v, ok := m.byPos[posKey(height, position)]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (m *memStore) SetCustomDataAt(key []byte, height uint64, position uint32, value []byte) error {
	m.byPos[posKey(height, position)] = value
	return nil
}

func (m *memStore) GetCustomData(key []byte) ([]byte, error) {
	v, ok := m.byVersion[string(key)]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (m *memStore) SetCustomData(key []byte, value []byte) error {
	m.byVersion[string(key)] = value
	return nil
}

func TestVersionMapS5Scenario(t *testing.T) {
	m := NewVersionMap()
	m.Insert(100_000_000, "v3.7.0")
	m.Insert(110_000_000, "v3.9.0")
	m.Insert(120_000_000, "v3.9.1")

	v, ok := m.VersionAtHeight(100_100_000)
	require.True(t, ok)
	require.Equal(t, "v3.7.0", v)

	v, ok = m.VersionAtHeight(100_000_000)
	require.True(t, ok)
	require.Equal(t, "v3.7.0", v)

	_, ok = m.VersionAtHeight(99_999_999)
	require.False(t, ok)

	v, ok = m.VersionAtHeight(110_000_001)
	require.True(t, ok)
	require.Equal(t, "v3.9.0", v)
}

func TestApplyResolutionOrder(t *testing.T) {
	store := newMemStore()
	versions := NewVersionMap()
	cache, err := NewCache(store, "", versions)
	require.NoError(t, err)

	_, err = cache.Apply(1, 0, "")
	var notFound *ErrNotFound
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, cache.StoreContractByVersion("v3.9.2", []byte("wasm-bytes-v3.9.2")))
	bytes, err := cache.Apply(130_000_000, 0, "v3.9.2")
	require.NoError(t, err)
	require.Equal(t, "wasm-bytes-v3.9.2", string(bytes))

	// Once written at (height, position) the binding is now write-once:
	// applying again with no explicit version must still resolve from the
	// (height, position) scheme.
	bytes, err = cache.Apply(130_000_000, 0, "")
	require.NoError(t, err)
	require.Equal(t, "wasm-bytes-v3.9.2", string(bytes))
}
