package legacy

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// encode helpers mirror the borsh layouts decodeV7/decodeLegacyV1/V2/V3
// expect, used here only to build fixtures -- the production code path
// never encodes a SubmitResult, only decodes one replayed from the engine.

func putU32(n uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

func putU64(n uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, n)
	return b
}

func putBytesVec(b []byte) []byte {
	return append(putU32(uint32(len(b))), b...)
}

func encodeV7(status byte, statusPayload []byte, gasUsed uint64, logsWithAddr [][]byte) []byte {
	out := []byte{7, status}
	if status == 0 || status == 1 {
		out = append(out, putBytesVec(statusPayload)...)
	}
	out = append(out, putU64(gasUsed)...)
	out = append(out, putU32(uint32(len(logsWithAddr)))...)
	for _, l := range logsWithAddr {
		out = append(out, l...)
	}
	return out
}

func encodeLegacyV3(statusByte byte, gasUsed uint64, result []byte, logCount int) []byte {
	out := []byte{statusByte}
	out = append(out, putU64(gasUsed)...)
	out = append(out, putBytesVec(result)...)
	out = append(out, putU32(uint32(logCount))...)
	return out
}

func TestDecodeV7Succeed(t *testing.T) {
	data := encodeV7(0, []byte("hello"), 21_000, nil)
	sr, kind, err := DecodeSubmitResult(data)
	require.NoError(t, err)
	require.Equal(t, OutputKindV7, kind)
	require.Equal(t, StatusSucceed, sr.Status.Tag)
	require.Equal(t, []byte("hello"), sr.Status.Output)
	require.Equal(t, uint64(21_000), sr.GasUsed)
	require.Empty(t, sr.Logs)
}

func TestDecodeV7WithAddressedLog(t *testing.T) {
	log := make([]byte, 20+4+4) // address, zero topics, zero-length data
	data := encodeV7(0, []byte{}, 50_000, [][]byte{log})
	sr, kind, err := DecodeSubmitResult(data)
	require.NoError(t, err)
	require.Equal(t, OutputKindV7, kind)
	require.Len(t, sr.Logs, 1)
}

// TestDecodeLegacyV3BooleanReconstruction exercises legacy.rs's exact
// SubmitResultLegacyV3 -> SubmitResult boolean reconstruction: true always
// means Succeed, false with a non-empty result means Revert, and false
// with an empty result means OutOfFund.
func TestDecodeLegacyV3BooleanReconstruction(t *testing.T) {
	succeed := encodeLegacyV3(1, 30_000, []byte("ok"), 0)
	sr, kind, err := DecodeSubmitResult(succeed)
	require.NoError(t, err)
	require.Equal(t, OutputKindLegacyV3, kind)
	require.Equal(t, StatusSucceed, sr.Status.Tag)
	require.Equal(t, []byte("ok"), sr.Status.Output)

	revert := encodeLegacyV3(0, 30_000, []byte("reverted: reason"), 0)
	sr, kind, err = DecodeSubmitResult(revert)
	require.NoError(t, err)
	require.Equal(t, OutputKindLegacyV3, kind)
	require.Equal(t, StatusRevert, sr.Status.Tag)
	require.Equal(t, []byte("reverted: reason"), sr.Status.Output)

	outOfFund := encodeLegacyV3(0, 30_000, nil, 0)
	sr, kind, err = DecodeSubmitResult(outOfFund)
	require.NoError(t, err)
	require.Equal(t, OutputKindLegacyV3, kind)
	require.Equal(t, StatusOutOfFund, sr.Status.Tag)
	require.Empty(t, sr.Status.Output)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := DecodeSubmitResult([]byte{0x01})
	require.Error(t, err)
}
