package actions

import (
	"encoding/base64"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/aurora-is-near/go-refiner/internal/outer"
)

func TestDecodeNonFunctionCallIsOpaque(t *testing.T) {
	tx, err := Decode(outer.Action{Kind: outer.ActionOther, Raw: []byte("raw-action-bytes"), Deposit: "0"}, nil)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, KindOpaque, tx.Kind)
	require.Equal(t, []byte("raw-action-bytes"), tx.Raw)
}

func TestDecodeBadBase64IsDropped(t *testing.T) {
	tx, err := Decode(outer.Action{Kind: outer.ActionFunctionCall, Method: "ft_transfer", ArgsBase64: "!!!not-base64!!!"}, nil)
	require.NoError(t, err)
	require.Nil(t, tx)
}

func TestDecodeUnrecognizedMethodIsDropped(t *testing.T) {
	args := base64.StdEncoding.EncodeToString([]byte("some args"))
	tx, err := Decode(outer.Action{Kind: outer.ActionFunctionCall, Method: "some_future_method", ArgsBase64: args}, nil)
	require.NoError(t, err)
	require.Nil(t, tx)
}

func TestDecodeSubmitParsesRlpTransaction(t *testing.T) {
	legacyTx := types.NewTransaction(1, [20]byte{0xaa}, nil, 21000, nil, nil)
	raw, err := rlp.EncodeToBytes(legacyTx)
	require.NoError(t, err)
	args := base64.StdEncoding.EncodeToString(raw)

	tx, err := Decode(outer.Action{Kind: outer.ActionFunctionCall, Method: "submit", ArgsBase64: args}, nil)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, KindSubmit, tx.Kind)
	require.NotNil(t, tx.EthTx)
	require.Equal(t, uint64(1), tx.EthTx.Nonce())
}

func TestDecodeFtTransferParsesJSON(t *testing.T) {
	args := base64.StdEncoding.EncodeToString([]byte(`{"receiver_id":"alice.near","amount":"1000"}`))
	tx, err := Decode(outer.Action{Kind: outer.ActionFunctionCall, Method: "ft_transfer", ArgsBase64: args}, nil)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, "alice.near", tx.JSON.Get("receiver_id").String())
}

func TestDecodeResolveTransferSynthesizesPromiseResult(t *testing.T) {
	args := base64.StdEncoding.EncodeToString([]byte("args"))
	tx, err := Decode(
		outer.Action{Kind: outer.ActionFunctionCall, Method: "ft_resolve_transfer", ArgsBase64: args},
		[]PromiseResult{{Successful: true, Value: []byte("value")}},
	)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, KindResolveTransfer, tx.Kind)
	require.Equal(t, byte(0), tx.Raw[0])
}

func TestDecodeReceiptActionsDropsNones(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte(`{"receiver_id":"a"}`))
	receipts := []outer.Action{
		{Kind: outer.ActionFunctionCall, Method: "some_future_method", ArgsBase64: good},
		{Kind: outer.ActionFunctionCall, Method: "ft_transfer", ArgsBase64: good},
	}
	decoded, err := DecodeReceiptActions(receipts, nil)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, KindFtTransfer, decoded[0].Kind)
}

func TestDecodeReceiptActionsKeepsOpaqueActions(t *testing.T) {
	good := base64.StdEncoding.EncodeToString([]byte(`{"receiver_id":"a"}`))
	receipts := []outer.Action{
		{Kind: outer.ActionOther, Raw: []byte("create-account-bytes")},
		{Kind: outer.ActionFunctionCall, Method: "ft_transfer", ArgsBase64: good},
	}
	decoded, err := DecodeReceiptActions(receipts, nil)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, KindOpaque, decoded[0].Kind)
	require.Equal(t, KindFtTransfer, decoded[1].Kind)
}
