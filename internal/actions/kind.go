// Package actions implements the action decoder (spec §4.4): turning one
// outer-chain action plus its resolved promise results into a
// TransactionKind the block consumer can replay. Grounded on
// original_source/aurora-standalone/engine/src/sync.rs's parse_action
// (method-name table, per-kind codec choices, and the log-and-drop
// behavior for an unrecognized method name), and on
// original_source/refiner-lib/src/refiner_inner.rs's wildcard action arm
// (the type-0xfe opaque-action construction) and its promise-result
// synthesis for ft_resolve_transfer / refund_on_error.
package actions

import (
	"encoding/base64"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/tidwall/gjson"

	"github.com/aurora-is-near/go-refiner/internal/outer"
)

// Kind is the closed set of engine entry points (spec §3's
// TransactionKind). Decode drops a function-call action whose method name
// is not in this table; KindUnknown is only produced by UnknownFallback,
// the receipt-level stand-in for a receipt whose actions were all dropped.
type Kind int

const (
	KindSubmit Kind = iota
	KindCall
	KindDeploy
	KindDeployErc20
	KindFtOnTransfer
	KindFtTransferCall
	KindFtTransfer
	KindFinishDeposit
	KindResolveTransfer
	KindDeposit
	KindWithdraw
	KindStorageDeposit
	KindStorageUnregister
	KindStorageWithdraw
	KindSetPausedFlags
	KindRegisterRelayer
	KindRefundOnError
	KindSetConnectorData
	KindNewConnector
	KindNewEngine
	KindFactoryUpdate
	KindFactoryUpdateAddressVersion
	KindFactorySetWNearAddress
	KindSetOwner
	KindSubmitWithArgs
	KindPausePrecompiles
	KindResumePrecompiles
	KindUnknown
	// KindOpaque marks a non-FunctionCall outer action: it never reaches
	// the engine runner and is surfaced directly as a type-0xfe inner
	// transaction (spec §3).
	KindOpaque
)

var methodTable = map[string]Kind{
	"submit":                          KindSubmit,
	"call":                            KindCall,
	"deploy_code":                     KindDeploy,
	"deploy_erc20_token":              KindDeployErc20,
	"ft_on_transfer":                  KindFtOnTransfer,
	"ft_transfer_call":                KindFtTransferCall,
	"ft_transfer":                     KindFtTransfer,
	"finish_deposit":                  KindFinishDeposit,
	"ft_resolve_transfer":             KindResolveTransfer,
	"deposit":                         KindDeposit,
	"withdraw":                        KindWithdraw,
	"storage_deposit":                 KindStorageDeposit,
	"storage_unregister":              KindStorageUnregister,
	"storage_withdraw":                KindStorageWithdraw,
	"set_paused_flags":                KindSetPausedFlags,
	"register_relayer":                KindRegisterRelayer,
	"refund_on_error":                 KindRefundOnError,
	"set_eth_connector_contract_data": KindSetConnectorData,
	"new_eth_connector":               KindNewConnector,
	"new":                             KindNewEngine,
	"factory_update":                  KindFactoryUpdate,
	"factory_update_address_version":  KindFactoryUpdateAddressVersion,
	"factory_set_wnear_address":       KindFactorySetWNearAddress,
	"set_owner":                       KindSetOwner,
	"submit_with_args":                KindSubmitWithArgs,
	"pause_precompiles":               KindPausePrecompiles,
	"resume_precompiles":              KindResumePrecompiles,
}

// Transaction is the decoded, replayable form of one outer-chain action.
type Transaction struct {
	Kind   Kind
	Method string

	// EthTx is populated for KindSubmit/KindSubmitWithArgs: the decoded
	// Ethereum transaction.
	EthTx *types.Transaction

	// JSON is populated for the fungible-token methods, whose canonical
	// codec is JSON rather than borsh (spec §4.4 rule 3).
	JSON gjson.Result

	// Raw carries the argument bytes for KindSubmitWithArgs and for the
	// borsh-coded kinds verbatim (these are replayed by the engine runner
	// itself, which understands the borsh layout; the refiner does not need
	// to decode their internal structure to replay them). For
	// KindResolveTransfer and KindRefundOnError it holds the encoded promise
	// result followed by the argument bytes; for KindOpaque, the action's own
	// serialized bytes; for KindUnknown, the base64 argument string.
	Raw []byte

	// AttachedDeposit is the action's attached NEAR deposit, carried
	// through unparsed (spec §4.4's Option<(TransactionKind,
	// attached_deposit)>).
	AttachedDeposit string
}

// PromiseResult mirrors NEAR's PromiseResult: either Successful(bytes) or
// Failed, synthesized from the first resolved input-data payload (spec
// §4.4 rule 4).
type PromiseResult struct {
	Successful bool
	Value      []byte
}

// Decode applies the action decoder (spec §4.4) to one action, given the
// ordered resolved input-data payloads (promise results) available to the
// receipt it belongs to. It returns (nil, nil) when the action should be
// dropped (rule 1's "decoding fails" half and an unrecognized method
// name, both logged as warnings per original_source's parse_action); the
// receipt-level "all actions dropped but an expected diff exists ->
// single Unknown" fallback (rule 5) is the caller's responsibility, since
// it needs expected-diff knowledge this function doesn't have.
func Decode(action outer.Action, promiseResults []PromiseResult) (*Transaction, error) {
	if action.Kind != outer.ActionFunctionCall {
		// Non-FunctionCall actions never reach the engine: they surface
		// directly as an opaque type-0xfe inner transaction (spec §3),
		// carrying the action's own serialized bytes as input.
		return &Transaction{Kind: KindOpaque, Raw: action.Raw, AttachedDeposit: action.Deposit}, nil
	}
	args, err := base64.StdEncoding.DecodeString(action.ArgsBase64)
	if err != nil {
		gethlog.Warn("actions: failed to base64-decode function-call args, dropping", "method", action.Method, "err", err)
		return nil, nil
	}
	kind, known := methodTable[action.Method]
	if !known {
		gethlog.Warn("actions: unrecognized method name, dropping action", "method", action.Method)
		return nil, nil
	}

	tx := &Transaction{Kind: kind, Method: action.Method, AttachedDeposit: action.Deposit}
	switch kind {
	case KindSubmit:
		ethTx := new(types.Transaction)
		if err := rlp.DecodeBytes(args, ethTx); err != nil {
			gethlog.Warn("actions: failed to rlp-decode submit args, dropping", "method", action.Method, "err", err)
			return nil, nil
		}
		tx.EthTx = ethTx
	case KindSubmitWithArgs:
		ethTx, err := decodeSubmitWithArgs(args)
		if err != nil {
			gethlog.Warn("actions: failed to decode submit_with_args args, dropping", "method", action.Method, "err", err)
			return nil, nil
		}
		tx.EthTx = ethTx
		tx.Raw = args
	case KindFtOnTransfer, KindFtTransferCall, KindFtTransfer,
		KindStorageDeposit, KindStorageUnregister, KindStorageWithdraw:
		if !gjson.ValidBytes(args) {
			gethlog.Warn("actions: function-call args are not valid JSON, dropping", "method", action.Method)
			return nil, nil
		}
		tx.JSON = gjson.ParseBytes(args)
	case KindResolveTransfer, KindRefundOnError:
		result := PromiseResult{}
		if len(promiseResults) > 0 {
			result = promiseResults[0]
		}
		tx.Raw = encodePromiseResult(result, args)
	default:
		// deposit / deploy_code / factory_update and the remaining
		// borsh-coded kinds: raw passthrough, per spec §4.4 rule 3.
		tx.Raw = args
	}
	return tx, nil
}

// decodeSubmitWithArgs peels the wrapping max-gas-price / gas-token-address
// fields off the borsh-encoded SubmitWithArgs payload to recover the
// embedded Ethereum transaction, per original_source's SubmitArgs layout:
// two Option-tagged fields ahead of the raw rlp transaction bytes.
func decodeSubmitWithArgs(args []byte) (*types.Transaction, error) {
	r := &argsCursor{buf: args}
	if _, err := r.option32(); err != nil { // max_gas_price: Option<U256>
		return nil, err
	}
	if _, err := r.optionAddress(); err != nil { // gas_token_address: Option<Address>
		return nil, err
	}
	rawTx, err := r.bytesVec()
	if err != nil {
		return nil, err
	}
	ethTx := new(types.Transaction)
	if err := rlp.DecodeBytes(rawTx, ethTx); err != nil {
		return nil, err
	}
	return ethTx, nil
}

// encodePromiseResult borsh-encodes a PromiseResult the same way the
// engine itself would, so downstream replay sees an argument buffer
// shaped identically to what the original action produced.
func encodePromiseResult(pr PromiseResult, originalArgs []byte) []byte {
	out := make([]byte, 0, 1+len(pr.Value)+len(originalArgs))
	if pr.Successful {
		out = append(out, 0) // PromiseResult::Successful tag
		out = appendU32Vec(out, pr.Value)
	} else {
		out = append(out, 1) // PromiseResult::Failed tag
	}
	out = append(out, originalArgs...)
	return out
}

func appendU32Vec(buf, data []byte) []byte {
	var lenBytes [4]byte
	n := len(data)
	lenBytes[0] = byte(n)
	lenBytes[1] = byte(n >> 8)
	lenBytes[2] = byte(n >> 16)
	lenBytes[3] = byte(n >> 24)
	buf = append(buf, lenBytes[:]...)
	return append(buf, data...)
}

var errTruncatedArgs = fmt.Errorf("actions: truncated submit_with_args payload")

type argsCursor struct {
	buf []byte
	pos int
}

func (c *argsCursor) u8() (byte, error) {
	if c.pos+1 > len(c.buf) {
		return 0, errTruncatedArgs
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *argsCursor) option32() (bool, error) {
	present, err := c.u8()
	if err != nil {
		return false, err
	}
	if present == 0 {
		return false, nil
	}
	if c.pos+32 > len(c.buf) {
		return false, errTruncatedArgs
	}
	c.pos += 32
	return true, nil
}

func (c *argsCursor) optionAddress() (bool, error) {
	present, err := c.u8()
	if err != nil {
		return false, err
	}
	if present == 0 {
		return false, nil
	}
	if c.pos+20 > len(c.buf) {
		return false, errTruncatedArgs
	}
	c.pos += 20
	return true, nil
}

func (c *argsCursor) bytesVec() ([]byte, error) {
	if c.pos+4 > len(c.buf) {
		return nil, errTruncatedArgs
	}
	n := int(c.buf[c.pos]) | int(c.buf[c.pos+1])<<8 | int(c.buf[c.pos+2])<<16 | int(c.buf[c.pos+3])<<24
	c.pos += 4
	if c.pos+n > len(c.buf) {
		return nil, errTruncatedArgs
	}
	out := append([]byte(nil), c.buf[c.pos:c.pos+n]...)
	c.pos += n
	return out, nil
}
