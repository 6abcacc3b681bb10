package actions

import "github.com/aurora-is-near/go-refiner/internal/outer"

// DecodeReceiptActions decodes every action on a receipt in order,
// dropping those that yield None (spec §4.4's closing paragraph). The
// caller (the block consumer) is responsible for the "all None but
// expected diff present -> single Unknown" fallback, since that decision
// needs expected-diff knowledge this package doesn't have.
func DecodeReceiptActions(actionList []outer.Action, promiseResults []PromiseResult) ([]*Transaction, error) {
	decoded := make([]*Transaction, 0, len(actionList))
	for _, a := range actionList {
		tx, err := Decode(a, promiseResults)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			continue
		}
		decoded = append(decoded, tx)
	}
	return decoded, nil
}

// UnknownFallback builds the single Unknown transaction emitted when a
// receipt's actions all failed to decode but expected state changes were
// observed for it (spec §4.5 step 4).
func UnknownFallback(method string, argsBase64 string, deposit string) *Transaction {
	return &Transaction{Kind: KindUnknown, Method: method, Raw: []byte(argsBase64), AttachedDeposit: deposit}
}
