package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MarkerDeposit is the suffix of the marker that guards the deposit-estimate credit.
const MarkerDeposit = "deposit"

// TransactionCorrelationRecord accumulates stable-token inflow toward the
// collection address within one transaction.
type TransactionCorrelationRecord struct {
	TxHash    common.Hash `json:"tx_hash"`
	Amount    uint256.Int `json:"amount"`
	Transfers uint64      `json:"transfers"`
	FirstSeen uint64      `json:"first_seen"`
	LastSeen  uint64      `json:"last_seen"`
}

// ID returns the store identity.
func (r *TransactionCorrelationRecord) ID() string {
	return TxID(r.TxHash)
}

// ProcessedMarker is a presence-only record: a side effect was applied for a transaction.
type ProcessedMarker struct {
	TxHash    common.Hash `json:"tx_hash"`
	Suffix    string      `json:"suffix"`
	Timestamp uint64      `json:"timestamp"`
}

// ID returns the store identity.
func (m *ProcessedMarker) ID() string {
	return MarkerID(m.TxHash, m.Suffix)
}

// TxID returns the store identity of a transaction-scoped record.
func TxID(hash common.Hash) string {
	return hash.Hex()
}

// MarkerID returns the identity of a marker for the given transaction and suffix.
func MarkerID(hash common.Hash, suffix string) string {
	return fmt.Sprintf("%s-%s", hash.Hex(), suffix)
}
