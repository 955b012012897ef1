package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WalletSnapshot is an immutable observation of a wallet after a mutation.
type WalletSnapshot struct {
	Wallet              string      `json:"wallet"`
	Balance             uint256.Int `json:"balance"`
	EstimateDeposit     uint256.Int `json:"estimate_deposit"`
	CoinTimeAccumulator uint256.Int `json:"coin_time_accumulator"`
	Timestamp           uint64      `json:"timestamp"`
	BlockNumber         uint64      `json:"block_number"`
	TxHash              common.Hash `json:"tx_hash"`
}

// ID returns the store identity. Two updates in the same second share it.
func (s *WalletSnapshot) ID() string {
	return SnapshotID(s.Wallet, s.Timestamp)
}

// SnapshotID returns the identity of the snapshot of a wallet at a timestamp.
func SnapshotID(wallet string, timestamp uint64) string {
	return fmt.Sprintf("%s-%d", wallet, timestamp)
}
