package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ProtocolID is the fixed identity of the aggregates singleton.
const ProtocolID = "1"

// ProtocolAggregates rolls up protocol-wide supply, counters and pricing.
type ProtocolAggregates struct {
	ID                 string      `json:"id"`
	TotalSupply        uint256.Int `json:"total_supply"`
	TotalShares        uint256.Int `json:"total_shares"`
	TotalAssets        uint256.Int `json:"total_assets"`
	HolderCount        uint64      `json:"holder_count"`
	TransactionCount   uint64      `json:"transaction_count"`
	DepositCount       uint64      `json:"deposit_count"`
	WithdrawalCount    uint64      `json:"withdrawal_count"`
	RedeemRequestCount uint64      `json:"redeem_request_count"`
	FulfillmentCount   uint64      `json:"fulfillment_count"`
	CurrentNAV         uint256.Int `json:"current_nav"`
	// ShareToAssetPrice is scaled by 1e18.
	ShareToAssetPrice   uint256.Int    `json:"share_to_asset_price"`
	NAVEquivalentAsset  common.Address `json:"nav_equivalent_asset"`
	LastUpdateTimestamp uint64         `json:"last_update_timestamp"`
}

// NewProtocolAggregates returns the zeroed singleton.
func NewProtocolAggregates() *ProtocolAggregates {
	return &ProtocolAggregates{ID: ProtocolID}
}

// Checkpoint records the last fully processed block.
type Checkpoint struct {
	BlockNumber uint64 `json:"block_number"`
}

// Cursor is the position of the last applied event.
type Cursor struct {
	BlockNumber uint64      `json:"block_number"`
	LogIndex    uint        `json:"log_index"`
	TxHash      common.Hash `json:"tx_hash"`
}

// Covers reports whether the event at m was applied at or before the cursor.
func (c Cursor) Covers(m Meta) bool {
	if m.BlockNumber != c.BlockNumber {
		return m.BlockNumber < c.BlockNumber
	}

	return m.LogIndex <= c.LogIndex
}
