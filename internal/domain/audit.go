package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Provenance locates an audit record on chain. ID is tx hash + log index.
type Provenance struct {
	ID          string      `json:"id"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   uint64      `json:"timestamp"`
	TxHash      common.Hash `json:"tx_hash"`
}

// NewProvenance builds provenance from event metadata.
func NewProvenance(m Meta) Provenance {
	return Provenance{
		ID:          m.ID(),
		BlockNumber: m.BlockNumber,
		Timestamp:   m.Timestamp,
		TxHash:      m.TxHash,
	}
}

// TransferRecord audits a token transfer of any instrument.
type TransferRecord struct {
	Provenance
	Source     Source      `json:"source"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Amount     uint256.Int `json:"amount"`
	SharePrice uint256.Int `json:"share_price"`
}

// ApprovalRecord audits an allowance change.
type ApprovalRecord struct {
	Provenance
	Source  Source         `json:"source"`
	Owner   string         `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  uint256.Int    `json:"amount"`
}

// DepositRecord audits a vault deposit.
type DepositRecord struct {
	Provenance
	User           string         `json:"user"`
	Asset          common.Address `json:"asset"`
	AssetAmount    uint256.Int    `json:"asset_amount"`
	SharesReceived uint256.Int    `json:"shares_received"`
	SharePrice     uint256.Int    `json:"share_price"`
}

// WithdrawalRecord audits a vault withdrawal.
type WithdrawalRecord struct {
	Provenance
	User        string         `json:"user"`
	Asset       common.Address `json:"asset"`
	AssetAmount uint256.Int    `json:"asset_amount"`
	SharesBurnt uint256.Int    `json:"shares_burnt"`
	SharePrice  uint256.Int    `json:"share_price"`
}

// NAVUpdateRecord audits an externally supplied NAV recalculation.
type NAVUpdateRecord struct {
	Provenance
	NAV                uint256.Int    `json:"nav"`
	ShareToAssetPrice  uint256.Int    `json:"share_to_asset_price"`
	NAVEquivalentAsset common.Address `json:"nav_equivalent_asset"`
}

// FulfillmentRecord audits a batch fulfillment of redemption requests.
type FulfillmentRecord struct {
	Provenance
	Shares          uint256.Int `json:"shares"`
	Assets          uint256.Int `json:"assets"`
	SharePrice      uint256.Int `json:"share_price"`
	MatchedRequests []string    `json:"matched_requests"`
}
