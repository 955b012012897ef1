package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RedemptionRequest is a queued redemption of vault shares.
type RedemptionRequest struct {
	ID        string      `json:"id"`
	Requester string      `json:"requester"`
	Shares    uint256.Int `json:"shares"`
	// ExpectedAssets is Shares valued at SharePrice when the request was made.
	ExpectedAssets uint256.Int `json:"expected_assets"`
	SharePrice     uint256.Int `json:"share_price"`
	Timestamp      uint64      `json:"timestamp"`
	BlockNumber    uint64      `json:"block_number"`
	LogIndex       uint        `json:"log_index"`
	TxHash         common.Hash `json:"tx_hash"`

	Fulfilled              bool        `json:"fulfilled"`
	FulfillmentTimestamp   uint64      `json:"fulfillment_timestamp,omitempty"`
	FulfillmentBlockNumber uint64      `json:"fulfillment_block_number,omitempty"`
	FulfillmentTxHash      common.Hash `json:"fulfillment_tx_hash"`
	FulfillmentSharePrice  uint256.Int `json:"fulfillment_share_price"`
}

// Before reports whether r was requested before o in FIFO order.
func (r *RedemptionRequest) Before(o *RedemptionRequest) bool {
	if r.Timestamp != o.Timestamp {
		return r.Timestamp < o.Timestamp
	}
	if r.LogIndex != o.LogIndex {
		return r.LogIndex < o.LogIndex
	}

	return r.ID < o.ID
}
