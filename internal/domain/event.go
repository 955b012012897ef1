package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Meta is the provenance every event carries.
type Meta struct {
	Source      Source
	Contract    common.Address
	BlockNumber uint64
	Timestamp   uint64
	TxHash      common.Hash
	LogIndex    uint
}

// EventMeta returns the metadata; embedding Meta satisfies Event.
func (m Meta) EventMeta() Meta {
	return m
}

// ID returns tx hash + log index, the identity of per-event records.
func (m Meta) ID() string {
	return fmt.Sprintf("%s-%d", m.TxHash.Hex(), m.LogIndex)
}

// Event is any decoded contract event.
type Event interface {
	EventMeta() Meta
}

// Transfer moves tokens of any instrument. From or To equal to ZeroAddress denote mint and burn.
type Transfer struct {
	Meta
	From   common.Address
	To     common.Address
	Amount uint256.Int
}

// Approval changes an allowance.
type Approval struct {
	Meta
	Owner   common.Address
	Spender common.Address
	Amount  uint256.Int
}

// Deposit is a vault deposit of Assets for Shares.
type Deposit struct {
	Meta
	Owner  common.Address
	Assets uint256.Int
	Shares uint256.Int
}

// Withdraw is a vault withdrawal of Assets for Shares.
type Withdraw struct {
	Meta
	Owner  common.Address
	Assets uint256.Int
	Shares uint256.Int
}

// RedeemRequest queues Shares for redemption.
type RedeemRequest struct {
	Meta
	Owner  common.Address
	Shares uint256.Int
}

// FulfilledRedeemRequests settles queued redemptions in bulk.
type FulfilledRedeemRequests struct {
	Meta
	Shares uint256.Int
	Assets uint256.Int
}

// RecalculatedNAV publishes a new NAV and share price (scaled by 1e18).
type RecalculatedNAV struct {
	Meta
	NAV        uint256.Int
	SharePrice uint256.Int
}

// Less orders events by (block number, log index).
func Less(a, b Event) bool {
	ma, mb := a.EventMeta(), b.EventMeta()
	if ma.BlockNumber != mb.BlockNumber {
		return ma.BlockNumber < mb.BlockNumber
	}

	return ma.LogIndex < mb.LogIndex
}
