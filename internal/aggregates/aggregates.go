// Package aggregates maintains the protocol-wide singleton.
//
// Price and NAV are never computed here; they are overwritten from
// recalculation events.
package aggregates

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/pkg/fixedpoint"
)

// Kind classifies which counter an event increments.
type Kind int

const (
	KindTransaction Kind = iota
	KindDeposit
	KindWithdrawal
	KindRedeemRequest
	KindFulfillment
)

// Count increments the counter for kind.
func Count(p *domain.ProtocolAggregates, kind Kind) {
	switch kind {
	case KindTransaction:
		p.TransactionCount++
	case KindDeposit:
		p.DepositCount++
	case KindWithdrawal:
		p.WithdrawalCount++
	case KindRedeemRequest:
		p.RedeemRequestCount++
	case KindFulfillment:
		p.FulfillmentCount++
	}
}

// Mint raises total supply and shares.
func Mint(p *domain.ProtocolAggregates, amount *uint256.Int) {
	p.TotalSupply.Add(&p.TotalSupply, amount)
	p.TotalShares.Add(&p.TotalShares, amount)
}

// Burn lowers total supply and shares, flooring at zero.
func Burn(p *domain.ProtocolAggregates, amount *uint256.Int) {
	p.TotalSupply.Set(fixedpoint.SubFloor(&p.TotalSupply, amount))
	p.TotalShares.Set(fixedpoint.SubFloor(&p.TotalShares, amount))
}

// AddAssets records assets entering the vault.
func AddAssets(p *domain.ProtocolAggregates, assets *uint256.Int) {
	p.TotalAssets.Add(&p.TotalAssets, assets)
}

// RemoveAssets records assets leaving the vault, flooring at zero.
func RemoveAssets(p *domain.ProtocolAggregates, assets *uint256.Int) {
	p.TotalAssets.Set(fixedpoint.SubFloor(&p.TotalAssets, assets))
}

// HolderTransition adjusts the holder count for a wallet whose holder status changed.
func HolderTransition(p *domain.ProtocolAggregates, wasHolder, isHolder bool) {
	switch {
	case !wasHolder && isHolder:
		p.HolderCount++
	case wasHolder && !isHolder && p.HolderCount > 0:
		p.HolderCount--
	}
}

// SetNAV overwrites NAV and share price.
func SetNAV(p *domain.ProtocolAggregates, nav, sharePrice *uint256.Int, asset common.Address) {
	p.CurrentNAV.Set(nav)
	p.ShareToAssetPrice.Set(sharePrice)
	p.NAVEquivalentAsset = asset
}

// Touch records the time of the latest update.
func Touch(p *domain.ProtocolAggregates, timestamp uint64) {
	if timestamp > p.LastUpdateTimestamp {
		p.LastUpdateTimestamp = timestamp
	}
}

// SharePrice returns a copy of the price in effect.
func SharePrice(p *domain.ProtocolAggregates) *uint256.Int {
	return new(uint256.Int).Set(&p.ShareToAssetPrice)
}
