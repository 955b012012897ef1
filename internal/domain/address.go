// Package domain defines the entities and events shared by the ledger, the engine and the stores.
package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the mint/burn sentinel. It never counts as a holder.
var ZeroAddress = common.Address{}

// Source identifies which of the correlated contracts emitted an event.
type Source string

const (
	// SourceVault is the yield-bearing vault share token (ERC-4626 style events).
	SourceVault Source = "vault"
	// SourcePool is the pool share token minted against stable-token inflows.
	SourcePool Source = "pool"
	// SourceStable is the stable deposit token.
	SourceStable Source = "stable"
)

// Addresses is the well-known address book the engine classifies events with.
// A zero contract address disables that instrument.
type Addresses struct {
	Vault  common.Address
	Pool   common.Address
	Stable common.Address

	// Intermediary routes stable tokens from users to the collection address.
	Intermediary common.Address
	// Collection receives stable-token inflows that back pool mints.
	Collection common.Address
	// Redemption receives pool tokens queued for redemption.
	Redemption common.Address
}

// SourceOf reports which instrument contract emitted a log.
func (a Addresses) SourceOf(contract common.Address) (Source, bool) {
	if contract == ZeroAddress {
		return "", false
	}

	switch contract {
	case a.Vault:
		return SourceVault, true
	case a.Pool:
		return SourcePool, true
	case a.Stable:
		return SourceStable, true
	}

	return "", false
}

// Contracts returns the enabled instrument contracts.
func (a Addresses) Contracts() []common.Address {
	out := make([]common.Address, 0, 3)
	for _, c := range []common.Address{a.Vault, a.Pool, a.Stable} {
		if c != ZeroAddress {
			out = append(out, c)
		}
	}

	return out
}

// WalletID returns the store identity of a holder: the lower-case 0x hex address.
func WalletID(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// IsSentinel reports whether the wallet id denotes the mint/burn sentinel.
func IsSentinel(id string) bool {
	return id == WalletID(ZeroAddress)
}
