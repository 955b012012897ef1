package domain

import "github.com/holiman/uint256"

// Wallet is the per-holder accounting state.
type Wallet struct {
	ID string `json:"id"`
	// Balance in the smallest token denomination.
	Balance uint256.Int `json:"balance"`
	// EstimateDeposit is the reconstructed principal (cost basis).
	EstimateDeposit uint256.Int `json:"estimate_deposit"`
	// CoinTimeAccumulator is principal-days accrued so far.
	CoinTimeAccumulator        uint256.Int `json:"coin_time_accumulator"`
	LastUpdateTimestamp        uint64      `json:"last_update_timestamp"`
	LastDepositUpdateTimestamp uint64      `json:"last_deposit_update_timestamp"`
	// DepositClockSet is false until the first observation starts the coin-time clock.
	DepositClockSet  bool   `json:"deposit_clock_set"`
	TransactionCount uint64 `json:"transaction_count"`
}

// NewWallet returns an empty wallet for the given id.
func NewWallet(id string) *Wallet {
	return &Wallet{ID: id}
}

// IsHolder reports whether the wallet counts toward the holder count.
func (w *Wallet) IsHolder() bool {
	return !w.Balance.IsZero() && !IsSentinel(w.ID)
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	c := *w
	return &c
}
