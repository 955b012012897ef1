// Package ledger implements the deposit-estimate and coin-time rules applied to a wallet
// on every balance-changing event.
//
// Every operation is a deterministic function of the wallet state, the amounts
// and the event timestamp. Nothing here fails: underflow is handled by flooring
// balance and deposit estimate to zero.
package ledger

import (
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/pkg/fixedpoint"
)

// Debit describes the outcome of a proportional reduction.
type Debit struct {
	// Deposit is the share of the estimate removed from the sender.
	Deposit *uint256.Int
	// Floored is true when the amount exceeded the balance and the wallet was zeroed.
	Floored bool
}

// Ledger applies accounting rules to wallets.
type Ledger struct {
	l *zap.Logger
}

// New creates a ledger. A nil logger disables logging.
func New(l *zap.Logger) *Ledger {
	if l == nil {
		l = zap.NewNop()
	}

	return &Ledger{l: l}
}

// Accumulate accrues coin-time for the elapsed period and moves the wallet clock to timestamp.
// The first observation and non-positive elapsed time only move the clock.
// It returns the accrued amount.
func (lg *Ledger) Accumulate(w *domain.Wallet, timestamp uint64) *uint256.Int {
	delta := new(uint256.Int)

	if !w.DepositClockSet || timestamp <= w.LastDepositUpdateTimestamp {
		advanceClock(w, timestamp)
		return delta
	}

	elapsed := timestamp - w.LastDepositUpdateTimestamp
	delta = fixedpoint.ApplyRatio(&w.EstimateDeposit, fixedpoint.DayFraction(elapsed))
	w.CoinTimeAccumulator.Add(&w.CoinTimeAccumulator, delta)

	lg.l.Debug("accumulated coin-time",
		zap.String("wallet", w.ID),
		zap.Uint64("elapsed", elapsed),
		zap.Stringer("estimate_deposit", &w.EstimateDeposit),
		zap.Stringer("delta", delta),
		zap.Stringer("accumulator", &w.CoinTimeAccumulator))

	advanceClock(w, timestamp)

	return delta
}

// advanceClock never moves a wallet clock backwards.
func advanceClock(w *domain.Wallet, timestamp uint64) {
	if !w.DepositClockSet || timestamp > w.LastDepositUpdateTimestamp {
		w.LastDepositUpdateTimestamp = timestamp
	}
	if !w.DepositClockSet || timestamp > w.LastUpdateTimestamp {
		w.LastUpdateTimestamp = timestamp
	}
	w.DepositClockSet = true
}

// CreditMint adds minted tokens and the caller-resolved principal behind them.
// Coin-time is accrued on the estimate held before this credit.
func (lg *Ledger) CreditMint(w *domain.Wallet, amount, deposit *uint256.Int, timestamp uint64) {
	lg.Accumulate(w, timestamp)

	w.Balance.Add(&w.Balance, amount)
	w.EstimateDeposit.Add(&w.EstimateDeposit, deposit)
}

// CreditDeposit adds principal without touching the balance.
func (lg *Ledger) CreditDeposit(w *domain.Wallet, deposit *uint256.Int, timestamp uint64) {
	lg.Accumulate(w, timestamp)

	w.EstimateDeposit.Add(&w.EstimateDeposit, deposit)
}

// DebitBurn removes amount from the balance and the same fraction of the deposit estimate.
func (lg *Ledger) DebitBurn(w *domain.Wallet, amount *uint256.Int, timestamp uint64) Debit {
	lg.Accumulate(w, timestamp)

	return lg.reduce(w, amount)
}

// Transfer moves amount from one wallet to another together with the proportional
// deposit estimate. Both sides use the same reduced amount, so cost basis is conserved.
func (lg *Ledger) Transfer(from, to *domain.Wallet, amount *uint256.Int, timestamp uint64) Debit {
	debit := lg.DebitBurn(from, amount, timestamp)

	lg.Accumulate(to, timestamp)
	to.Balance.Add(&to.Balance, amount)
	to.EstimateDeposit.Add(&to.EstimateDeposit, debit.Deposit)

	return debit
}

// Redeem moves amount to the redemption wallet. The sender loses the proportional
// deposit estimate; the redemption wallet receives the balance only.
func (lg *Ledger) Redeem(from, redemption *domain.Wallet, amount *uint256.Int, timestamp uint64) Debit {
	debit := lg.DebitBurn(from, amount, timestamp)

	redemption.Balance.Add(&redemption.Balance, amount)

	return debit
}

func (lg *Ledger) reduce(w *domain.Wallet, amount *uint256.Int) Debit {
	if w.Balance.Lt(amount) {
		lg.l.Warn("debit exceeds balance, flooring wallet to zero",
			zap.String("wallet", w.ID),
			zap.Stringer("balance", &w.Balance),
			zap.Stringer("amount", amount))

		w.Balance.Clear()
		w.EstimateDeposit.Clear()

		return Debit{Deposit: new(uint256.Int), Floored: true}
	}

	ratio := fixedpoint.Ratio(amount, &w.Balance)
	deposit := fixedpoint.ApplyRatio(&w.EstimateDeposit, ratio)

	w.Balance.Sub(&w.Balance, amount)
	w.EstimateDeposit.Sub(&w.EstimateDeposit, deposit)

	return Debit{Deposit: deposit}
}
