// Package journal appends per-wallet state snapshots after every mutation.
package journal

import (
	"github.com/pkg/errors"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/storage"
)

// Append records the current state of w. A snapshot of the same wallet at the
// same timestamp is replaced.
func Append(r *storage.Repo, w *domain.Wallet, m domain.Meta) (*domain.WalletSnapshot, error) {
	snap := &domain.WalletSnapshot{
		Wallet:      w.ID,
		Timestamp:   m.Timestamp,
		BlockNumber: m.BlockNumber,
		TxHash:      m.TxHash,
	}
	snap.Balance.Set(&w.Balance)
	snap.EstimateDeposit.Set(&w.EstimateDeposit)
	snap.CoinTimeAccumulator.Set(&w.CoinTimeAccumulator)

	if err := r.SaveSnapshot(snap); err != nil {
		return nil, errors.Wrapf(err, "append snapshot for %s", w.ID)
	}

	return snap, nil
}
