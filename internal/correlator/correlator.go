// Package correlator joins events emitted by different contracts inside one transaction.
//
// Stable-token inflows toward the collection address are summed into a pending
// record keyed by transaction hash. The pool mint of the same transaction
// resolves that record into a deposit amount exactly once, guarded by a
// processed marker.
package correlator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/storage"
)

// Resolution is the outcome of resolving a mint's deposit amount.
type Resolution struct {
	// Deposit is the amount to credit to the deposit estimate.
	Deposit *uint256.Int
	// Duplicate is true when the transaction was already credited.
	Duplicate bool
	// Uncorrelated is true when no inflow was recorded for the transaction.
	Uncorrelated bool
}

// Correlator maintains correlation records and processed markers.
type Correlator struct {
	l *zap.Logger
}

// New creates a correlator.
func New(l *zap.Logger) *Correlator {
	if l == nil {
		l = zap.NewNop()
	}

	return &Correlator{l: l}
}

// RecordInflow adds amount to the correlation record of txHash, creating it on first use.
func (c *Correlator) RecordInflow(r *storage.Repo, txHash common.Hash, amount *uint256.Int, timestamp uint64) (*domain.TransactionCorrelationRecord, error) {
	rec, err := r.Correlation(domain.TxID(txHash))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = &domain.TransactionCorrelationRecord{TxHash: txHash, FirstSeen: timestamp}
	case err != nil:
		return nil, errors.Wrap(err, "load correlation record")
	}

	rec.Amount.Add(&rec.Amount, amount)
	rec.Transfers++
	rec.LastSeen = timestamp

	if err := r.SaveCorrelation(rec); err != nil {
		return nil, errors.Wrap(err, "save correlation record")
	}

	c.l.Info("recorded stable inflow",
		zap.String("tx", txHash.Hex()),
		zap.Stringer("amount", amount),
		zap.Stringer("total", &rec.Amount),
		zap.Uint64("transfers", rec.Transfers))

	return rec, nil
}

// ResolveDeposit returns the deposit amount backing a mint in txHash.
// The first call per transaction returns the recorded inflow (zero when none was recorded)
// and sets the marker; later calls return zero.
func (c *Correlator) ResolveDeposit(r *storage.Repo, txHash common.Hash, timestamp uint64) (Resolution, error) {
	markerID := domain.MarkerID(txHash, domain.MarkerDeposit)

	seen, err := r.HasMarker(markerID)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "check deposit marker")
	}
	if seen {
		c.l.Info("skipping duplicate mint deposit in the same transaction", zap.String("tx", txHash.Hex()))
		return Resolution{Deposit: new(uint256.Int), Duplicate: true}, nil
	}

	res := Resolution{Deposit: new(uint256.Int)}

	rec, err := r.Correlation(domain.TxID(txHash))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		res.Uncorrelated = true
		c.l.Warn("no stable inflow found for mint, crediting zero deposit", zap.String("tx", txHash.Hex()))
	case err != nil:
		return Resolution{}, errors.Wrap(err, "load correlation record")
	default:
		res.Deposit.Set(&rec.Amount)
	}

	marker := &domain.ProcessedMarker{TxHash: txHash, Suffix: domain.MarkerDeposit, Timestamp: timestamp}
	if err := r.SaveMarker(marker); err != nil {
		return Resolution{}, errors.Wrap(err, "save deposit marker")
	}

	return res, nil
}
