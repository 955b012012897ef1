// Package redemption tracks redemption requests and settles them in FIFO order.
package redemption

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/storage"
	"github.com/vadiminshakov/depositledger/pkg/fixedpoint"
)

// Reconciler creates requests and matches fulfillments against them.
type Reconciler struct {
	l *zap.Logger
}

// New creates a reconciler.
func New(l *zap.Logger) *Reconciler {
	if l == nil {
		l = zap.NewNop()
	}

	return &Reconciler{l: l}
}

// Request stores a new unfulfilled request valued at sharePrice.
func (rc *Reconciler) Request(r *storage.Repo, ev domain.RedeemRequest, sharePrice *uint256.Int) (*domain.RedemptionRequest, error) {
	m := ev.EventMeta()

	req := &domain.RedemptionRequest{
		ID:          m.ID(),
		Requester:   domain.WalletID(ev.Owner),
		Timestamp:   m.Timestamp,
		BlockNumber: m.BlockNumber,
		LogIndex:    m.LogIndex,
		TxHash:      m.TxHash,
	}
	req.Shares.Set(&ev.Shares)
	req.SharePrice.Set(sharePrice)
	req.ExpectedAssets.Set(fixedpoint.ApplyRatio(&ev.Shares, sharePrice))

	if err := r.SaveRedemption(req); err != nil {
		return nil, errors.Wrap(err, "save redemption request")
	}

	return req, nil
}

// Fulfill marks open requests fulfilled, oldest first, until the cumulative
// requested shares reach ev.Shares. The request that crosses the total is
// marked fulfilled in full. It returns the matched requests.
func (rc *Reconciler) Fulfill(r *storage.Repo, ev domain.FulfilledRedeemRequests, sharePrice *uint256.Int) ([]*domain.RedemptionRequest, error) {
	m := ev.EventMeta()

	open, err := r.UnfulfilledRedemptions()
	if err != nil {
		return nil, errors.Wrap(err, "load open redemption requests")
	}

	remaining := new(uint256.Int).Set(&ev.Shares)
	var matched []*domain.RedemptionRequest

	for _, req := range open {
		if remaining.IsZero() {
			break
		}

		remaining.Set(fixedpoint.SubFloor(remaining, &req.Shares))

		req.Fulfilled = true
		req.FulfillmentTimestamp = m.Timestamp
		req.FulfillmentBlockNumber = m.BlockNumber
		req.FulfillmentTxHash = m.TxHash
		req.FulfillmentSharePrice.Set(sharePrice)

		if err := r.SaveRedemption(req); err != nil {
			return nil, errors.Wrapf(err, "save fulfilled request %s", req.ID)
		}
		matched = append(matched, req)
	}

	switch {
	case len(open) == 0:
		rc.l.Warn("fulfillment without open redemption requests",
			zap.String("tx", m.TxHash.Hex()),
			zap.Stringer("shares", &ev.Shares))
	case !remaining.IsZero():
		rc.l.Warn("fulfillment exceeds open redemption requests",
			zap.String("tx", m.TxHash.Hex()),
			zap.Stringer("unmatched_shares", remaining))
	default:
		rc.l.Info("fulfilled redemption requests",
			zap.String("tx", m.TxHash.Hex()),
			zap.Int("matched", len(matched)),
			zap.Stringer("shares", &ev.Shares),
			zap.Stringer("assets", &ev.Assets))
	}

	return matched, nil
}
