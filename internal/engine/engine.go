// Package engine routes decoded contract events to the ledger, the correlator
// and the redemption reconciler, persisting every effect of one event atomically.
package engine

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/internal/aggregates"
	"github.com/vadiminshakov/depositledger/internal/correlator"
	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/ledger"
	"github.com/vadiminshakov/depositledger/internal/redemption"
	"github.com/vadiminshakov/depositledger/internal/storage"
)

// ErrUnsupportedEvent is returned for events the engine has no handler for.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Engine applies events in order. Apply calls are serialized.
type Engine struct {
	mu         sync.Mutex
	store      storage.Store
	addrs      domain.Addresses
	ledger     *ledger.Ledger
	correlator *correlator.Correlator
	reconciler *redemption.Reconciler
	l          *zap.Logger
}

// New creates an engine over store. A nil logger disables logging.
func New(store storage.Store, addrs domain.Addresses, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}

	return &Engine{
		store:      store,
		addrs:      addrs,
		ledger:     ledger.New(l.Named("ledger")),
		correlator: correlator.New(l.Named("correlator")),
		reconciler: redemption.New(l.Named("redemption")),
		l:          l,
	}
}

// Apply applies one event and moves the cursor to it. Apply does not
// deduplicate: callers resuming a run skip events covered by Cursor.
func (e *Engine) Apply(ctx context.Context, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := ev.EventMeta()

	return e.store.Update(ctx, func(tx storage.Tx) error {
		s, err := newSession(storage.NewRepo(tx), m)
		if err != nil {
			return err
		}
		if err := e.route(s, ev); err != nil {
			return errors.Wrapf(err, "apply %T %s", ev, m.ID())
		}

		return s.flush()
	})
}

func (e *Engine) route(s *session, ev domain.Event) error {
	switch ev := ev.(type) {
	case domain.Transfer:
		switch ev.Source {
		case domain.SourceVault, domain.SourcePool:
			return e.shareTransfer(s, ev)
		case domain.SourceStable:
			return e.stableTransfer(s, ev)
		}
	case domain.Approval:
		return e.approval(s, ev)
	case domain.Deposit:
		return e.deposit(s, ev)
	case domain.Withdraw:
		return e.withdraw(s, ev)
	case domain.RedeemRequest:
		return e.redeemRequest(s, ev)
	case domain.FulfilledRedeemRequests:
		return e.fulfill(s, ev)
	case domain.RecalculatedNAV:
		return e.recalculateNAV(s, ev)
	}

	return errors.Wrapf(ErrUnsupportedEvent, "%T from %q", ev, ev.EventMeta().Source)
}

// shareTransfer handles mints, burns and transfers of the vault and pool share tokens.
func (e *Engine) shareTransfer(s *session, ev domain.Transfer) error {
	amount := &ev.Amount
	ts := ev.Timestamp

	switch {
	case ev.From == domain.ZeroAddress && ev.To == domain.ZeroAddress:
		e.l.Warn("transfer between zero addresses", zap.String("id", ev.ID()))

	case ev.From == domain.ZeroAddress:
		to, err := s.wallet(ev.To)
		if err != nil {
			return err
		}

		deposit := new(uint256.Int)
		if ev.Source == domain.SourcePool {
			res, err := e.correlator.ResolveDeposit(s.repo, ev.TxHash, ts)
			if err != nil {
				return err
			}
			deposit = res.Deposit
		}

		e.ledger.CreditMint(to, amount, deposit, ts)
		aggregates.Mint(s.protocol, amount)

	case ev.To == domain.ZeroAddress:
		from, err := s.wallet(ev.From)
		if err != nil {
			return err
		}

		e.ledger.DebitBurn(from, amount, ts)
		aggregates.Burn(s.protocol, amount)

	default:
		from, err := s.wallet(ev.From)
		if err != nil {
			return err
		}
		to, err := s.wallet(ev.To)
		if err != nil {
			return err
		}

		if ev.Source == domain.SourcePool && e.isRedemption(ev.To) {
			debit := e.ledger.Redeem(from, to, amount, ts)
			e.l.Info("pool tokens sent for redemption",
				zap.String("wallet", from.ID),
				zap.Stringer("amount", amount),
				zap.Stringer("deposit_removed", debit.Deposit))
			break
		}

		e.ledger.Transfer(from, to, amount, ts)
	}

	aggregates.Count(s.protocol, aggregates.KindTransaction)

	return e.auditTransfer(s, ev)
}

func (e *Engine) isRedemption(addr common.Address) bool {
	return e.addrs.Redemption != domain.ZeroAddress && addr == e.addrs.Redemption
}

// stableTransfer records inflows toward the collection address for mint correlation.
func (e *Engine) stableTransfer(s *session, ev domain.Transfer) error {
	if e.addrs.Intermediary != domain.ZeroAddress && ev.From == e.addrs.Intermediary {
		e.l.Info("stable tokens routed through intermediary",
			zap.String("tx", ev.TxHash.Hex()),
			zap.String("to", domain.WalletID(ev.To)),
			zap.Stringer("amount", &ev.Amount))
	}

	if e.addrs.Collection != domain.ZeroAddress && ev.To == e.addrs.Collection {
		if _, err := e.correlator.RecordInflow(s.repo, ev.TxHash, &ev.Amount, ev.Timestamp); err != nil {
			return err
		}
	}

	return e.auditTransfer(s, ev)
}

func (e *Engine) auditTransfer(s *session, ev domain.Transfer) error {
	rec := &domain.TransferRecord{
		Provenance: domain.NewProvenance(ev.Meta),
		Source:     ev.Source,
		From:       domain.WalletID(ev.From),
		To:         domain.WalletID(ev.To),
	}
	rec.Amount.Set(&ev.Amount)
	rec.SharePrice.Set(&s.protocol.ShareToAssetPrice)

	return errors.Wrap(s.repo.SaveTransfer(rec), "save transfer record")
}

func (e *Engine) approval(s *session, ev domain.Approval) error {
	if _, err := s.wallet(ev.Owner); err != nil {
		return err
	}

	rec := &domain.ApprovalRecord{
		Provenance: domain.NewProvenance(ev.Meta),
		Source:     ev.Source,
		Owner:      domain.WalletID(ev.Owner),
		Spender:    ev.Spender,
	}
	rec.Amount.Set(&ev.Amount)

	return errors.Wrap(s.repo.SaveApproval(rec), "save approval record")
}

func (e *Engine) deposit(s *session, ev domain.Deposit) error {
	owner, err := s.wallet(ev.Owner)
	if err != nil {
		return err
	}

	e.ledger.CreditDeposit(owner, &ev.Assets, ev.Timestamp)
	aggregates.Count(s.protocol, aggregates.KindDeposit)
	aggregates.AddAssets(s.protocol, &ev.Assets)

	rec := &domain.DepositRecord{
		Provenance: domain.NewProvenance(ev.Meta),
		User:       owner.ID,
		Asset:      e.addrs.Stable,
	}
	rec.AssetAmount.Set(&ev.Assets)
	rec.SharesReceived.Set(&ev.Shares)
	rec.SharePrice.Set(&s.protocol.ShareToAssetPrice)

	return errors.Wrap(s.repo.SaveDeposit(rec), "save deposit record")
}

func (e *Engine) withdraw(s *session, ev domain.Withdraw) error {
	aggregates.Count(s.protocol, aggregates.KindWithdrawal)
	aggregates.RemoveAssets(s.protocol, &ev.Assets)

	rec := &domain.WithdrawalRecord{
		Provenance: domain.NewProvenance(ev.Meta),
		User:       domain.WalletID(ev.Owner),
		Asset:      e.addrs.Stable,
	}
	rec.AssetAmount.Set(&ev.Assets)
	rec.SharesBurnt.Set(&ev.Shares)
	rec.SharePrice.Set(&s.protocol.ShareToAssetPrice)

	return errors.Wrap(s.repo.SaveWithdrawal(rec), "save withdrawal record")
}

func (e *Engine) redeemRequest(s *session, ev domain.RedeemRequest) error {
	if _, err := s.wallet(ev.Owner); err != nil {
		return err
	}

	if _, err := e.reconciler.Request(s.repo, ev, aggregates.SharePrice(s.protocol)); err != nil {
		return err
	}
	aggregates.Count(s.protocol, aggregates.KindRedeemRequest)

	return nil
}

func (e *Engine) fulfill(s *session, ev domain.FulfilledRedeemRequests) error {
	price := aggregates.SharePrice(s.protocol)

	matched, err := e.reconciler.Fulfill(s.repo, ev, price)
	if err != nil {
		return err
	}
	aggregates.Count(s.protocol, aggregates.KindFulfillment)

	rec := &domain.FulfillmentRecord{
		Provenance:      domain.NewProvenance(ev.Meta),
		MatchedRequests: make([]string, 0, len(matched)),
	}
	rec.Shares.Set(&ev.Shares)
	rec.Assets.Set(&ev.Assets)
	rec.SharePrice.Set(price)
	for _, req := range matched {
		rec.MatchedRequests = append(rec.MatchedRequests, req.ID)
	}

	return errors.Wrap(s.repo.SaveFulfillment(rec), "save fulfillment record")
}

func (e *Engine) recalculateNAV(s *session, ev domain.RecalculatedNAV) error {
	aggregates.SetNAV(s.protocol, &ev.NAV, &ev.SharePrice, e.addrs.Stable)

	rec := &domain.NAVUpdateRecord{
		Provenance:         domain.NewProvenance(ev.Meta),
		NAVEquivalentAsset: e.addrs.Stable,
	}
	rec.NAV.Set(&ev.NAV)
	rec.ShareToAssetPrice.Set(&ev.SharePrice)

	e.l.Info("nav recalculated",
		zap.Stringer("nav", &ev.NAV),
		zap.Stringer("share_price", &ev.SharePrice))

	return errors.Wrap(s.repo.SaveNAVUpdate(rec), "save nav update record")
}
