package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/depositledger/internal/aggregates"
	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/journal"
	"github.com/vadiminshakov/depositledger/internal/storage"
)

type tracked struct {
	wallet    *domain.Wallet
	wasHolder bool
}

// session holds the state loaded for one event. Wallets are cached by id so
// both sides of a self-transfer share a pointer.
type session struct {
	repo     *storage.Repo
	meta     domain.Meta
	protocol *domain.ProtocolAggregates
	wallets  map[string]*tracked
	order    []string
}

func newSession(repo *storage.Repo, meta domain.Meta) (*session, error) {
	p, err := repo.Protocol()
	if err != nil {
		return nil, errors.Wrap(err, "load protocol aggregates")
	}

	return &session{
		repo:     repo,
		meta:     meta,
		protocol: p,
		wallets:  make(map[string]*tracked),
	}, nil
}

// wallet loads or lazily creates the wallet of addr and marks it touched.
func (s *session) wallet(addr common.Address) (*domain.Wallet, error) {
	id := domain.WalletID(addr)
	if t, ok := s.wallets[id]; ok {
		return t.wallet, nil
	}

	w, err := s.repo.Wallet(id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		w = domain.NewWallet(id)
	case err != nil:
		return nil, errors.Wrapf(err, "load wallet %s", id)
	}

	s.wallets[id] = &tracked{wallet: w, wasHolder: w.IsHolder()}
	s.order = append(s.order, id)

	return w, nil
}

// flush persists touched wallets, their snapshots, the aggregates and the cursor.
func (s *session) flush() error {
	ts := s.meta.Timestamp

	for _, id := range s.order {
		t := s.wallets[id]
		w := t.wallet

		w.TransactionCount++
		if ts > w.LastUpdateTimestamp {
			w.LastUpdateTimestamp = ts
		}

		if err := s.repo.SaveWallet(w); err != nil {
			return errors.Wrapf(err, "save wallet %s", id)
		}
		if _, err := journal.Append(s.repo, w, s.meta); err != nil {
			return err
		}

		aggregates.HolderTransition(s.protocol, t.wasHolder, w.IsHolder())
	}

	aggregates.Touch(s.protocol, ts)
	if err := s.repo.SaveProtocol(s.protocol); err != nil {
		return errors.Wrap(err, "save protocol aggregates")
	}

	cursor := domain.Cursor{
		BlockNumber: s.meta.BlockNumber,
		LogIndex:    s.meta.LogIndex,
		TxHash:      s.meta.TxHash,
	}

	return errors.Wrap(s.repo.SaveCursor(cursor), "save cursor")
}
