package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/storage"
)

// Wallet returns the stored wallet of addr or storage.ErrNotFound.
func (e *Engine) Wallet(ctx context.Context, addr common.Address) (*domain.Wallet, error) {
	var w *domain.Wallet
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		w, err = storage.NewRepo(tx).Wallet(domain.WalletID(addr))
		return err
	})

	return w, err
}

// Wallets returns all stored wallets in id order.
func (e *Engine) Wallets(ctx context.Context) ([]*domain.Wallet, error) {
	var ws []*domain.Wallet
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		ws, err = storage.NewRepo(tx).Wallets()
		return err
	})

	return ws, err
}

// Snapshots returns the snapshot history of addr ordered by timestamp.
func (e *Engine) Snapshots(ctx context.Context, addr common.Address) ([]*domain.WalletSnapshot, error) {
	var out []*domain.WalletSnapshot
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = storage.NewRepo(tx).Snapshots(domain.WalletID(addr))
		return err
	})

	return out, err
}

// Protocol returns the protocol aggregates.
func (e *Engine) Protocol(ctx context.Context) (*domain.ProtocolAggregates, error) {
	var p *domain.ProtocolAggregates
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		p, err = storage.NewRepo(tx).Protocol()
		return err
	})

	return p, err
}

// Redemption returns a redemption request by id.
func (e *Engine) Redemption(ctx context.Context, id string) (*domain.RedemptionRequest, error) {
	var req *domain.RedemptionRequest
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		req, err = storage.NewRepo(tx).Redemption(id)
		return err
	})

	return req, err
}

// Checkpoint returns the last fully processed block.
func (e *Engine) Checkpoint(ctx context.Context) (block uint64, ok bool, err error) {
	err = e.store.View(ctx, func(tx storage.Tx) error {
		block, ok, err = storage.NewRepo(tx).Checkpoint()
		return err
	})

	return block, ok, err
}

// Cursor returns the position of the last applied event.
func (e *Engine) Cursor(ctx context.Context) (c domain.Cursor, ok bool, err error) {
	err = e.store.View(ctx, func(tx storage.Tx) error {
		c, ok, err = storage.NewRepo(tx).Cursor()
		return err
	})

	return c, ok, err
}

// SaveCheckpoint records block as fully processed.
func (e *Engine) SaveCheckpoint(ctx context.Context, block uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.Update(ctx, func(tx storage.Tx) error {
		return storage.NewRepo(tx).SaveCheckpoint(block)
	})
}
