package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/depositledger/internal/storage"
)

func TestStore_UpsertAndScan(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.Put(storage.KindRedemption, "b", []byte(`{"v":1}`)))
		require.NoError(t, tx.Put(storage.KindRedemption, "a", []byte(`{"v":2}`)))
		return tx.Put(storage.KindRedemption, "b", []byte(`{"v":3}`))
	}))

	var got []string
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		return tx.Scan(storage.KindRedemption, func(id string, payload []byte) error {
			got = append(got, id+"="+string(payload))
			return nil
		})
	}))
	require.Equal(t, []string{`a={"v":2}`, `b={"v":3}`}, got)
}

func TestStore_RollbackOnError(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()
	ctx := context.Background()

	boom := errors.New("boom")
	err = s.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.Put(storage.KindWallet, "0xa", []byte(`{}`)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.Get(storage.KindWallet, "0xa")
		require.False(t, ok)
		return err
	}))
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, func(tx storage.Tx) error {
		return tx.Put(storage.KindCheckpoint, "head", []byte(`{"block_number":42}`))
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	err = s.View(ctx, func(tx storage.Tx) error {
		payload, ok, err := tx.Get(storage.KindCheckpoint, "head")
		require.NoError(t, err)
		require.True(t, ok)
		require.JSONEq(t, `{"block_number":42}`, string(payload))
		return tx.Put(storage.KindCheckpoint, "head", nil)
	})
	require.ErrorIs(t, err, storage.ErrReadOnly, "view must reject writes")
}
