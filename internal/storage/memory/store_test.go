package memory

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/depositledger/internal/storage"
)

func TestStore_UpdateCommits(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.Put(storage.KindWallet, "0xb", []byte(`{"id":"0xb"}`)))
		require.NoError(t, tx.Put(storage.KindWallet, "0xa", []byte(`{"id":"0xa"}`)))

		payload, ok, err := tx.Get(storage.KindWallet, "0xa")
		require.NoError(t, err)
		require.True(t, ok, "staged writes are visible inside the transaction")
		require.JSONEq(t, `{"id":"0xa"}`, string(payload))
		return nil
	})
	require.NoError(t, err)

	var ids []string
	err = s.View(ctx, func(tx storage.Tx) error {
		return tx.Scan(storage.KindWallet, func(id string, _ []byte) error {
			ids = append(ids, id)
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"0xa", "0xb"}, ids)
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.Put(storage.KindWallet, "0xa", []byte(`{}`)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(tx storage.Tx) error {
		_, ok, err := tx.Get(storage.KindWallet, "0xa")
		require.False(t, ok)
		return err
	})
	require.NoError(t, err)
}

func TestStore_HookFailureAbortsCommit(t *testing.T) {
	var seen []Change
	failing := true
	s := NewWithHook(func(changes []Change) error {
		if failing {
			return errors.New("disk full")
		}
		seen = append(seen, changes...)
		return nil
	})
	ctx := context.Background()

	put := func(tx storage.Tx) error {
		if err := tx.Put(storage.KindMarker, "m", []byte(`1`)); err != nil {
			return err
		}
		return tx.Put(storage.KindMarker, "m", []byte(`2`))
	}

	require.Error(t, s.Update(ctx, put))
	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		_, ok, _ := tx.Get(storage.KindMarker, "m")
		require.False(t, ok)
		return nil
	}))

	failing = false
	require.NoError(t, s.Update(ctx, put))
	require.Len(t, seen, 1, "repeated puts collapse into one change")
	require.Equal(t, []byte(`2`), seen[0].Payload)
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx storage.Tx) error {
		return tx.Put(storage.KindWallet, "0xa", []byte(`{}`))
	})
	require.ErrorIs(t, err, storage.ErrReadOnly)
}

func TestStore_Closed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Update(context.Background(), func(storage.Tx) error { return nil }), ErrClosed)
}
