package engine

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/internal/storage"
	"github.com/vadiminshakov/depositledger/internal/storage/memory"
)

const day = 86400

var (
	addrs = domain.Addresses{
		Vault:        common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Pool:         common.HexToAddress("0x1000000000000000000000000000000000000002"),
		Stable:       common.HexToAddress("0x1000000000000000000000000000000000000003"),
		Intermediary: common.HexToAddress("0x2000000000000000000000000000000000000001"),
		Collection:   common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Redemption:   common.HexToAddress("0x2000000000000000000000000000000000000003"),
	}

	alice   = common.HexToAddress("0xA11CE00000000000000000000000000000000000")
	bob     = common.HexToAddress("0xB0B0000000000000000000000000000000000000")
	spender = common.HexToAddress("0x5BE0000000000000000000000000000000000000")
)

func meta(src domain.Source, tx byte, logIndex uint, ts uint64) domain.Meta {
	contract := map[domain.Source]common.Address{
		domain.SourceVault:  addrs.Vault,
		domain.SourcePool:   addrs.Pool,
		domain.SourceStable: addrs.Stable,
	}[src]

	return domain.Meta{
		Source:      src,
		Contract:    contract,
		BlockNumber: ts / 12,
		Timestamp:   ts,
		TxHash:      common.BytesToHash([]byte{tx}),
		LogIndex:    logIndex,
	}
}

func transfer(m domain.Meta, from, to common.Address, amount uint64) domain.Transfer {
	ev := domain.Transfer{Meta: m, From: from, To: to}
	ev.Amount.SetUint64(amount)
	return ev
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(memory.New(), addrs, nil)
}

func apply(t *testing.T, e *Engine, events ...domain.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, e.Apply(context.Background(), ev))
	}
}

func wallet(t *testing.T, e *Engine, addr common.Address) *domain.Wallet {
	t.Helper()
	w, err := e.Wallet(context.Background(), addr)
	require.NoError(t, err)
	return w
}

func protocol(t *testing.T, e *Engine) *domain.ProtocolAggregates {
	t.Helper()
	p, err := e.Protocol(context.Background())
	require.NoError(t, err)
	return p
}

func count(t *testing.T, e *Engine, kind storage.Kind) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.View(context.Background(), func(tx storage.Tx) error {
		var err error
		n, err = storage.NewRepo(tx).Count(kind)
		return err
	}))
	return n
}

func TestPoolMint_CorrelatedInflowCreditedOnce(t *testing.T) {
	e := newEngine(t)

	apply(t, e,
		transfer(meta(domain.SourceStable, 1, 0, 1000), alice, addrs.Collection, 300),
		transfer(meta(domain.SourceStable, 1, 1, 1000), addrs.Intermediary, addrs.Collection, 200),
		transfer(meta(domain.SourcePool, 1, 2, 1000), domain.ZeroAddress, alice, 1000),
		transfer(meta(domain.SourcePool, 1, 3, 1000), domain.ZeroAddress, alice, 1000),
	)

	w := wallet(t, e, alice)
	require.Equal(t, uint64(2000), w.Balance.Uint64())
	require.Equal(t, uint64(500), w.EstimateDeposit.Uint64())
	require.Equal(t, uint64(2), w.TransactionCount)

	p := protocol(t, e)
	require.Equal(t, uint64(2000), p.TotalSupply.Uint64())
	require.Equal(t, uint64(2000), p.TotalShares.Uint64())
	require.Equal(t, uint64(1), p.HolderCount)
	require.Equal(t, uint64(2), p.TransactionCount)

	require.Equal(t, 4, count(t, e, storage.KindTransfer))
	require.Equal(t, 1, count(t, e, storage.KindCorrelation))
}

func TestPoolMint_UncorrelatedCreditsZeroDeposit(t *testing.T) {
	e := newEngine(t)

	apply(t, e, transfer(meta(domain.SourcePool, 1, 0, 1000), domain.ZeroAddress, alice, 1000))

	w := wallet(t, e, alice)
	require.Equal(t, uint64(1000), w.Balance.Uint64())
	require.True(t, w.EstimateDeposit.IsZero())
}

func TestVault_DepositThenTransferAccruesCoinTime(t *testing.T) {
	e := newEngine(t)
	t0 := uint64(1_000_000)

	dep := domain.Deposit{Meta: meta(domain.SourceVault, 1, 1, t0), Owner: alice}
	dep.Assets.SetUint64(1000)
	dep.Shares.SetUint64(1000)

	apply(t, e,
		transfer(meta(domain.SourceVault, 1, 0, t0), domain.ZeroAddress, alice, 1000),
		dep,
		transfer(meta(domain.SourceVault, 2, 0, t0+day), alice, bob, 400),
	)

	a := wallet(t, e, alice)
	require.Equal(t, uint64(600), a.Balance.Uint64())
	require.Equal(t, uint64(600), a.EstimateDeposit.Uint64())
	require.Equal(t, uint64(1000), a.CoinTimeAccumulator.Uint64())
	require.Equal(t, uint64(3), a.TransactionCount)

	b := wallet(t, e, bob)
	require.Equal(t, uint64(400), b.Balance.Uint64())
	require.Equal(t, uint64(400), b.EstimateDeposit.Uint64())
	require.True(t, b.CoinTimeAccumulator.IsZero())

	p := protocol(t, e)
	require.Equal(t, uint64(1000), p.TotalSupply.Uint64())
	require.Equal(t, uint64(1000), p.TotalAssets.Uint64())
	require.Equal(t, uint64(2), p.HolderCount)
	require.Equal(t, uint64(2), p.TransactionCount)
	require.Equal(t, uint64(1), p.DepositCount)
	require.Equal(t, t0+day, p.LastUpdateTimestamp)

	snaps, err := e.Snapshots(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, t0, snaps[0].Timestamp)
	require.Equal(t, uint64(1000), snaps[0].EstimateDeposit.Uint64())
	require.Equal(t, uint64(1000), snaps[1].CoinTimeAccumulator.Uint64())
}

func TestVault_BurnBeyondBalanceFloors(t *testing.T) {
	e := newEngine(t)

	apply(t, e,
		transfer(meta(domain.SourceVault, 1, 0, 100), domain.ZeroAddress, alice, 100),
		transfer(meta(domain.SourceVault, 2, 0, 110), alice, domain.ZeroAddress, 150),
	)

	w := wallet(t, e, alice)
	require.True(t, w.Balance.IsZero())
	require.True(t, w.EstimateDeposit.IsZero())

	p := protocol(t, e)
	require.True(t, p.TotalSupply.IsZero())
	require.Zero(t, p.HolderCount)
}

func TestVault_WithdrawReducesAssets(t *testing.T) {
	e := newEngine(t)

	dep := domain.Deposit{Meta: meta(domain.SourceVault, 1, 0, 100), Owner: alice}
	dep.Assets.SetUint64(500)
	wd := domain.Withdraw{Meta: meta(domain.SourceVault, 2, 0, 200), Owner: alice}
	wd.Assets.SetUint64(800)

	apply(t, e, dep, wd)

	p := protocol(t, e)
	require.True(t, p.TotalAssets.IsZero())
	require.Equal(t, uint64(1), p.WithdrawalCount)
	require.Equal(t, 1, count(t, e, storage.KindWithdrawal))
}

func TestRedemption_FIFOFulfillment(t *testing.T) {
	e := newEngine(t)

	nav := domain.RecalculatedNAV{Meta: meta(domain.SourceVault, 1, 0, 50)}
	nav.NAV.SetUint64(5000)
	nav.SharePrice.SetUint64(1_100_000_000_000_000_000)

	reqA := domain.RedeemRequest{Meta: meta(domain.SourceVault, 2, 0, 100), Owner: alice}
	reqA.Shares.SetUint64(100)
	reqB := domain.RedeemRequest{Meta: meta(domain.SourceVault, 3, 0, 200), Owner: bob}
	reqB.Shares.SetUint64(50)

	ful := domain.FulfilledRedeemRequests{Meta: meta(domain.SourceVault, 4, 0, 300)}
	ful.Shares.SetUint64(120)
	ful.Assets.SetUint64(132)

	apply(t, e, nav, reqA, reqB, ful)

	ctx := context.Background()
	a, err := e.Redemption(ctx, reqA.ID())
	require.NoError(t, err)
	require.Equal(t, uint64(110), a.ExpectedAssets.Uint64())
	require.True(t, a.Fulfilled)
	require.Equal(t, uint64(300), a.FulfillmentTimestamp)

	b, err := e.Redemption(ctx, reqB.ID())
	require.NoError(t, err)
	require.True(t, b.Fulfilled)
	require.Equal(t, "1100000000000000000", b.FulfillmentSharePrice.Dec())

	var rec *domain.FulfillmentRecord
	require.NoError(t, e.store.View(ctx, func(tx storage.Tx) error {
		rec, err = storage.NewRepo(tx).Fulfillment(ful.ID())
		return err
	}))
	require.Equal(t, []string{reqA.ID(), reqB.ID()}, rec.MatchedRequests)

	p := protocol(t, e)
	require.Equal(t, uint64(2), p.RedeemRequestCount)
	require.Equal(t, uint64(1), p.FulfillmentCount)
	require.Equal(t, uint64(5000), p.CurrentNAV.Uint64())
	require.Equal(t, addrs.Stable, p.NAVEquivalentAsset)

	// requesters exist but hold nothing
	require.Zero(t, p.HolderCount)
	require.Equal(t, uint64(1), wallet(t, e, alice).TransactionCount)
}

func TestRedemption_FulfillmentWithoutRequests(t *testing.T) {
	e := newEngine(t)

	ful := domain.FulfilledRedeemRequests{Meta: meta(domain.SourceVault, 1, 0, 300)}
	ful.Shares.SetUint64(10)

	apply(t, e, ful)

	require.Equal(t, uint64(1), protocol(t, e).FulfillmentCount)
	require.Equal(t, 1, count(t, e, storage.KindFulfillment))
}

func TestPool_TransferToRedemptionAddress(t *testing.T) {
	e := newEngine(t)

	apply(t, e,
		transfer(meta(domain.SourceStable, 1, 0, 1000), alice, addrs.Collection, 500),
		transfer(meta(domain.SourcePool, 1, 1, 1000), domain.ZeroAddress, alice, 1000),
		transfer(meta(domain.SourcePool, 2, 0, 1000), alice, addrs.Redemption, 400),
	)

	a := wallet(t, e, alice)
	require.Equal(t, uint64(600), a.Balance.Uint64())
	require.Equal(t, uint64(300), a.EstimateDeposit.Uint64())

	r := wallet(t, e, addrs.Redemption)
	require.Equal(t, uint64(400), r.Balance.Uint64())
	require.True(t, r.EstimateDeposit.IsZero())

	p := protocol(t, e)
	require.Equal(t, uint64(1000), p.TotalSupply.Uint64())
	require.Equal(t, uint64(2), p.HolderCount)
}

func TestSelfTransferKeepsWallet(t *testing.T) {
	e := newEngine(t)

	apply(t, e,
		transfer(meta(domain.SourceVault, 1, 0, 100), domain.ZeroAddress, alice, 1000),
		transfer(meta(domain.SourceVault, 2, 0, 200), alice, alice, 300),
	)

	w := wallet(t, e, alice)
	require.Equal(t, uint64(1000), w.Balance.Uint64())
	require.Equal(t, uint64(2), w.TransactionCount)
	require.Equal(t, uint64(1), protocol(t, e).HolderCount)
}

func TestApprovalCreatesWalletLazily(t *testing.T) {
	e := newEngine(t)

	ap := domain.Approval{Meta: meta(domain.SourceStable, 1, 0, 100), Owner: alice, Spender: spender}
	ap.Amount.SetAllOne()

	apply(t, e, ap)

	w := wallet(t, e, alice)
	require.True(t, w.Balance.IsZero())
	require.Equal(t, uint64(1), w.TransactionCount)
	require.Equal(t, uint64(100), w.LastUpdateTimestamp)
	require.Zero(t, protocol(t, e).HolderCount)
	require.Equal(t, 1, count(t, e, storage.KindApproval))
}

func TestApply_ReplayedPoolMintCreditsDepositOnce(t *testing.T) {
	e := newEngine(t)
	mint := transfer(meta(domain.SourcePool, 1, 1, 100), domain.ZeroAddress, alice, 1000)

	apply(t, e,
		transfer(meta(domain.SourceStable, 1, 0, 100), alice, addrs.Collection, 700),
		mint,
		mint,
	)

	w := wallet(t, e, alice)
	require.Equal(t, uint64(2000), w.Balance.Uint64())
	require.Equal(t, uint64(700), w.EstimateDeposit.Uint64())
	require.Equal(t, uint64(2000), protocol(t, e).TotalSupply.Uint64())
}

func TestApply_MovesCursor(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, ok, err := e.Cursor(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	m := meta(domain.SourceVault, 7, 3, 1200)
	apply(t, e, transfer(m, domain.ZeroAddress, alice, 1))

	c, ok, err := e.Cursor(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.Cursor{BlockNumber: m.BlockNumber, LogIndex: 3, TxHash: m.TxHash}, c)
	require.True(t, c.Covers(m))
}

func TestApply_FailedCommitLeavesStateUntouched(t *testing.T) {
	boom := errors.New("disk full")
	e := New(memory.NewWithHook(func([]memory.Change) error { return boom }), addrs, nil)

	err := e.Apply(context.Background(), transfer(meta(domain.SourceVault, 1, 0, 100), domain.ZeroAddress, alice, 1000))
	require.ErrorIs(t, err, boom)

	_, err = e.Wallet(context.Background(), alice)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApply_UnsupportedEvent(t *testing.T) {
	e := newEngine(t)

	err := e.Apply(context.Background(), transfer(meta("", 1, 0, 100), alice, bob, 1))
	require.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestCheckpoint(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, ok, err := e.Checkpoint(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, e.SaveCheckpoint(ctx, 42))

	block, ok, err := e.Checkpoint(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), block)
}

func TestProtocolDefaultsWhenEmpty(t *testing.T) {
	p := protocol(t, newEngine(t))
	require.Equal(t, domain.ProtocolID, p.ID)
	require.True(t, p.TotalSupply.Eq(uint256.NewInt(0)))
}
