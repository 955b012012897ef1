package chain

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/pkg/retrier"
)

type fakeClient struct {
	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	failFilters int
	queries     []ethereum.FilterQuery
	headers     map[uint64]int
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if f.failFilters > 0 {
		f.failFilters--
		return nil, errors.New("429 too many requests")
	}

	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= q.FromBlock.Uint64() && lg.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, lg)
		}
	}

	return out, nil
}

func (f *fakeClient) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.headers == nil {
		f.headers = make(map[uint64]int)
	}
	f.headers[number.Uint64()]++

	return &types.Header{Number: number, Time: 1000 + number.Uint64()*12}, nil
}

func fastRetrier() *retrier.Retrier {
	return retrier.New(retrier.WithInitialInterval(time.Millisecond), retrier.WithMaxRetries(3))
}

func TestSource_FetchOrdersAndTimestamps(t *testing.T) {
	d := newDecoder(t)
	client := &fakeClient{
		head: 100,
		logs: []types.Log{
			packLog(t, d, addrs.Pool, eventTransfer, 12, 3, common.Address{}, alice, big.NewInt(1000)),
			packLog(t, d, addrs.Stable, eventTransfer, 12, 1, alice, addrs.Collection, big.NewInt(500)),
			packLog(t, d, addrs.Vault, eventTransfer, 11, 9, alice, bob, big.NewInt(1)),
			packLog(t, d, common.HexToAddress("0xdead"), eventTransfer, 11, 0, alice, bob, big.NewInt(1)),
			packLog(t, d, addrs.Vault, eventTransfer, 30, 0, alice, bob, big.NewInt(1)),
		},
	}

	s, err := NewSource(client, addrs, nil, WithRetrier(fastRetrier()), WithHeaderWorkers(2))
	require.NoError(t, err)

	events, err := s.Fetch(context.Background(), 10, 20)
	require.NoError(t, err)
	require.Len(t, events, 3)

	var order [][2]uint64
	for _, ev := range events {
		m := ev.EventMeta()
		order = append(order, [2]uint64{m.BlockNumber, uint64(m.LogIndex)})
		require.Equal(t, 1000+m.BlockNumber*12, m.Timestamp)
	}
	require.Equal(t, [][2]uint64{{11, 9}, {12, 1}, {12, 3}}, order)

	require.Equal(t, map[uint64]int{11: 1, 12: 1}, client.headers)
	require.ElementsMatch(t, addrs.Contracts(), client.queries[0].Addresses)
	require.Equal(t, domain.SourceStable, events[1].EventMeta().Source)
}

func TestSource_RetriesFilterLogs(t *testing.T) {
	d := newDecoder(t)
	client := &fakeClient{
		failFilters: 2,
		logs:        []types.Log{packLog(t, d, addrs.Vault, eventTransfer, 5, 0, alice, bob, big.NewInt(1))},
	}

	s, err := NewSource(client, addrs, nil, WithRetrier(fastRetrier()))
	require.NoError(t, err)

	events, err := s.Fetch(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, client.queries, 3)
}

func TestSource_Head(t *testing.T) {
	s, err := NewSource(&fakeClient{head: 77}, addrs, nil)
	require.NoError(t, err)

	head, err := s.Head(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(77), head)
}
