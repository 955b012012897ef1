package chain

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/depositledger/internal/domain"
	"github.com/vadiminshakov/depositledger/pkg/retrier"
)

const defaultHeaderWorkers = 8

// Client is the subset of ethclient.Client the source needs.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Source fetches and decodes instrument events for block ranges.
type Source struct {
	client    Client
	decoder   *Decoder
	contracts []common.Address
	retrier   *retrier.Retrier
	workers   int
	l         *zap.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithHeaderWorkers bounds concurrent header requests.
func WithHeaderWorkers(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRetrier replaces the default RPC retrier.
func WithRetrier(r *retrier.Retrier) SourceOption {
	return func(s *Source) {
		s.retrier = r
	}
}

// NewSource creates a source reading the contracts of addrs.
func NewSource(client Client, addrs domain.Addresses, l *zap.Logger, opts ...SourceOption) (*Source, error) {
	if l == nil {
		l = zap.NewNop()
	}

	decoder, err := NewDecoder(addrs)
	if err != nil {
		return nil, err
	}

	s := &Source{
		client:    client,
		decoder:   decoder,
		contracts: addrs.Contracts(),
		retrier:   retrier.New(retrier.WithLogger(l)),
		workers:   defaultHeaderWorkers,
		l:         l,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Head returns the latest block number.
func (s *Source) Head(ctx context.Context) (uint64, error) {
	head, err := retrier.DoWithData(s.retrier, ctx, s.client.BlockNumber)
	return head, errors.Wrap(err, "get block number")
}

// Fetch returns the events of blocks [from, to] ordered by block and log index.
// Unknown logs are skipped.
func (s *Source) Fetch(ctx context.Context, from, to uint64) ([]domain.Event, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: s.contracts,
		Topics:    [][]common.Hash{s.decoder.Topics()},
	}

	logs, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) ([]types.Log, error) {
		return s.client.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "filter logs %d-%d", from, to)
	}

	times, err := s.blockTimes(ctx, logs)
	if err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(logs))
	for _, lg := range logs {
		ev, err := s.decoder.Decode(lg, times[lg.BlockNumber])
		switch {
		case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrRemovedLog):
			s.l.Debug("skipping log", zap.Uint64("block", lg.BlockNumber), zap.Uint("index", lg.Index), zap.Error(err))
			continue
		case err != nil:
			return nil, errors.Wrapf(err, "decode log %d in block %d", lg.Index, lg.BlockNumber)
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return domain.Less(events[i], events[j])
	})

	return events, nil
}

// blockTimes fetches the timestamp of every block referenced by logs.
func (s *Source) blockTimes(ctx context.Context, logs []types.Log) (map[uint64]uint64, error) {
	seen := make(map[uint64]bool)
	blocks := make([]uint64, 0)
	for _, lg := range logs {
		if !seen[lg.BlockNumber] {
			seen[lg.BlockNumber] = true
			blocks = append(blocks, lg.BlockNumber)
		}
	}

	times := make(map[uint64]uint64, len(blocks))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, block := range blocks {
		g.Go(func() error {
			header, err := retrier.DoWithData(s.retrier, gctx, func(ctx context.Context) (*types.Header, error) {
				return s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
			})
			if err != nil {
				return errors.Wrapf(err, "get header %d", block)
			}

			mu.Lock()
			times[block] = header.Time
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return times, nil
}
