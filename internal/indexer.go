package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/config"
	"github.com/vadiminshakov/depositledger/internal/domain"
)

// EventSource yields decoded events for block ranges.
type EventSource interface {
	Head(ctx context.Context) (uint64, error)
	Fetch(ctx context.Context, from, to uint64) ([]domain.Event, error)
}

// Applier applies events and tracks the processed block range.
type Applier interface {
	Apply(ctx context.Context, ev domain.Event) error
	Checkpoint(ctx context.Context) (uint64, bool, error)
	Cursor(ctx context.Context) (domain.Cursor, bool, error)
	SaveCheckpoint(ctx context.Context, block uint64) error
}

// Indexer feeds confirmed block ranges from the source into the engine.
type Indexer struct {
	source EventSource
	engine Applier
	conf   config.Config
	l      *zap.Logger

	// cursor is the last event applied before the checkpoint of a previous run.
	cursor    domain.Cursor
	hasCursor bool
}

// NewIndexer creates an indexer.
func NewIndexer(source EventSource, engine Applier, conf config.Config, l *zap.Logger) *Indexer {
	if l == nil {
		l = zap.NewNop()
	}

	return &Indexer{source: source, engine: engine, conf: conf, l: l}
}

// Run indexes from the checkpoint until end_block, or follows the chain head
// until ctx is done.
func (ix *Indexer) Run(ctx context.Context) error {
	next, err := ix.resume(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(ix.conf.PollInterval)
	defer ticker.Stop()

	ix.l.Info("starting indexing loop",
		zap.Uint64("from_block", next),
		zap.Uint64("end_block", ix.conf.EndBlock),
		zap.Duration("poll_interval", ix.conf.PollInterval))

	for {
		done, err := ix.catchUp(ctx, &next)
		if err != nil {
			return err
		}
		if done {
			ix.l.Info("reached end block", zap.Uint64("end_block", ix.conf.EndBlock))
			return nil
		}

		select {
		case <-ctx.Done():
			ix.l.Info("context done, stopping indexing loop", zap.Uint64("next_block", next))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (ix *Indexer) resume(ctx context.Context) (uint64, error) {
	cursor, ok, err := ix.engine.Cursor(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load cursor")
	}
	ix.cursor, ix.hasCursor = cursor, ok

	cp, ok, err := ix.engine.Checkpoint(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load checkpoint")
	}
	if ok && cp+1 > ix.conf.StartBlock {
		return cp + 1, nil
	}

	return ix.conf.StartBlock, nil
}

// catchUp processes every confirmed range from *next. It reports whether end_block was reached.
func (ix *Indexer) catchUp(ctx context.Context, next *uint64) (bool, error) {
	if ix.finished(*next) {
		return true, nil
	}

	head, err := ix.source.Head(ctx)
	if err != nil {
		return false, errors.Wrap(err, "get chain head")
	}
	if head < ix.conf.Confirmations {
		return false, nil
	}

	safe := head - ix.conf.Confirmations
	if ix.conf.EndBlock != 0 && safe > ix.conf.EndBlock {
		safe = ix.conf.EndBlock
	}

	for *next <= safe {
		to := min(*next+ix.conf.BatchSize-1, safe)

		events, err := ix.source.Fetch(ctx, *next, to)
		if err != nil {
			return false, errors.Wrapf(err, "fetch blocks %d-%d", *next, to)
		}

		for _, ev := range events {
			if ix.hasCursor && ix.cursor.Covers(ev.EventMeta()) {
				ix.l.Debug("skipping event applied by a previous run", zap.String("id", ev.EventMeta().ID()))
				continue
			}
			if err := ix.engine.Apply(ctx, ev); err != nil {
				return false, err
			}
		}

		if err := ix.engine.SaveCheckpoint(ctx, to); err != nil {
			return false, errors.Wrapf(err, "save checkpoint %d", to)
		}

		ix.l.Info("indexed block range",
			zap.Uint64("from", *next),
			zap.Uint64("to", to),
			zap.Int("events", len(events)),
			zap.Uint64("head", head))

		*next = to + 1
	}

	return ix.finished(*next), nil
}

func (ix *Indexer) finished(next uint64) bool {
	return ix.conf.EndBlock != 0 && next > ix.conf.EndBlock
}
