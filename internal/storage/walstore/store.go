// Package walstore persists committed entity batches in a write-ahead log and serves
// reads from an in-memory image rebuilt on open.
package walstore

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/depositledger/internal/storage/memory"
)

const (
	defaultDir       = "./wal/ledger"
	segmentThreshold = 1000
	// segments are never evicted: the log is the only copy of the state
	maxSegments    = 1 << 20
	batchKeyPrefix = "ledger_batch_"
	dirPermissions = 0o755
)

// Store is a storage.Store backed by gowal.
type Store struct {
	*memory.Store

	mu  sync.Mutex
	wal *gowal.Wal
	l   *zap.Logger
}

// Open replays the WAL under dir and returns a store ready for new transactions.
func Open(dir string, l *zap.Logger) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}
	if l == nil {
		l = zap.NewNop()
	}

	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "ledger_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init ledger WAL")
	}

	s := &Store{wal: wal, l: l}
	s.Store = memory.NewWithHook(s.append)

	batches := 0
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, batchKeyPrefix) {
			continue
		}

		var changes []memory.Change
		if err := json.Unmarshal(msg.Value, &changes); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode WAL batch %s", msg.Key)
		}
		s.Store.Restore(changes)
		batches++
	}

	l.Info("ledger WAL replayed",
		zap.String("dir", dir),
		zap.Int("batches", batches),
		zap.Uint64("index", wal.CurrentIndex()))

	return s, nil
}

// append writes one committed batch. Called under the memory store write lock.
func (s *Store) append(changes []memory.Change) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return errors.Wrap(err, "marshal WAL batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	key := batchKeyPrefix + strconv.FormatUint(nextIndex, 10)

	return s.wal.Write(nextIndex, key, payload)
}

// CurrentIndex returns the latest WAL index written.
func (s *Store) CurrentIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.CurrentIndex()
}

// Close closes the in-memory image and the WAL.
func (s *Store) Close() error {
	if err := s.Store.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
