// Package memory is an in-process Store. Transactions stage writes in an overlay
// that is applied on commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/depositledger/internal/storage"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store is closed")

// Change is one committed upsert.
type Change struct {
	Kind    storage.Kind `json:"kind"`
	ID      string       `json:"id"`
	Payload []byte       `json:"payload"`
}

// CommitHook persists a batch of changes before they become visible. An error aborts the commit.
type CommitHook func(changes []Change) error

// Store keeps all entities in maps guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	data   map[storage.Kind]map[string][]byte
	hook   CommitHook
	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[storage.Kind]map[string][]byte)}
}

// NewWithHook creates an empty store that calls hook on every commit.
func NewWithHook(hook CommitHook) *Store {
	s := New()
	s.hook = hook
	return s
}

// Restore applies changes directly, bypassing the commit hook. Used for replay.
func (s *Store) Restore(changes []Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(changes)
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx := &overlayTx{store: s, staged: make(map[storage.Kind]map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}

	changes := tx.changes()
	if len(changes) == 0 {
		return nil
	}

	if s.hook != nil {
		if err := s.hook(changes); err != nil {
			return errors.Wrap(err, "commit hook")
		}
	}

	s.apply(changes)

	return nil
}

// View implements storage.Store.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	return fn(&overlayTx{store: s, readOnly: true})
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *Store) apply(changes []Change) {
	for _, c := range changes {
		bucket, ok := s.data[c.Kind]
		if !ok {
			bucket = make(map[string][]byte)
			s.data[c.Kind] = bucket
		}
		bucket[c.ID] = c.Payload
	}
}

type overlayTx struct {
	store    *Store
	staged   map[storage.Kind]map[string][]byte
	order    []Change
	readOnly bool
}

func (t *overlayTx) Get(kind storage.Kind, id string) ([]byte, bool, error) {
	if payload, ok := t.staged[kind][id]; ok {
		return payload, true, nil
	}

	payload, ok := t.store.data[kind][id]
	return payload, ok, nil
}

func (t *overlayTx) Put(kind storage.Kind, id string, payload []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}

	cp := append([]byte(nil), payload...)

	bucket, ok := t.staged[kind]
	if !ok {
		bucket = make(map[string][]byte)
		t.staged[kind] = bucket
	}
	if _, seen := bucket[id]; !seen {
		t.order = append(t.order, Change{Kind: kind, ID: id})
	}
	bucket[id] = cp

	return nil
}

func (t *overlayTx) Scan(kind storage.Kind, fn func(id string, payload []byte) error) error {
	base := t.store.data[kind]
	staged := t.staged[kind]

	ids := make([]string, 0, len(base)+len(staged))
	for id := range base {
		ids = append(ids, id)
	}
	for id := range staged {
		if _, ok := base[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		payload, ok := staged[id]
		if !ok {
			payload = base[id]
		}
		if err := fn(id, payload); err != nil {
			return err
		}
	}

	return nil
}

// changes returns the final value of every staged key in first-write order.
func (t *overlayTx) changes() []Change {
	out := make([]Change, 0, len(t.order))
	for _, c := range t.order {
		c.Payload = t.staged[c.Kind][c.ID]
		out = append(out, c)
	}

	return out
}
