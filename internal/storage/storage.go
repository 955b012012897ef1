// Package storage defines the key-value collaborator the engine persists entities through.
//
// A store holds JSON payloads addressed by (kind, id). All writes of one event
// go through a single Update call and become visible together or not at all.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by typed loaders when an entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Kind namespaces entity ids.
type Kind string

const (
	KindWallet      Kind = "wallet"
	KindProtocol    Kind = "protocol"
	KindCorrelation Kind = "correlation"
	KindMarker      Kind = "marker"
	KindSnapshot    Kind = "snapshot"
	KindRedemption  Kind = "redemption"
	KindTransfer    Kind = "transfer"
	KindApproval    Kind = "approval"
	KindDeposit     Kind = "deposit"
	KindWithdrawal  Kind = "withdrawal"
	KindNAVUpdate   Kind = "nav_update"
	KindFulfillment Kind = "fulfillment"
	KindCheckpoint  Kind = "checkpoint"
)

// Tx is a view of the store inside one transaction.
type Tx interface {
	// Get returns the payload stored under kind/id and whether it exists.
	Get(kind Kind, id string) ([]byte, bool, error)
	// Put upserts a payload.
	Put(kind Kind, id string, payload []byte) error
	// Scan calls fn for every entity of a kind in ascending id order. Returning an error stops the scan.
	Scan(kind Kind, fn func(id string, payload []byte) error) error
}

// Store opens transactions.
type Store interface {
	// Update runs fn in a read-write transaction, committing if fn returns nil.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// ErrReadOnly is returned by Put inside View.
var ErrReadOnly = errors.New("read-only transaction")
