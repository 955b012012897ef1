package storage

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/depositledger/internal/domain"
)

const (
	checkpointID = "head"
	cursorID     = "cursor"
)

// Repo is a typed JSON view over a Tx.
type Repo struct {
	tx Tx
}

// NewRepo wraps a transaction.
func NewRepo(tx Tx) *Repo {
	return &Repo{tx: tx}
}

func (r *Repo) load(kind Kind, id string, v any) error {
	payload, ok, err := r.tx.Get(kind, id)
	if err != nil {
		return errors.Wrapf(err, "get %s %s", kind, id)
	}
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrapf(err, "decode %s %s", kind, id)
	}

	return nil
}

func (r *Repo) save(kind Kind, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s %s", kind, id)
	}
	if err := r.tx.Put(kind, id, payload); err != nil {
		return errors.Wrapf(err, "put %s %s", kind, id)
	}

	return nil
}

func (r *Repo) exists(kind Kind, id string) (bool, error) {
	_, ok, err := r.tx.Get(kind, id)
	if err != nil {
		return false, errors.Wrapf(err, "get %s %s", kind, id)
	}

	return ok, nil
}

// Wallet loads a wallet or returns ErrNotFound.
func (r *Repo) Wallet(id string) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.load(KindWallet, id, &w); err != nil {
		return nil, err
	}

	return &w, nil
}

// SaveWallet upserts a wallet.
func (r *Repo) SaveWallet(w *domain.Wallet) error {
	return r.save(KindWallet, w.ID, w)
}

// Wallets returns every stored wallet in id order.
func (r *Repo) Wallets() ([]*domain.Wallet, error) {
	var out []*domain.Wallet
	err := r.tx.Scan(KindWallet, func(id string, payload []byte) error {
		var w domain.Wallet
		if err := json.Unmarshal(payload, &w); err != nil {
			return errors.Wrapf(err, "decode wallet %s", id)
		}
		out = append(out, &w)
		return nil
	})

	return out, err
}

// Protocol loads the aggregates singleton, returning a zeroed one if absent.
func (r *Repo) Protocol() (*domain.ProtocolAggregates, error) {
	var p domain.ProtocolAggregates
	err := r.load(KindProtocol, domain.ProtocolID, &p)
	if errors.Is(err, ErrNotFound) {
		return domain.NewProtocolAggregates(), nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// SaveProtocol upserts the aggregates singleton.
func (r *Repo) SaveProtocol(p *domain.ProtocolAggregates) error {
	return r.save(KindProtocol, domain.ProtocolID, p)
}

// Correlation loads the correlation record of a transaction or returns ErrNotFound.
func (r *Repo) Correlation(id string) (*domain.TransactionCorrelationRecord, error) {
	var c domain.TransactionCorrelationRecord
	if err := r.load(KindCorrelation, id, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

// SaveCorrelation upserts a correlation record.
func (r *Repo) SaveCorrelation(c *domain.TransactionCorrelationRecord) error {
	return r.save(KindCorrelation, c.ID(), c)
}

// HasMarker reports whether a processed marker exists.
func (r *Repo) HasMarker(id string) (bool, error) {
	return r.exists(KindMarker, id)
}

// SaveMarker stores a processed marker.
func (r *Repo) SaveMarker(m *domain.ProcessedMarker) error {
	return r.save(KindMarker, m.ID(), m)
}

// SaveSnapshot writes a snapshot, replacing one with the same wallet and timestamp.
func (r *Repo) SaveSnapshot(s *domain.WalletSnapshot) error {
	return r.save(KindSnapshot, s.ID(), s)
}

// Snapshot loads a snapshot or returns ErrNotFound.
func (r *Repo) Snapshot(wallet string, timestamp uint64) (*domain.WalletSnapshot, error) {
	var s domain.WalletSnapshot
	if err := r.load(KindSnapshot, domain.SnapshotID(wallet, timestamp), &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// Snapshots returns the time series of a wallet in timestamp order.
func (r *Repo) Snapshots(wallet string) ([]*domain.WalletSnapshot, error) {
	var out []*domain.WalletSnapshot
	err := r.tx.Scan(KindSnapshot, func(id string, payload []byte) error {
		var s domain.WalletSnapshot
		if err := json.Unmarshal(payload, &s); err != nil {
			return errors.Wrapf(err, "decode snapshot %s", id)
		}
		if s.Wallet == wallet {
			out = append(out, &s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	return out, nil
}

// Redemption loads a redemption request or returns ErrNotFound.
func (r *Repo) Redemption(id string) (*domain.RedemptionRequest, error) {
	var req domain.RedemptionRequest
	if err := r.load(KindRedemption, id, &req); err != nil {
		return nil, err
	}

	return &req, nil
}

// SaveRedemption upserts a redemption request.
func (r *Repo) SaveRedemption(req *domain.RedemptionRequest) error {
	return r.save(KindRedemption, req.ID, req)
}

// UnfulfilledRedemptions returns open requests in FIFO order.
func (r *Repo) UnfulfilledRedemptions() ([]*domain.RedemptionRequest, error) {
	var out []*domain.RedemptionRequest
	err := r.tx.Scan(KindRedemption, func(id string, payload []byte) error {
		var req domain.RedemptionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return errors.Wrapf(err, "decode redemption %s", id)
		}
		if !req.Fulfilled {
			out = append(out, &req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	return out, nil
}

// SaveTransfer appends a transfer audit record.
func (r *Repo) SaveTransfer(rec *domain.TransferRecord) error {
	return r.save(KindTransfer, rec.ID, rec)
}

// SaveApproval appends an approval audit record.
func (r *Repo) SaveApproval(rec *domain.ApprovalRecord) error {
	return r.save(KindApproval, rec.ID, rec)
}

// SaveDeposit appends a deposit audit record.
func (r *Repo) SaveDeposit(rec *domain.DepositRecord) error {
	return r.save(KindDeposit, rec.ID, rec)
}

// SaveWithdrawal appends a withdrawal audit record.
func (r *Repo) SaveWithdrawal(rec *domain.WithdrawalRecord) error {
	return r.save(KindWithdrawal, rec.ID, rec)
}

// SaveNAVUpdate appends a NAV audit record.
func (r *Repo) SaveNAVUpdate(rec *domain.NAVUpdateRecord) error {
	return r.save(KindNAVUpdate, rec.ID, rec)
}

// SaveFulfillment appends a fulfillment audit record.
func (r *Repo) SaveFulfillment(rec *domain.FulfillmentRecord) error {
	return r.save(KindFulfillment, rec.ID, rec)
}

// Transfer loads a transfer audit record or returns ErrNotFound.
func (r *Repo) Transfer(id string) (*domain.TransferRecord, error) {
	var rec domain.TransferRecord
	if err := r.load(KindTransfer, id, &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Fulfillment loads a fulfillment audit record or returns ErrNotFound.
func (r *Repo) Fulfillment(id string) (*domain.FulfillmentRecord, error) {
	var rec domain.FulfillmentRecord
	if err := r.load(KindFulfillment, id, &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Checkpoint returns the last processed block and whether one was stored.
func (r *Repo) Checkpoint() (uint64, bool, error) {
	var c domain.Checkpoint
	err := r.load(KindCheckpoint, checkpointID, &c)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return c.BlockNumber, true, nil
}

// SaveCheckpoint stores the last processed block.
func (r *Repo) SaveCheckpoint(block uint64) error {
	return r.save(KindCheckpoint, checkpointID, &domain.Checkpoint{BlockNumber: block})
}

// Cursor returns the position of the last applied event and whether one was stored.
func (r *Repo) Cursor() (domain.Cursor, bool, error) {
	var c domain.Cursor
	err := r.load(KindCheckpoint, cursorID, &c)
	if errors.Is(err, ErrNotFound) {
		return domain.Cursor{}, false, nil
	}
	if err != nil {
		return domain.Cursor{}, false, err
	}

	return c, true, nil
}

// SaveCursor stores the position of the last applied event.
func (r *Repo) SaveCursor(c domain.Cursor) error {
	return r.save(KindCheckpoint, cursorID, &c)
}

// Count returns the number of entities of a kind.
func (r *Repo) Count(kind Kind) (int, error) {
	n := 0
	err := r.tx.Scan(kind, func(string, []byte) error {
		n++
		return nil
	})

	return n, err
}
