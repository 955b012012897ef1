// Package chain reads instrument events from an Ethereum JSON-RPC node and
// decodes them into domain events.
package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/depositledger/internal/domain"
)

var (
	// ErrUnknownEvent is returned for logs from unknown emitters or with unknown topics.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrRemovedLog is returned for logs dropped by a reorg.
	ErrRemovedLog = errors.New("removed log")
)

// Decoder maps raw logs to domain events.
type Decoder struct {
	abi   abi.ABI
	addrs domain.Addresses
}

// NewDecoder creates a decoder for the instrument contracts in addrs.
func NewDecoder(addrs domain.Addresses) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(eventsABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse events abi")
	}

	return &Decoder{abi: parsed, addrs: addrs}, nil
}

// Topics returns topic0 of every decodable event.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.abi.Events))
	for _, name := range []string{
		eventTransfer, eventApproval, eventDeposit, eventWithdraw,
		eventRedeemRequest, eventFulfilled, eventRecalculateNAV,
	} {
		out = append(out, d.abi.Events[name].ID)
	}

	return out
}

// Decode converts a log emitted in a block with timestamp blockTime.
func (d *Decoder) Decode(lg types.Log, blockTime uint64) (domain.Event, error) {
	if lg.Removed {
		return nil, errors.Wrapf(ErrRemovedLog, "tx %s log %d", lg.TxHash.Hex(), lg.Index)
	}

	src, ok := d.addrs.SourceOf(lg.Address)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEvent, "emitter %s", lg.Address.Hex())
	}
	if len(lg.Topics) == 0 {
		return nil, errors.Wrap(ErrUnknownEvent, "anonymous log")
	}

	ev, err := d.abi.EventByID(lg.Topics[0])
	if err != nil || !accepted[src][ev.Name] {
		return nil, errors.Wrapf(ErrUnknownEvent, "topic %s from %s", lg.Topics[0].Hex(), src)
	}

	fields := make(map[string]any, len(ev.Inputs))
	if err := ev.Inputs.UnpackIntoMap(fields, lg.Data); err != nil {
		return nil, errors.Wrapf(err, "unpack %s data", ev.Name)
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, errors.Wrapf(err, "parse %s topics", ev.Name)
	}

	m := domain.Meta{
		Source:      src,
		Contract:    lg.Address,
		BlockNumber: lg.BlockNumber,
		Timestamp:   blockTime,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}
	f := args(fields)

	switch ev.Name {
	case eventTransfer:
		out := domain.Transfer{Meta: m, From: f.address("from"), To: f.address("to")}
		out.Amount.Set(f.number("value"))
		return out, f.err
	case eventApproval:
		out := domain.Approval{Meta: m, Owner: f.address("owner"), Spender: f.address("spender")}
		out.Amount.Set(f.number("value"))
		return out, f.err
	case eventDeposit:
		out := domain.Deposit{Meta: m, Owner: f.address("owner")}
		out.Assets.Set(f.number("assets"))
		out.Shares.Set(f.number("shares"))
		return out, f.err
	case eventWithdraw:
		out := domain.Withdraw{Meta: m, Owner: f.address("owner")}
		out.Assets.Set(f.number("assets"))
		out.Shares.Set(f.number("shares"))
		return out, f.err
	case eventRedeemRequest:
		out := domain.RedeemRequest{Meta: m, Owner: f.address("owner")}
		out.Shares.Set(f.number("shares"))
		return out, f.err
	case eventFulfilled:
		out := domain.FulfilledRedeemRequests{Meta: m}
		out.Shares.Set(f.number("shares"))
		out.Assets.Set(f.number("assets"))
		return out, f.err
	case eventRecalculateNAV:
		out := domain.RecalculatedNAV{Meta: m}
		out.NAV.Set(f.number("navValue"))
		out.SharePrice.Set(f.number("shareToAssetPrice"))
		return out, f.err
	}

	return nil, errors.Wrapf(ErrUnknownEvent, "event %s", ev.Name)
}

// argReader extracts typed values from an unpacked map, keeping the first error.
type argReader struct {
	fields map[string]any
	err    error
}

func args(fields map[string]any) *argReader {
	return &argReader{fields: fields}
}

func (a *argReader) address(name string) common.Address {
	v, ok := a.fields[name].(common.Address)
	if !ok && a.err == nil {
		a.err = errors.Errorf("argument %q is not an address", name)
	}

	return v
}

func (a *argReader) number(name string) *uint256.Int {
	v, ok := a.fields[name].(*big.Int)
	if !ok {
		if a.err == nil {
			a.err = errors.Errorf("argument %q is not a uint256", name)
		}
		return new(uint256.Int)
	}

	out, overflow := uint256.FromBig(v)
	if overflow && a.err == nil {
		a.err = errors.Errorf("argument %q overflows uint256", name)
	}

	return out
}
