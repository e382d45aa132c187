// Package txfill prepares transactions for signing through an ordered list
// of fillers, each one responsible for a group of fields.
package txfill

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

var (
	// ErrMissingProperties is returned when a filler cannot run because
	// fields it depends on are unset.
	ErrMissingProperties = errors.New("transaction is missing required properties")

	// ErrUnexpectedFillable is returned when Fill receives parameters that
	// were not produced by the same filler's Prepare.
	ErrUnexpectedFillable = errors.New("unexpected fillable parameters")
)

// ControlFlow tells the pipeline what a filler wants to do with a request.
type ControlFlow int

const (
	// Ready means the filler can run.
	Ready ControlFlow = iota
	// Missing means prerequisites are unset and the filler cannot run.
	Missing
	// Finished means the fields are already populated.
	Finished
)

func (c ControlFlow) String() string {
	switch c {
	case Ready:
		return "ready"
	case Missing:
		return "missing"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("ControlFlow(%d)", int(c))
	}
}

// Fillable carries the values computed by Prepare into Fill.
type Fillable interface{}

// TxFiller fills a group of transaction fields. Prepare does the network
// work, Fill applies the result. Fill must leave finalized transactions
// untouched.
type TxFiller interface {
	Status(req *TxRequest) ControlFlow
	FillSync(tx *SendableTx)
	Prepare(ctx context.Context, p Provider, req *TxRequest) (Fillable, error)
	Fill(ctx context.Context, params Fillable, tx *SendableTx) (*SendableTx, error)
}

// Releaser is implemented by fillers whose Prepare reserves state that
// must be handed back when a later step of the same pass fails.
type Releaser interface {
	Release(req *TxRequest, params Fillable)
}

type reservation struct {
	releaser Releaser
	params   Fillable
}

// Pipeline runs fillers in order over a single transaction.
type Pipeline []TxFiller

// Fill runs every filler over the request and returns the resulting
// transaction, which is an envelope if a signing filler was included. On
// failure every reservation made earlier in the pass is released, latest
// first.
func (fillers Pipeline) Fill(ctx context.Context, p Provider, req *TxRequest) (*SendableTx, error) {
	var reserved []reservation
	tx, err := fillers.fill(ctx, p, req, &reserved)
	if err != nil {
		for i := len(reserved) - 1; i >= 0; i-- {
			reserved[i].releaser.Release(req, reserved[i].params)
		}
		return nil, err
	}
	return tx, nil
}

func (fillers Pipeline) fill(ctx context.Context, p Provider, req *TxRequest, reserved *[]reservation) (*SendableTx, error) {
	tx := NewBuilderTx(req)
	for i, f := range fillers {
		f.FillSync(tx)

		builder := tx.AsMutBuilder()
		if builder == nil {
			break
		}
		switch f.Status(builder) {
		case Finished:
			log.Trace("Filler finished, skipping", "index", i, "filler", fmt.Sprintf("%T", f))
			continue
		case Missing:
			return nil, fmt.Errorf("%w: %T", ErrMissingProperties, f)
		}

		params, err := f.Prepare(ctx, p, builder)
		if err != nil {
			return nil, err
		}
		if r, ok := f.(Releaser); ok {
			*reserved = append(*reserved, reservation{releaser: r, params: params})
		}
		if tx, err = f.Fill(ctx, params, tx); err != nil {
			return nil, err
		}
	}
	return tx, nil
}
