package txfill

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ChainIDFiller sets the chain id. The id is read from the node once and
// then served from memory.
type ChainIDFiller struct {
	group singleflight.Group

	mu sync.RWMutex
	id *big.Int
}

// NewChainIDFiller returns a filler that queries the node on first use.
func NewChainIDFiller() *ChainIDFiller {
	return &ChainIDFiller{}
}

// NewFixedChainIDFiller returns a filler that never queries the node.
func NewFixedChainIDFiller(id *big.Int) *ChainIDFiller {
	return &ChainIDFiller{id: new(big.Int).Set(id)}
}

func (f *ChainIDFiller) cached() *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.id
}

func (f *ChainIDFiller) Status(req *TxRequest) ControlFlow {
	if req.ChainID != nil {
		return Finished
	}
	return Ready
}

func (f *ChainIDFiller) FillSync(tx *SendableTx) {
	builder := tx.AsMutBuilder()
	if builder == nil || builder.ChainID != nil {
		return
	}
	if id := f.cached(); id != nil {
		builder.SetChainID(id)
	}
}

func (f *ChainIDFiller) Prepare(ctx context.Context, p Provider, _ *TxRequest) (Fillable, error) {
	if id := f.cached(); id != nil {
		return id, nil
	}
	v, err, _ := f.group.Do("chainid", func() (interface{}, error) {
		id, err := p.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.id = id
		f.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

func (f *ChainIDFiller) Fill(_ context.Context, params Fillable, tx *SendableTx) (*SendableTx, error) {
	builder := tx.AsMutBuilder()
	if builder == nil {
		return tx, nil
	}
	id, ok := params.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedFillable, params)
	}
	builder.SetChainID(id)
	return tx, nil
}
