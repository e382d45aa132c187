package txfill

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceFiller assigns nonces from the node's pending count. It remembers
// the highest nonce it handed out per account so requests prepared in
// quick succession, before the first reaches the mempool, do not collide.
// A nonce reserved by Prepare is handed back by Release when the pipeline
// pass fails, unless a later nonce was handed out in the meantime; in that
// case the gap stays until Reset.
type NonceFiller struct {
	mu     sync.Mutex
	nonces map[common.Address]uint64 // next nonce to hand out
}

func NewNonceFiller() *NonceFiller {
	return &NonceFiller{nonces: make(map[common.Address]uint64)}
}

func (f *NonceFiller) Status(req *TxRequest) ControlFlow {
	if req.Nonce != nil {
		return Finished
	}
	return Ready
}

func (f *NonceFiller) FillSync(*SendableTx) {}

func (f *NonceFiller) Prepare(ctx context.Context, p Provider, req *TxRequest) (Fillable, error) {
	pending, err := TransactionCount(ctx, p, req.From, PendingBlock)
	if err != nil {
		return nil, err
	}
	return f.next(req.From, pending), nil
}

func (f *NonceFiller) next(account common.Address, pending uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	nonce := pending
	if local, ok := f.nonces[account]; ok && local > pending {
		nonce = local
	}
	f.nonces[account] = nonce + 1
	return nonce
}

func (f *NonceFiller) Fill(_ context.Context, params Fillable, tx *SendableTx) (*SendableTx, error) {
	builder := tx.AsMutBuilder()
	if builder == nil {
		return tx, nil
	}
	nonce, ok := params.(uint64)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedFillable, params)
	}
	builder.SetNonce(nonce)
	return tx, nil
}

// Release returns the nonce reserved for req.From if it is still the most
// recent one handed out.
func (f *NonceFiller) Release(req *TxRequest, params Fillable) {
	nonce, ok := params.(uint64)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if next, ok := f.nonces[req.From]; ok && next == nonce+1 {
		f.nonces[req.From] = nonce
	}
}

// Reset forgets the locally tracked nonce of an account, e.g. after a
// transaction was dropped.
func (f *NonceFiller) Reset(account common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nonces, account)
}
