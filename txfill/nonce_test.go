package txfill

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestNonceFillerHighWaterMark(t *testing.T) {
	p := newTestProvider()
	p.pending = 4
	f := NewNonceFiller()
	from := common.Address{1}

	var nonces []uint64
	for i := 0; i < 3; i++ {
		req := &TxRequest{From: from}
		params, err := f.Prepare(context.Background(), p, req)
		require.NoError(t, err)
		_, err = f.Fill(context.Background(), params, NewBuilderTx(req))
		require.NoError(t, err)
		nonces = append(nonces, *req.Nonce)
	}
	require.Equal(t, []uint64{4, 5, 6}, nonces)

	// node caught up past the local mark
	p.pending = 10
	params, err := f.Prepare(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	require.Equal(t, uint64(10), params)

	f.Reset(from)
	p.pending = 2
	params, err = f.Prepare(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	require.Equal(t, uint64(2), params)

	// other accounts are tracked separately
	params, err = f.Prepare(context.Background(), p, &TxRequest{From: common.Address{2}})
	require.NoError(t, err)
	require.Equal(t, uint64(2), params)
}

func TestNonceFillerConcurrent(t *testing.T) {
	p := newTestProvider()
	f := NewNonceFiller()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]bool)
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			params, err := f.Prepare(context.Background(), p, &TxRequest{})
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[params.(uint64)] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 50)
}

func TestNonceFillerStatus(t *testing.T) {
	f := NewNonceFiller()
	nonce := uint64(1)
	require.Equal(t, Ready, f.Status(&TxRequest{}))
	require.Equal(t, Finished, f.Status(&TxRequest{Nonce: &nonce}))
}

func TestChainIDFillerCaches(t *testing.T) {
	p := newTestProvider()
	f := NewChainIDFiller()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.Prepare(context.Background(), p, &TxRequest{})
			if err != nil {
				t.Error(err)
				return
			}
			if id.(*big.Int).Cmp(big.NewInt(128)) != 0 {
				t.Errorf("chain id mismatch: %v", id)
			}
		}()
	}
	wg.Wait()

	// later requests are filled synchronously
	req := &TxRequest{}
	f.FillSync(NewBuilderTx(req))
	require.Equal(t, big.NewInt(128), req.ChainID)
	require.Equal(t, Finished, f.Status(req))

	before := atomic.LoadInt32(&p.chainIDCalls)
	_, err := f.Prepare(context.Background(), p, &TxRequest{})
	require.NoError(t, err)
	require.Equal(t, before, atomic.LoadInt32(&p.chainIDCalls))
}

func TestFixedChainIDFiller(t *testing.T) {
	p := newTestProvider()
	f := NewFixedChainIDFiller(big.NewInt(256))

	req := &TxRequest{}
	tx := NewBuilderTx(req)
	f.FillSync(tx)
	require.Equal(t, big.NewInt(256), req.ChainID)
	require.Zero(t, p.chainIDCalls)
}

func TestNonceReleasedOnFailedPass(t *testing.T) {
	p := newTestProvider()
	p.pending = 8
	from := testConfig.Account
	nonces := NewNonceFiller()
	pipeline := Pipeline{nonces, NewDynamicGasFiller(testConfig)}

	p.latestErr = errTransport
	_, err := pipeline.Fill(context.Background(), p, &TxRequest{From: from})
	require.Equal(t, errTransport, err)

	p.latestErr = nil
	tx, err := pipeline.Fill(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	require.Equal(t, uint64(8), *tx.AsMutBuilder().Nonce)

	tx, err = pipeline.Fill(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	require.Equal(t, uint64(9), *tx.AsMutBuilder().Nonce)
}

func TestNonceReleaseKeepsLaterReservations(t *testing.T) {
	p := newTestProvider()
	p.pending = 3
	from := common.Address{1}
	f := NewNonceFiller()

	first, err := f.Prepare(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	_, err = f.Prepare(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)

	// 4 is still held, so 3 cannot be handed back
	f.Release(&TxRequest{From: from}, first)
	next, err := f.Prepare(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	require.Equal(t, uint64(5), next)

	f.Release(&TxRequest{From: from}, next)
	next, err = f.Prepare(context.Background(), p, &TxRequest{From: from})
	require.NoError(t, err)
	require.Equal(t, uint64(5), next)
}
