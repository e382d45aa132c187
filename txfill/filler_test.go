package txfill

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ethAPI is a minimal eth namespace backing an in-process rpc server.
type ethAPI struct {
	mu sync.Mutex

	chainID  *big.Int
	latest   uint64
	pending  uint64
	gas      uint64
	gasPrice *big.Int
	tipCap   *big.Int
	baseFee  *big.Int

	countCalls int
	sent       []*types.Transaction
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.chainID)
}

func (api *ethAPI) GetTransactionCount(_ common.Address, number rpc.BlockNumber) hexutil.Uint64 {
	api.mu.Lock()
	defer api.mu.Unlock()

	api.countCalls++
	if number == rpc.PendingBlockNumber {
		return hexutil.Uint64(api.pending)
	}
	return hexutil.Uint64(api.latest)
}

func (api *ethAPI) EstimateGas(map[string]interface{}) hexutil.Uint64 {
	return hexutil.Uint64(api.gas)
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(api.gasPrice)
}

func (api *ethAPI) MaxPriorityFeePerGas() *hexutil.Big {
	return (*hexutil.Big)(api.tipCap)
}

func (api *ethAPI) GetBlockByNumber(number rpc.BlockNumber, _ bool) *types.Header {
	return &types.Header{
		Number:     big.NewInt(1000),
		Difficulty: big.NewInt(0),
		GasLimit:   30000000,
		BaseFee:    api.baseFee,
	}
}

func (api *ethAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	api.mu.Lock()
	api.sent = append(api.sent, tx)
	api.mu.Unlock()
	return tx.Hash(), nil
}

func newTestClient(t *testing.T, api *ethAPI) *ethclient.Client {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", api))
	client := ethclient.NewClient(rpc.DialInProc(server))
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func newLondonAPI() *ethAPI {
	return &ethAPI{
		chainID:  big.NewInt(128),
		latest:   5,
		pending:  8,
		gas:      100000,
		gasPrice: big.NewInt(2e9),
		tipCap:   big.NewInt(1e9),
		baseFee:  big.NewInt(7e9),
	}
}

func TestPipelineSignsDynamicFeeTx(t *testing.T) {
	key, _ := crypto.GenerateKey()
	from := crypto.PubkeyToAddress(key.PublicKey)
	api := newLondonAPI()
	client := newTestClient(t, api)

	cfg := testConfig
	cfg.Account = from
	pipeline := Pipeline{
		NewChainIDFiller(),
		NewNonceFiller(),
		NewDynamicGasFiller(cfg),
		NewSignerFiller(key),
	}

	to := common.HexToAddress("0xe244fc5ba65bf70a84b9966579e105c5c57429c5")
	tx, err := pipeline.Fill(context.Background(), client, &TxRequest{From: from, To: &to, Value: big.NewInt(1)})
	require.NoError(t, err)
	require.True(t, tx.IsEnvelope())
	require.Nil(t, tx.AsMutBuilder())

	signed := tx.Envelope()
	assert.Equal(t, uint8(types.DynamicFeeTxType), signed.Type())
	assert.Equal(t, uint64(8), signed.Nonce())
	assert.Equal(t, uint64(125000), signed.Gas())
	assert.Equal(t, FloorFeePerGas(), signed.GasFeeCap())
	assert.Equal(t, FloorFeePerGas(), signed.GasTipCap())
	assert.Equal(t, big.NewInt(128), signed.ChainId())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(128)), signed)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	require.NoError(t, client.SendTransaction(context.Background(), signed))
	require.Len(t, api.sent, 1)
	assert.Equal(t, signed.Hash(), api.sent[0].Hash())
}

func TestPipelineLegacyChain(t *testing.T) {
	api := newLondonAPI()
	api.baseFee = nil
	client := newTestClient(t, api)

	from := testConfig.Account
	pipeline := Pipeline{NewChainIDFiller(), NewNonceFiller(), NewDynamicGasFiller(testConfig)}
	tx, err := pipeline.Fill(context.Background(), client, &TxRequest{From: from})
	require.NoError(t, err)

	req := tx.AsMutBuilder()
	require.NotNil(t, req)
	assert.Equal(t, uint64(125000), *req.Gas)
	assert.Equal(t, FloorFeePerGas(), req.GasPrice)
	assert.Nil(t, req.GasFeeCap)
	assert.Equal(t, uint64(8), *req.Nonce)
	assert.Equal(t, big.NewInt(128), req.ChainID)

	_, ok := req.TxData().(*types.LegacyTx)
	assert.True(t, ok)
}

func TestPipelineSkipsFinishedFillers(t *testing.T) {
	api := newLondonAPI()
	client := newTestClient(t, api)

	gas, nonce := uint64(50000), uint64(3)
	req := &TxRequest{
		From:     testConfig.Account,
		Nonce:    &nonce,
		ChainID:  big.NewInt(1),
		Gas:      &gas,
		GasPrice: big.NewInt(9),
	}
	pipeline := Pipeline{NewChainIDFiller(), NewNonceFiller(), NewDynamicGasFiller(testConfig)}
	tx, err := pipeline.Fill(context.Background(), client, req)
	require.NoError(t, err)

	assert.Same(t, req, tx.AsMutBuilder())
	assert.Equal(t, uint64(50000), *req.Gas)
	assert.Equal(t, big.NewInt(9), req.GasPrice)
	assert.Equal(t, big.NewInt(1), req.ChainID)
	assert.Zero(t, api.countCalls)
}

func TestPipelineMissingProperties(t *testing.T) {
	key, _ := crypto.GenerateKey()
	client := newTestClient(t, newLondonAPI())

	pipeline := Pipeline{NewChainIDFiller(), NewNonceFiller(), NewDynamicGasFiller(testConfig), NewSignerFiller(key)}
	_, err := pipeline.Fill(context.Background(), client, &TxRequest{From: common.Address{0xaa}})
	require.ErrorIs(t, err, ErrMissingProperties)
}

// recordingFiller counts how often the pipeline reaches it.
type recordingFiller struct {
	syncCalls, prepareCalls int
}

func (f *recordingFiller) Status(*TxRequest) ControlFlow { return Ready }
func (f *recordingFiller) FillSync(*SendableTx)        { f.syncCalls++ }
func (f *recordingFiller) Prepare(context.Context, Provider, *TxRequest) (Fillable, error) {
	f.prepareCalls++
	return nil, nil
}
func (f *recordingFiller) Fill(_ context.Context, _ Fillable, tx *SendableTx) (*SendableTx, error) {
	return tx, nil
}

func TestPipelineStopsAfterEnvelope(t *testing.T) {
	key, _ := crypto.GenerateKey()
	from := crypto.PubkeyToAddress(key.PublicKey)
	client := newTestClient(t, newLondonAPI())

	after := new(recordingFiller)
	pipeline := Pipeline{NewChainIDFiller(), NewNonceFiller(), NewDynamicGasFiller(testConfig), NewSignerFiller(key), after}
	tx, err := pipeline.Fill(context.Background(), client, &TxRequest{From: from})
	require.NoError(t, err)
	require.True(t, tx.IsEnvelope())
	assert.Equal(t, 1, after.syncCalls)
	assert.Zero(t, after.prepareCalls)
}

func TestPipelineTransportError(t *testing.T) {
	p := newTestProvider()
	p.pendingErr = errTransport

	pipeline := Pipeline{NewFixedChainIDFiller(big.NewInt(1)), NewDynamicGasFiller(testConfig)}
	_, err := pipeline.Fill(context.Background(), p, &TxRequest{})
	require.Equal(t, errTransport, err)
}

func TestControlFlowString(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "missing", Missing.String())
	assert.Equal(t, "finished", Finished.String())
}
