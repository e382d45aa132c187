package txfill

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is a transaction that is still being built. Nil fields are
// unset and may be filled by the pipeline.
type TxRequest struct {
	From    common.Address
	To      *common.Address
	Value   *big.Int
	Data    []byte
	Nonce   *uint64
	ChainID *big.Int

	Gas       *uint64
	GasPrice  *big.Int // legacy
	GasFeeCap *big.Int // eip-1559 max fee per gas
	GasTipCap *big.Int // eip-1559 max priority fee per gas
}

type txRequestJSON struct {
	From      common.Address  `json:"from"`
	To        *common.Address `json:"to,omitempty"`
	Value     *hexutil.Big    `json:"value,omitempty"`
	Data      hexutil.Bytes   `json:"input,omitempty"`
	Nonce     *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID   *hexutil.Big    `json:"chainId,omitempty"`
	Gas       *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice  *hexutil.Big    `json:"gasPrice,omitempty"`
	GasFeeCap *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	GasTipCap *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

// MarshalJSON encodes the request in the RPC field naming.
func (r *TxRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(&txRequestJSON{
		From:      r.From,
		To:        r.To,
		Value:     (*hexutil.Big)(r.Value),
		Data:      r.Data,
		Nonce:     (*hexutil.Uint64)(r.Nonce),
		ChainID:   (*hexutil.Big)(r.ChainID),
		Gas:       (*hexutil.Uint64)(r.Gas),
		GasPrice:  (*hexutil.Big)(r.GasPrice),
		GasFeeCap: (*hexutil.Big)(r.GasFeeCap),
		GasTipCap: (*hexutil.Big)(r.GasTipCap),
	})
}

func (r *TxRequest) SetGasLimit(gas uint64) { r.Gas = &gas }

func (r *TxRequest) SetGasPrice(price *big.Int) { r.GasPrice = new(big.Int).Set(price) }

func (r *TxRequest) SetMaxFeePerGas(fee *big.Int) { r.GasFeeCap = new(big.Int).Set(fee) }

func (r *TxRequest) SetMaxPriorityFeePerGas(fee *big.Int) { r.GasTipCap = new(big.Int).Set(fee) }

func (r *TxRequest) SetNonce(nonce uint64) { r.Nonce = &nonce }

func (r *TxRequest) SetChainID(id *big.Int) { r.ChainID = new(big.Int).Set(id) }

// hasLegacyFees reports whether the legacy fee model is complete.
func (r *TxRequest) hasLegacyFees() bool {
	return r.GasPrice != nil
}

// hasDynamicFees reports whether the eip-1559 fee pair is complete.
func (r *TxRequest) hasDynamicFees() bool {
	return r.GasFeeCap != nil && r.GasTipCap != nil
}

// CallMsg converts the request into a message suitable for gas estimation.
func (r *TxRequest) CallMsg() ethereum.CallMsg {
	msg := ethereum.CallMsg{
		From:      r.From,
		To:        r.To,
		Value:     r.Value,
		Data:      r.Data,
		GasPrice:  r.GasPrice,
		GasFeeCap: r.GasFeeCap,
		GasTipCap: r.GasTipCap,
	}
	if r.Gas != nil {
		msg.Gas = *r.Gas
	}
	return msg
}

// TxData builds the consensus transaction payload. A request carrying a fee
// cap becomes a dynamic fee transaction, anything else a legacy one. Unset
// numeric fields are zero.
func (r *TxRequest) TxData() types.TxData {
	var (
		nonce uint64
		gas   uint64
		value = new(big.Int)
	)
	if r.Nonce != nil {
		nonce = *r.Nonce
	}
	if r.Gas != nil {
		gas = *r.Gas
	}
	if r.Value != nil {
		value.Set(r.Value)
	}
	if r.GasFeeCap != nil {
		tip := new(big.Int)
		if r.GasTipCap != nil {
			tip.Set(r.GasTipCap)
		}
		chainID := new(big.Int)
		if r.ChainID != nil {
			chainID.Set(r.ChainID)
		}
		return &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: new(big.Int).Set(r.GasFeeCap),
			Gas:       gas,
			To:        r.To,
			Value:     value,
			Data:      common.CopyBytes(r.Data),
		}
	}
	price := new(big.Int)
	if r.GasPrice != nil {
		price.Set(r.GasPrice)
	}
	return &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       r.To,
		Value:    value,
		Data:     common.CopyBytes(r.Data),
	}
}

// SendableTx is the unit passed along the pipeline: a request still being
// built, or an envelope that is already signed and ready to broadcast.
type SendableTx struct {
	builder  *TxRequest
	envelope *types.Transaction
}

// NewBuilderTx wraps a buildable request.
func NewBuilderTx(req *TxRequest) *SendableTx {
	return &SendableTx{builder: req}
}

// NewEnvelopeTx wraps a finalized transaction.
func NewEnvelopeTx(tx *types.Transaction) *SendableTx {
	return &SendableTx{envelope: tx}
}

// AsMutBuilder returns the request under construction, or nil once the
// transaction has been finalized.
func (s *SendableTx) AsMutBuilder() *TxRequest {
	if s.envelope != nil {
		return nil
	}
	return s.builder
}

// Envelope returns the finalized transaction, if any.
func (s *SendableTx) Envelope() *types.Transaction {
	return s.envelope
}

// IsEnvelope reports whether the transaction is ready to send.
func (s *SendableTx) IsEnvelope() bool {
	return s.envelope != nil
}
