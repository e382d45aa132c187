package txfill

import (
	"context"
	"fmt"
	"math/big"
)

// GasFillable is the gas estimate for one request, in either fee model.
// The only implementations are LegacyGas and Eip1559Gas.
type GasFillable interface {
	Limit() uint64
	gasFillable()
}

// LegacyGas is an estimate under the single gas price model.
type LegacyGas struct {
	GasLimit uint64
	GasPrice *big.Int
}

func (g LegacyGas) Limit() uint64 { return g.GasLimit }
func (LegacyGas) gasFillable()    {}

// Eip1559Gas is an estimate under the base fee model.
type Eip1559Gas struct {
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (g Eip1559Gas) Limit() uint64 { return g.GasLimit }
func (Eip1559Gas) gasFillable()    {}

// GasFiller estimates the gas limit and fees of a request from the node.
// Values already present on the request are kept.
type GasFiller struct{}

func (GasFiller) Status(req *TxRequest) ControlFlow {
	if req.Gas != nil && (req.hasLegacyFees() || req.hasDynamicFees()) {
		return Finished
	}
	return Ready
}

func (GasFiller) FillSync(*SendableTx) {}

func (GasFiller) Prepare(ctx context.Context, p Provider, req *TxRequest) (Fillable, error) {
	legacy := req.GasPrice != nil
	var baseFee *big.Int
	if !legacy && req.GasFeeCap == nil {
		head, err := p.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, err
		}
		baseFee = head.BaseFee
		legacy = baseFee == nil
	}

	limit, err := gasLimit(ctx, p, req)
	if err != nil {
		return nil, err
	}

	if legacy {
		price := req.GasPrice
		if price == nil {
			if price, err = p.SuggestGasPrice(ctx); err != nil {
				return nil, err
			}
		}
		return LegacyGas{GasLimit: limit, GasPrice: price}, nil
	}

	tip := req.GasTipCap
	if tip == nil {
		if tip, err = p.SuggestGasTipCap(ctx); err != nil {
			return nil, err
		}
	}
	feeCap := req.GasFeeCap
	if feeCap == nil {
		feeCap = new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))
	}
	return Eip1559Gas{GasLimit: limit, MaxFeePerGas: feeCap, MaxPriorityFeePerGas: tip}, nil
}

func gasLimit(ctx context.Context, p Provider, req *TxRequest) (uint64, error) {
	if req.Gas != nil {
		return *req.Gas, nil
	}
	return p.EstimateGas(ctx, req.CallMsg())
}

func (GasFiller) Fill(_ context.Context, params Fillable, tx *SendableTx) (*SendableTx, error) {
	builder := tx.AsMutBuilder()
	if builder == nil {
		return tx, nil
	}
	switch gas := params.(type) {
	case LegacyGas:
		builder.SetGasLimit(gas.GasLimit)
		builder.SetGasPrice(gas.GasPrice)
	case Eip1559Gas:
		builder.SetGasLimit(gas.GasLimit)
		builder.SetMaxFeePerGas(gas.MaxFeePerGas)
		builder.SetMaxPriorityFeePerGas(gas.MaxPriorityFeePerGas)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedFillable, params)
	}
	return tx, nil
}
