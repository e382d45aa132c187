package txfill

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"golang.org/x/sync/errgroup"
)

var floorFeePerGas = big.NewInt(30 * params.GWei)

// FloorFeePerGas returns the fee written by DynamicGasFiller for every fee
// field, in wei.
func FloorFeePerGas() *big.Int {
	return new(big.Int).Set(floorFeePerGas)
}

// DefaultDynamicGasConfig contains the default settings for the dynamic
// gas policy. Account is left empty.
var DefaultDynamicGasConfig = DynamicGasConfig{
	GasLimitFactor:    0.2,
	GasIncreaseFactor: 0.1,
	MaxGasMultiplier:  2.0,
}

// DynamicGasConfig configures DynamicGasFiller.
type DynamicGasConfig struct {
	GasLimitFactor    float64        `toml:",omitempty"` // fraction added to the estimated gas limit
	GasIncreaseFactor float64        `toml:",omitempty"` // multiplier increment per unconfirmed transaction
	MaxGasMultiplier  float64        `toml:",omitempty"` // upper bound of the multiplier
	Account           common.Address `toml:",omitempty"` // account whose backlog drives the multiplier
}

// DynamicGasParams is what DynamicGasFiller.Prepare hands to Fill.
type DynamicGasParams struct {
	Gas        GasFillable
	Multiplier float64
}

// DynamicGasFiller inflates the estimated gas limit by a fixed factor and
// derives a fee multiplier from the number of transactions the configured
// account has in the node's mempool.
//
// The multiplier is computed and carried to Fill but the fee fields are
// always set to FloorFeePerGas; only the gas limit factor changes the
// transaction.
type DynamicGasFiller struct {
	cfg  DynamicGasConfig
	base GasFiller
}

// NewDynamicGasFiller creates a filler for the given configuration. Values
// outside the sane range are accepted and only logged.
func NewDynamicGasFiller(cfg DynamicGasConfig) *DynamicGasFiller {
	if cfg.MaxGasMultiplier < 1 || cfg.GasIncreaseFactor < 0 || cfg.GasLimitFactor < 0 {
		log.Warn("Degenerate dynamic gas config", "limitFactor", cfg.GasLimitFactor,
			"increaseFactor", cfg.GasIncreaseFactor, "maxMultiplier", cfg.MaxGasMultiplier)
	}
	return &DynamicGasFiller{cfg: cfg}
}

// Config returns the filler's configuration.
func (f *DynamicGasFiller) Config() DynamicGasConfig {
	return f.cfg
}

func (f *DynamicGasFiller) Status(req *TxRequest) ControlFlow {
	return f.base.Status(req)
}

func (f *DynamicGasFiller) FillSync(*SendableTx) {}

func (f *DynamicGasFiller) Prepare(ctx context.Context, p Provider, req *TxRequest) (Fillable, error) {
	fillable, err := f.base.Prepare(ctx, p, req)
	if err != nil {
		return nil, err
	}
	gas, ok := fillable.(GasFillable)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedFillable, fillable)
	}

	var confirmed, pending uint64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		confirmed, err = TransactionCount(gctx, p, f.cfg.Account, LatestBlock)
		return err
	})
	g.Go(func() (err error) {
		pending, err = TransactionCount(gctx, p, f.cfg.Account, PendingBlock)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	diff := TxDiff(confirmed, pending)
	multiplier := Multiplier(diff, f.cfg.GasIncreaseFactor, f.cfg.MaxGasMultiplier)
	log.Debug("Dynamic gas backlog", "account", f.cfg.Account, "pending", pending,
		"confirmed", confirmed, "diff", diff, "multiplier", multiplier)

	return DynamicGasParams{Gas: gas, Multiplier: multiplier}, nil
}

func (f *DynamicGasFiller) Fill(_ context.Context, fillable Fillable, tx *SendableTx) (*SendableTx, error) {
	builder := tx.AsMutBuilder()
	if builder == nil {
		return tx, nil
	}
	prepared, ok := fillable.(DynamicGasParams)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedFillable, fillable)
	}

	switch gas := prepared.Gas.(type) {
	case LegacyGas:
		builder.SetGasLimit(AdjustGasLimit(gas.GasLimit, f.cfg.GasLimitFactor))
		builder.SetGasPrice(floorFeePerGas)
	case Eip1559Gas:
		builder.SetGasLimit(AdjustGasLimit(gas.GasLimit, f.cfg.GasLimitFactor))
		builder.SetMaxFeePerGas(floorFeePerGas)
		builder.SetMaxPriorityFeePerGas(floorFeePerGas)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedFillable, prepared.Gas)
	}
	return tx, nil
}

// TxDiff returns the number of unconfirmed transactions, zero when the
// node reports a pending count below the confirmed one.
func TxDiff(confirmed, pending uint64) uint64 {
	if pending < confirmed {
		return 0
	}
	return pending - confirmed
}

// Multiplier returns 1 + diff*increase capped at max.
func Multiplier(diff uint64, increase, max float64) float64 {
	return math.Min(1+float64(diff)*increase, max)
}

// AdjustGasLimit returns ceil(limit * (1 + factor)), saturated to the
// uint64 range.
func AdjustGasLimit(limit uint64, factor float64) uint64 {
	adjusted := math.Ceil(float64(limit) * (1 + factor))
	switch {
	case math.IsNaN(adjusted) || adjusted <= 0:
		return 0
	case adjusted >= math.MaxUint64:
		return math.MaxUint64
	}
	return uint64(adjusted)
}
