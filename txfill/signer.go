package txfill

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrKeyMismatch is returned when the request sender is not the signing key.
var ErrKeyMismatch = errors.New("sender does not match signing key")

// SignerFiller signs a complete request and turns it into an envelope.
// It should be the last filler of a pipeline.
type SignerFiller struct {
	key  *ecdsa.PrivateKey
	from common.Address
}

func NewSignerFiller(key *ecdsa.PrivateKey) *SignerFiller {
	return &SignerFiller{key: key, from: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the account of the signing key.
func (f *SignerFiller) Address() common.Address {
	return f.from
}

func (f *SignerFiller) Status(req *TxRequest) ControlFlow {
	if req.From != f.from || req.ChainID == nil || req.Nonce == nil || req.Gas == nil {
		return Missing
	}
	if !req.hasLegacyFees() && !req.hasDynamicFees() {
		return Missing
	}
	return Ready
}

func (f *SignerFiller) FillSync(*SendableTx) {}

func (f *SignerFiller) Prepare(context.Context, Provider, *TxRequest) (Fillable, error) {
	return nil, nil
}

func (f *SignerFiller) Fill(_ context.Context, _ Fillable, tx *SendableTx) (*SendableTx, error) {
	builder := tx.AsMutBuilder()
	if builder == nil {
		return tx, nil
	}
	if builder.From != f.from {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrKeyMismatch, builder.From.Hex(), f.from.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(f.key, builder.ChainID)
	if err != nil {
		return nil, err
	}
	signed, err := opts.Signer(f.from, types.NewTx(builder.TxData()))
	if err != nil {
		return nil, err
	}
	return NewEnvelopeTx(signed), nil
}
