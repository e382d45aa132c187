package txfill

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider is the chain state read by the fillers. *ethclient.Client
// satisfies it.
type Provider interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// BlockTag selects the chain view a count is read from.
type BlockTag int

const (
	LatestBlock BlockTag = iota
	PendingBlock
)

func (t BlockTag) String() string {
	switch t {
	case LatestBlock:
		return "latest"
	case PendingBlock:
		return "pending"
	default:
		return fmt.Sprintf("BlockTag(%d)", int(t))
	}
}

// TransactionCount returns the account nonce at the given tag. The pending
// count includes transactions the node has seen but not yet included.
func TransactionCount(ctx context.Context, p Provider, account common.Address, tag BlockTag) (uint64, error) {
	switch tag {
	case LatestBlock:
		return p.NonceAt(ctx, account, nil)
	case PendingBlock:
		return p.PendingNonceAt(ctx, account)
	default:
		return 0, fmt.Errorf("unsupported block tag %v", tag)
	}
}
