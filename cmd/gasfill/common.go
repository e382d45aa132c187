package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/cmd/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stars-labs/gasfiller/txfill"
	"gopkg.in/urfave/cli.v1"
)

var errReceiptTimeout = errors.New("timed out waiting for receipt")

// newClient creates a client with specified remote URL.
func newClient(url string) *ethclient.Client {
	client, err := ethclient.Dial(url)
	if err != nil {
		utils.Fatalf("Failed to connect to Ethereum node: %v", err)
	}

	return client
}

// newKey parses a plaintext private key in hex format.
func newKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return key, nil
}

// generateRandomKeys generates servial random keys.
func generateRandomKeys(amount int) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, amount)
	for i := 0; i < amount; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// senderAddress resolves the sending account from --from or --privkey.
func senderAddress(ctx *cli.Context, key *ecdsa.PrivateKey) (common.Address, error) {
	if from := ctx.String(fromFlag.Name); from != "" {
		if !common.IsHexAddress(from) {
			return common.Address{}, fmt.Errorf("invalid sender address %q", from)
		}
		return common.HexToAddress(from), nil
	}
	if key == nil {
		return common.Address{}, errors.New("either --from or --privkey is required")
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// requestFromFlags builds the transaction draft described by the command line.
func requestFromFlags(ctx *cli.Context, from common.Address) (*txfill.TxRequest, error) {
	to, err := recipientFromFlags(ctx)
	if err != nil {
		return nil, err
	}
	req := &txfill.TxRequest{From: from, To: to}

	value, ok := new(big.Int).SetString(ctx.String(valueFlag.Name), 0)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", ctx.String(valueFlag.Name))
	}
	req.Value = value

	if data := ctx.String(dataFlag.Name); data != "" {
		if !strings.HasPrefix(data, "0x") {
			data = "0x" + data
		}
		b, err := hexutil.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("invalid call data: %v", err)
		}
		req.Data = b
	}
	return req, nil
}

// recipientFromFlags parses --to. An empty value means contract creation.
func recipientFromFlags(ctx *cli.Context) (*common.Address, error) {
	to := ctx.String(toFlag.Name)
	if to == "" {
		return nil, nil
	}
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	addr := common.HexToAddress(to)
	return &addr, nil
}

// newPipeline assembles the fillers for one account. A nil key leaves the
// result unsigned.
func newPipeline(cfg txfill.DynamicGasConfig, from common.Address, legacy bool, key *ecdsa.PrivateKey) (txfill.Pipeline, *recordingFiller) {
	if cfg.Account == (common.Address{}) {
		cfg.Account = from
	}
	gas := &recordingFiller{TxFiller: txfill.NewDynamicGasFiller(cfg)}

	pipeline := txfill.Pipeline{txfill.NewChainIDFiller(), txfill.NewNonceFiller()}
	if legacy {
		pipeline = append(pipeline, legacyFiller{})
	}
	pipeline = append(pipeline, gas)
	if key != nil {
		pipeline = append(pipeline, txfill.NewSignerFiller(key))
	}
	return pipeline, gas
}

// recordingFiller keeps the last parameters prepared by the wrapped filler.
type recordingFiller struct {
	txfill.TxFiller
	last txfill.Fillable
}

func (f *recordingFiller) Prepare(ctx context.Context, p txfill.Provider, req *txfill.TxRequest) (txfill.Fillable, error) {
	params, err := f.TxFiller.Prepare(ctx, p, req)
	if err == nil {
		f.last = params
	}
	return params, err
}

// multiplier returns the fee multiplier of the last preparation, or 0 if the
// gas filler did not run.
func (f *recordingFiller) multiplier() float64 {
	if params, ok := f.last.(txfill.DynamicGasParams); ok {
		return params.Multiplier
	}
	return 0
}

// legacyFiller selects the legacy fee model by seeding the gas price with
// the node's suggestion.
type legacyFiller struct{}

func (legacyFiller) Status(req *txfill.TxRequest) txfill.ControlFlow {
	if req.GasPrice != nil {
		return txfill.Finished
	}
	return txfill.Ready
}

func (legacyFiller) FillSync(*txfill.SendableTx) {}

func (legacyFiller) Prepare(ctx context.Context, p txfill.Provider, _ *txfill.TxRequest) (txfill.Fillable, error) {
	return p.SuggestGasPrice(ctx)
}

func (legacyFiller) Fill(_ context.Context, params txfill.Fillable, tx *txfill.SendableTx) (*txfill.SendableTx, error) {
	if builder := tx.AsMutBuilder(); builder != nil {
		builder.SetGasPrice(params.(*big.Int))
	}
	return tx, nil
}

func waitForTx(ctx context.Context, hash common.Hash, client *ethclient.Client, cfg sendConfig) (*types.Receipt, error) {
	log.Info("wait for transaction packed", "tx", hash.Hex())

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ReceiptWaitSecs)*time.Second)
	defer cancel()

	tick := time.NewTicker(time.Duration(cfg.ReceiptPollSecs) * time.Second)
	defer tick.Stop()

	for {
		receipt, _ := client.TransactionReceipt(ctx, hash)
		if receipt != nil {
			log.Info("transaction packed!", "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
			return receipt, nil
		}

		select {
		case <-tick.C:
		case <-ctx.Done():
			return nil, errReceiptTimeout
		}
	}
}
