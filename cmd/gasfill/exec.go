package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/cmd/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"
	"github.com/stars-labs/gasfiller/common/gopool"
	"github.com/stars-labs/gasfiller/txfill"
	"gopkg.in/urfave/cli.v1"
)

var commandPrepare = cli.Command{
	Name:  "prepare",
	Usage: "Fill nonce, chain id and gas fields of a transaction and print it",
	Flags: append([]cli.Flag{
		nodeURLFlag,
		privKeyFlag,
		fromFlag,
		toFlag,
		valueFlag,
		dataFlag,
		legacyFlag,
	}, gasFlags...),
	Action: utils.MigrateFlags(prepareTx),
}

var commandSend = cli.Command{
	Name:  "send",
	Usage: "Prepare, sign and broadcast a transaction",
	Flags: append([]cli.Flag{
		nodeURLFlag,
		privKeyFlag,
		toFlag,
		valueFlag,
		dataFlag,
		legacyFlag,
		waitFlag,
	}, gasFlags...),
	Action: utils.MigrateFlags(sendTx),
}

var commandBench = cli.Command{
	Name:  "bench",
	Usage: "Prepare many transactions concurrently and report the fee multipliers",
	Flags: append([]cli.Flag{
		nodeURLFlag,
		keyFileFlag,
		accountNumberFlag,
		countFlag,
		threadsFlag,
		toFlag,
		legacyFlag,
	}, gasFlags...),
	Action: utils.MigrateFlags(benchPrepare),
}

// preparedTx is the output of the prepare command.
type preparedTx struct {
	Tx         *txfill.TxRequest `json:"tx"`
	Multiplier float64           `json:"multiplier"`
}

func prepareTx(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	key := optionalKey(ctx)
	from, err := senderAddress(ctx, key)
	if err != nil {
		return err
	}
	req, err := requestFromFlags(ctx, from)
	if err != nil {
		return err
	}

	client := newClient(ctx.GlobalString(nodeURLFlag.Name))
	defer client.Close()

	pipeline, gas := newPipeline(cfg.Gas, from, ctx.Bool(legacyFlag.Name), nil)
	tx, err := pipeline.Fill(context.Background(), client, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(preparedTx{Tx: tx.AsMutBuilder(), Multiplier: gas.multiplier()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func sendTx(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	key := optionalKey(ctx)
	if key == nil {
		return fmt.Errorf("--%s is required", privKeyFlag.Name)
	}
	from, err := senderAddress(ctx, key)
	if err != nil {
		return err
	}
	req, err := requestFromFlags(ctx, from)
	if err != nil {
		return err
	}

	client := newClient(ctx.GlobalString(nodeURLFlag.Name))
	defer client.Close()

	pipeline, gas := newPipeline(cfg.Gas, from, ctx.Bool(legacyFlag.Name), key)
	tx, err := pipeline.Fill(context.Background(), client, req)
	if err != nil {
		return err
	}
	signed := tx.Envelope()
	if err := client.SendTransaction(context.Background(), signed); err != nil {
		return err
	}
	log.Info("Transaction sent", "hash", signed.Hash(), "nonce", signed.Nonce(), "gas", signed.Gas(),
		"multiplier", gas.multiplier())

	if ctx.Bool(waitFlag.Name) {
		if _, err := waitForTx(context.Background(), signed.Hash(), client, cfg.Send); err != nil {
			return err
		}
	}
	fmt.Println(signed.Hash().Hex())
	return nil
}

func optionalKey(ctx *cli.Context) *ecdsa.PrivateKey {
	hexKey := ctx.GlobalString(privKeyFlag.Name)
	if hexKey == "" {
		return nil
	}
	key, err := newKey(hexKey)
	if err != nil {
		utils.Fatalf("Failed to get privkey by hex key: %v", err)
	}
	return key
}

// benchStats collects the outcome of concurrent preparations.
type benchStats struct {
	mu          sync.Mutex
	prepared    int
	min, max    float64
	sum         float64
	errs        *multierror.Error
	perAccounts map[common.Address]int
}

func newBenchStats() *benchStats {
	return &benchStats{
		min:         math.Inf(1),
		max:         math.Inf(-1),
		perAccounts: make(map[common.Address]int),
	}
}

func (s *benchStats) add(account common.Address, multiplier float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.errs = multierror.Append(s.errs, fmt.Errorf("%s: %w", account.Hex(), err))
		return
	}
	s.prepared++
	s.sum += multiplier
	s.min = math.Min(s.min, multiplier)
	s.max = math.Max(s.max, multiplier)
	s.perAccounts[account]++
}

func (s *benchStats) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prepared == 0 {
		return "prepared=0"
	}
	return fmt.Sprintf("prepared=%d multiplier min=%.3f avg=%.3f max=%.3f",
		s.prepared, s.min, s.sum/float64(s.prepared), s.max)
}

func benchPrepare(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}

	to, err := recipientFromFlags(ctx)
	if err != nil {
		return err
	}
	keys, err := loadOrGenerateKeys(ctx.String(keyFileFlag.Name), cfg.Bench.Accounts)
	if err != nil {
		return err
	}
	keys = keys[:cfg.Bench.Accounts]

	client := newClient(ctx.GlobalString(nodeURLFlag.Name))
	defer client.Close()

	pool, err := gopool.New(cfg.Bench.Threads)
	if err != nil {
		return err
	}
	defer pool.Release()

	var (
		legacy = ctx.Bool(legacyFlag.Name)
		stats  = newBenchStats()
		nonces = txfill.NewNonceFiller()
		chain  = txfill.NewChainIDFiller()
		start  = time.Now()
	)
	for i := 0; i < cfg.Bench.Count; i++ {
		from := keyAddress(keys[i%len(keys)])
		gasCfg := cfg.Gas
		gasCfg.Account = from

		err := pool.Submit(func() {
			gas := &recordingFiller{TxFiller: txfill.NewDynamicGasFiller(gasCfg)}
			pipeline := txfill.Pipeline{chain, nonces}
			if legacy {
				pipeline = append(pipeline, legacyFiller{})
			}
			pipeline = append(pipeline, gas)

			_, err := pipeline.Fill(context.Background(), client, &txfill.TxRequest{From: from, To: to})
			stats.add(from, gas.multiplier(), err)
		})
		if err != nil {
			return err
		}
	}
	pool.Wait()

	log.Info("bench over", "prepared", stats.prepared, "accounts", len(stats.perAccounts),
		"cost(milliseconds)", time.Since(start).Milliseconds())
	fmt.Fprintln(os.Stdout, stats)
	return stats.errs.ErrorOrNil()
}
