// gasfill prepares, signs and sends transactions with gas parameters scaled
// to the sender's mempool backlog.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/fdlimit"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stars-labs/gasfiller/common/logrotate"
	"gopkg.in/urfave/cli.v1"
)

var (
	// Git SHA1 commit hash of the release (set via linker flags)
	gitCommit = ""
	gitDate   = ""
)

var app *cli.App

func init() {
	app = cli.NewApp()
	app.Name = "gasfill"
	app.Usage = "transaction gas preparation tool"
	app.Version = versionString()
	app.Commands = []cli.Command{
		commandPrepare,
		commandSend,
		commandBench,
		commandDumpConfig,
	}
	app.Flags = []cli.Flag{
		nodeURLFlag,
		privKeyFlag,
		configFileFlag,
		verbosityFlag,
		logDirFlag,
	}
	app.Before = setupLogging
}

func versionString() string {
	v := "0.1.0"
	if gitCommit != "" {
		v += "-" + gitCommit
		if gitDate != "" {
			v += "-" + gitDate
		}
	}
	return v
}

// Commonly used command line flags.
var (
	nodeURLFlag = cli.StringFlag{
		Name:  "rpc",
		Value: "http://localhost:8545",
		Usage: "The rpc endpoint of a local or remote node",
	}
	privKeyFlag = cli.StringFlag{
		Name:  "privkey",
		Usage: "Hex encoded private key of the sending account",
	}
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: int(log.LvlInfo),
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
	}
	logDirFlag = cli.StringFlag{
		Name:  "logdir",
		Usage: "Also write logs to rotated files in this directory",
	}
	fromFlag = cli.StringFlag{
		Name:  "from",
		Usage: "Sender address (defaults to the address of --privkey)",
	}
	toFlag = cli.StringFlag{
		Name:  "to",
		Usage: "Recipient address, empty for contract creation",
	}
	valueFlag = cli.StringFlag{
		Name:  "value",
		Value: "0",
		Usage: "Amount of wei to transfer",
	}
	dataFlag = cli.StringFlag{
		Name:  "data",
		Usage: "Hex encoded call data",
	}
	legacyFlag = cli.BoolFlag{
		Name:  "legacy",
		Usage: "Force a legacy gas price transaction",
	}
	waitFlag = cli.BoolFlag{
		Name:  "wait",
		Usage: "Wait for the transaction receipt",
	}
	gasLimitFactorFlag = cli.Float64Flag{
		Name:  "gas.limitfactor",
		Usage: "Fraction added to the estimated gas limit",
	}
	gasIncreaseFactorFlag = cli.Float64Flag{
		Name:  "gas.increasefactor",
		Usage: "Fee multiplier increment per unconfirmed transaction of the account",
	}
	gasMaxMultiplierFlag = cli.Float64Flag{
		Name:  "gas.maxmultiplier",
		Usage: "Upper bound of the fee multiplier",
	}
	keyFileFlag = cli.StringFlag{
		Name:  "keyfile",
		Value: defaultKeyFile(),
		Usage: "File with one hex private key per line",
	}
	accountNumberFlag = cli.IntFlag{
		Name:  "accountNumber",
		Usage: "The number of accounts used for the benchmark",
	}
	countFlag = cli.IntFlag{
		Name:  "count",
		Usage: "The number of transactions prepared by the benchmark",
	}
	threadsFlag = cli.IntFlag{
		Name:  "threads",
		Usage: "The number of concurrent preparations",
	}
)

var gasFlags = []cli.Flag{
	gasLimitFactorFlag,
	gasIncreaseFactorFlag,
	gasMaxMultiplierFlag,
}

func setupLogging(ctx *cli.Context) error {
	lvl := log.Lvl(ctx.GlobalInt(verbosityFlag.Name))
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))

	cfg, err := loadConfig(ctx.GlobalString(configFileFlag.Name))
	if err != nil {
		return err
	}
	if dir := ctx.GlobalString(logDirFlag.Name); dir != "" {
		cfg.Log.LogDir = dir
	}
	if cfg.Log.LogDir != "" {
		fileHandler, err := logrotate.NewFileRotateHandler(cfg.Log, log.LogfmtFormat())
		if err != nil {
			return err
		}
		handler = log.MultiHandler(handler, fileHandler)
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))
	return nil
}

const fdLimit = 10000

// raiseFdLimit lifts the open file limit towards fdLimit, bounded by the
// hard limit of the process.
func raiseFdLimit() uint64 {
	limit, err := fdlimit.Raise(fdLimit)
	if err != nil {
		log.Warn("Failed to raise file descriptor limit", "err", err)
	}
	return limit
}

func main() {
	raiseFdLimit()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
