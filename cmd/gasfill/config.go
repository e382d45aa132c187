package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/stars-labs/gasfiller/common/logrotate"
	"github.com/stars-labs/gasfiller/txfill"
	"gopkg.in/urfave/cli.v1"
)

var commandDumpConfig = cli.Command{
	Name:   "dumpconfig",
	Usage:  "Show configuration values",
	Flags:  gasFlags,
	Action: dumpConfig,
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s for available fields", rt.PkgPath())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type benchConfig struct {
	Threads  int // concurrent preparations
	Count    int // total preparations
	Accounts int // accounts used, generated if the key file has fewer
}

type sendConfig struct {
	ReceiptPollSecs int // receipt polling interval
	ReceiptWaitSecs int // give up waiting for a receipt after this long
}

type gasfillConfig struct {
	Gas   txfill.DynamicGasConfig
	Send  sendConfig
	Bench benchConfig
	Log   logrotate.RotateConfig
}

var defaultBenchConfig = benchConfig{
	Threads:  20,
	Count:    1000,
	Accounts: 10,
}

var defaultSendConfig = sendConfig{
	ReceiptPollSecs: 1,
	ReceiptWaitSecs: 120,
}

func defaultConfig() gasfillConfig {
	logCfg := logrotate.DefaultConfig
	logCfg.LogDir = ""
	return gasfillConfig{
		Gas:   txfill.DefaultDynamicGasConfig,
		Send:  defaultSendConfig,
		Bench: defaultBenchConfig,
		Log:   logCfg,
	}
}

// loadConfig decodes file over the defaults. An empty path returns the
// defaults.
func loadConfig(file string) (gasfillConfig, error) {
	cfg := defaultConfig()
	if file == "" {
		return cfg, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return cfg, err
}

// makeConfig loads the config file and applies command line overrides.
func makeConfig(ctx *cli.Context) (gasfillConfig, error) {
	cfg, err := loadConfig(ctx.GlobalString(configFileFlag.Name))
	if err != nil {
		return cfg, err
	}
	if ctx.IsSet(gasLimitFactorFlag.Name) {
		cfg.Gas.GasLimitFactor = ctx.Float64(gasLimitFactorFlag.Name)
	}
	if ctx.IsSet(gasIncreaseFactorFlag.Name) {
		cfg.Gas.GasIncreaseFactor = ctx.Float64(gasIncreaseFactorFlag.Name)
	}
	if ctx.IsSet(gasMaxMultiplierFlag.Name) {
		cfg.Gas.MaxGasMultiplier = ctx.Float64(gasMaxMultiplierFlag.Name)
	}
	if ctx.IsSet(threadsFlag.Name) {
		cfg.Bench.Threads = ctx.Int(threadsFlag.Name)
	}
	if ctx.IsSet(countFlag.Name) {
		cfg.Bench.Count = ctx.Int(countFlag.Name)
	}
	if ctx.IsSet(accountNumberFlag.Name) {
		cfg.Bench.Accounts = ctx.Int(accountNumberFlag.Name)
	}
	cfg.Bench = cfg.Bench.sanity()
	cfg.Send = cfg.Send.sanity()
	return cfg, nil
}

func (c benchConfig) sanity() benchConfig {
	cfg := c
	if cfg.Threads < 1 {
		log.Info("BenchConfig sanity Threads", "old", cfg.Threads, "new", defaultBenchConfig.Threads)
		cfg.Threads = defaultBenchConfig.Threads
	}
	if cfg.Count < 1 {
		log.Info("BenchConfig sanity Count", "old", cfg.Count, "new", defaultBenchConfig.Count)
		cfg.Count = defaultBenchConfig.Count
	}
	if cfg.Accounts < 1 {
		log.Info("BenchConfig sanity Accounts", "old", cfg.Accounts, "new", defaultBenchConfig.Accounts)
		cfg.Accounts = defaultBenchConfig.Accounts
	}
	return cfg
}

func (c sendConfig) sanity() sendConfig {
	cfg := c
	if cfg.ReceiptPollSecs < 1 {
		log.Info("SendConfig sanity ReceiptPollSecs", "old", cfg.ReceiptPollSecs, "new", defaultSendConfig.ReceiptPollSecs)
		cfg.ReceiptPollSecs = defaultSendConfig.ReceiptPollSecs
	}
	if cfg.ReceiptWaitSecs <= cfg.ReceiptPollSecs {
		log.Info("SendConfig sanity ReceiptWaitSecs", "old", cfg.ReceiptWaitSecs, "new", defaultSendConfig.ReceiptWaitSecs)
		cfg.ReceiptWaitSecs = defaultSendConfig.ReceiptWaitSecs
	}
	return cfg
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
