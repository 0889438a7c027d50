// certanchor-cli anchors and verifies certificates against the engine's
// stores from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/certledger/certanchor/config"
	"github.com/certledger/certanchor/internal/keys"
	klog "github.com/certledger/certanchor/internal/log"
	"github.com/certledger/certanchor/internal/node"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[certanchor-cli] %v\n", err)
	os.Exit(1)
}

// globalKeys maps global flags to config keys.
var globalKeys = map[string]string{
	"datadir":      "datadir",
	"network":      "network",
	"provider-url": "provider.base_url",
	"store":        "store.backend",
	"store-dsn":    "store.dsn",
	"lock":         "lock.backend",
	"redis-addr":   "lock.redis_addr",
	"log-level":    "log.level",
}

func main() {
	app := cli.NewApp()
	app.Name = "certanchor-cli"
	app.Usage = "anchor and verify certificates on the ledger"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:      "config",
			Usage:     "Config file (default <datadir>/" + config.ConfigFileName + ").",
			TakesFile: true,
		},
		cli.StringFlag{
			Name:      "datadir",
			Usage:     "The engine data directory.",
			TakesFile: true,
		},
		cli.StringFlag{
			Name:  "network, n",
			Usage: "The network: mainnet, preprod or preview.",
		},
		cli.StringFlag{
			Name:  "provider-url",
			Usage: "Chain provider base URL.",
		},
		cli.StringFlag{
			Name:  "store",
			Usage: "Record store: badger, memory or postgres.",
		},
		cli.StringFlag{
			Name:  "store-dsn",
			Usage: "PostgreSQL connection string.",
		},
		cli.StringFlag{
			Name:  "lock",
			Usage: "Wallet lock: local or redis.",
		},
		cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Redis address for the wallet lock.",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "warn",
			Usage: "Log level written to stderr.",
		},
	}
	app.Commands = []cli.Command{
		initCommand,
		newMnemonicCommand,
		addressCommand,
		tenantCommand,
		anchorCommand,
		bulkCommand,
		reissueCommand,
		verifyCommand,
		lookupCommand,
		pendingCommand,
		reconcileCommand,
		replayCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// overrides collects the global flags set on the command line.
func overrides(ctx *cli.Context) map[string]any {
	out := make(map[string]any)
	for flag, key := range globalKeys {
		if ctx.GlobalIsSet(flag) {
			out[key] = ctx.GlobalString(flag)
		}
	}
	if _, ok := out["log.level"]; !ok {
		out["log.level"] = ctx.GlobalString("log-level")
	}
	return out
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	return config.Load(config.Options{
		ConfigFile: ctx.GlobalString("config"),
		Overrides:  overrides(ctx),
	})
}

// openNode builds the engine without starting background work. The mnemonic
// is prompted for when it is not in the environment.
func openNode(ctx *cli.Context) (*node.Node, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Wallet.Mnemonic == "" {
		phrase, err := readMnemonic()
		if err != nil {
			return nil, err
		}
		cfg.Wallet.Mnemonic = phrase
	}
	if err := config.EnsureDataDirs(cfg); err != nil {
		return nil, err
	}
	klog.SetOutput(os.Stderr, cfg.Log.Level)

	n, err := node.New(cfg, node.WithoutLogInit())
	cfg.Wallet.Mnemonic = ""
	return n, err
}

// readMnemonic prompts for the funding phrase on the terminal without echo.
func readMnemonic() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) { // nolint:unconvert
		return "", fmt.Errorf("no mnemonic: set %s", config.EnvName("wallet.mnemonic"))
	}
	fmt.Fprint(os.Stderr, "Mnemonic: ")
	raw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	phrase := normalizeMnemonic(raw)
	for i := range raw {
		raw[i] = 0
	}
	if !keys.ValidateMnemonic(phrase) {
		return "", fmt.Errorf("invalid mnemonic")
	}
	return phrase, nil
}

func normalizeMnemonic(raw []byte) string {
	return strings.Join(strings.Fields(strings.ToLower(string(raw))), " ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
