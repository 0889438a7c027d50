// Command certanchord runs the anchoring engine: it replays the submission
// journal, reconciles pending certificates on a schedule and serves
// metrics until interrupted.
//
// Secrets are read from CERTANCHOR_WALLET_MNEMONIC and
// CERTANCHOR_PROVIDER_PROJECT_ID only.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/certledger/certanchor/config"
	"github.com/certledger/certanchor/internal/node"
)

func main() {
	fs := pflag.NewFlagSet("certanchord", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if err := run(fs); err != nil {
		fmt.Fprintf(os.Stderr, "certanchord: %v\n", err)
		os.Exit(1)
	}
}

func run(fs *pflag.FlagSet) error {
	cfg, err := config.Load(config.Options{Flags: fs})
	if err != nil {
		return err
	}
	if err := config.EnsureDataDirs(cfg); err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
