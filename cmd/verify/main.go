// verify 把已部署合约的源码提交到区块浏览器
//
//	go run ./cmd/verify --chain.network sepolia <address> [constructor args...]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/explorer"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/pkg/database"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("verify", pflag.ExitOnError)
	flags.String("chain.network", "hardhat", "target network")
	flags.String("explorer.api_key", "", "block explorer API key")
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: verify [--chain.network NAME] <address> [constructor args...]")
		os.Exit(2)
	}
	if err := run(flags, flags.Arg(0), flags.Args()[1:]); err != nil {
		color.Red("verify failed: %v", err)
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet, address string, args []string) error {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Explorer.Timeout)
	defer cancel()

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	c, err := chain.FromConfig(ctx, db, cfg.Chain)
	if err != nil {
		return err
	}

	v := service.NewVerifier(c, explorer.NewClient(cfg.Explorer), cfg.Explorer)
	st, err := v.Verify(ctx, address, args)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("still pending after %s: %w", cfg.Explorer.Timeout, err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", color.GreenString("Successfully verified"), address, st.Message)
	return nil
}
