// deploy 依次部署 NFTFactory 与 QuteeMedia，并打印验证命令
//
//	go run ./cmd/deploy --chain.network sepolia
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/pkg/database"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

func main() {
	flags := pflag.NewFlagSet("deploy", pflag.ExitOnError)
	flags.String("chain.network", "hardhat", "target network")
	flags.String("chain.admin_address", "", "admin of the QuteeMedia contract")
	_ = flags.Parse(os.Args[1:])

	if err := run(flags); err != nil {
		color.Red("deploy failed: %v", err)
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet) error {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := database.Migrate(db); err != nil {
		return err
	}

	c, err := chain.FromConfig(ctx, db, cfg.Chain)
	if err != nil {
		return err
	}
	admin, err := chain.ParseAddress(cfg.Chain.AdminAddress)
	if err != nil {
		return fmt.Errorf("chain.admin_address: %w", err)
	}

	d, err := service.NewDeployer(c, chain.ZeroAddress).DeployAll(ctx, admin)
	if err != nil {
		return err
	}

	fmt.Printf("NFT Factory contract deployed to %s\n", color.GreenString(d.NFTFactory.Hex()))
	fmt.Printf("Social Media contract deployed to %s\n", color.GreenString(d.Media.Hex()))
	color.HiBlack("network=%s chain_id=%d deployer=%s", d.Network, d.ChainID, d.Deployer.Hex())
	fmt.Println()
	for _, cmd := range d.VerifyCommands() {
		fmt.Println(color.CyanString(cmd))
	}
	return nil
}
