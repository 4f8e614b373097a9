package chain

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/config"
)

// FromConfig 按配置的网络与账户打开链
func FromConfig(ctx context.Context, db *gorm.DB, cfg config.ChainConfig) (*Chain, error) {
	chainID, err := cfg.ChainID()
	if err != nil {
		return nil, err
	}
	signers, err := SignersFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(ctx, db, Options{ChainID: chainID, Network: cfg.Network, Signers: signers})
}

// SignersFromConfig 优先使用显式账户列表，否则由 seed 派生
func SignersFromConfig(cfg config.ChainConfig) ([]Address, error) {
	if len(cfg.Accounts) == 0 {
		n := cfg.AccountCount
		if n <= 0 {
			n = 20
		}
		return DeriveSigners(cfg.Seed, n), nil
	}
	out := make([]Address, 0, len(cfg.Accounts))
	for i, raw := range cfg.Accounts {
		a, err := ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("chain.accounts[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}
