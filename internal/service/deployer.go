package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

var ErrNoAdmin = errors.New("admin address required")

// Deployment 一次部署的结果
type Deployment struct {
	Network        string        `json:"network"`
	ChainID        int64         `json:"chainId"`
	Deployer       chain.Address `json:"deployer"`
	Admin          chain.Address `json:"admin"`
	NFTFactory     chain.Address `json:"nftFactory"`
	Media          chain.Address `json:"media"`
	FactoryReceipt *chain.Receipt `json:"-"`
	MediaReceipt   *chain.Receipt `json:"-"`
}

// Deployer 按顺序部署 NFT 工厂和社交合约
type Deployer struct {
	chain *chain.Chain
	from  chain.Address
}

// NewDeployer from 为零地址时使用第一个账户
func NewDeployer(c *chain.Chain, from chain.Address) *Deployer {
	if from.IsZero() {
		from, _ = c.Signer(0)
	}
	return &Deployer{chain: c, from: from}
}

// DeployAll 先部署 NFTFactory，再以 (admin, factory) 部署 QuteeMedia；任一步失败即停止
func (d *Deployer) DeployAll(ctx context.Context, admin chain.Address) (*Deployment, error) {
	if admin.IsZero() {
		return nil, ErrNoAdmin
	}
	out := &Deployment{
		Network:  d.chain.Network(),
		ChainID:  d.chain.ChainID(),
		Deployer: d.from,
		Admin:    admin,
	}

	factory, rcpt, err := contract.DeployNFTFactory(ctx, d.chain, d.from)
	if err != nil {
		return nil, fmt.Errorf("deploy %s: %w", contract.KindNFTFactory, err)
	}
	out.NFTFactory = factory.Address()
	out.FactoryReceipt = rcpt
	logger.Info(fmt.Sprintf("NFT Factory contract deployed to %s", out.NFTFactory.Hex()),
		zap.String("tx", rcpt.TxHash.Hex()),
		zap.Uint64("block", rcpt.BlockNumber),
	)

	media, rcpt, err := contract.DeployQuteeMedia(ctx, d.chain, d.from, admin, out.NFTFactory)
	if err != nil {
		return out, fmt.Errorf("deploy %s: %w", contract.KindQuteeMedia, err)
	}
	out.Media = media.Address()
	out.MediaReceipt = rcpt
	logger.Info(fmt.Sprintf("Social Media contract deployed to %s", out.Media.Hex()),
		zap.String("tx", rcpt.TxHash.Hex()),
		zap.Uint64("block", rcpt.BlockNumber),
	)
	return out, nil
}

// VerifyCommands 部署后提示的验证命令
func (d *Deployment) VerifyCommands() []string {
	return []string{
		fmt.Sprintf("verify --network %s %s", d.Network, d.NFTFactory.Hex()),
		fmt.Sprintf("verify --network %s %s %s %s", d.Network, d.Media.Hex(), d.Admin.Hex(), d.NFTFactory.Hex()),
	}
}
