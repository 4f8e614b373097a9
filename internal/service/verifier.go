package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/explorer"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

var (
	ErrArgsMismatch  = errors.New("constructor arguments do not match deployment")
	ErrSourceMissing = errors.New("contract source not found")
)

// ExplorerClient 验证用到的浏览器接口
type ExplorerClient interface {
	VerifySource(ctx context.Context, req explorer.SourceRequest) (string, error)
	WaitVerified(ctx context.Context, guid string, interval time.Duration) (explorer.Status, error)
}

// Verifier 把部署记录和源码提交到区块浏览器
type Verifier struct {
	chain    *chain.Chain
	client   ExplorerClient
	cfg      config.ExplorerConfig
	validate *validator.Validate
}

func NewVerifier(c *chain.Chain, client ExplorerClient, cfg config.ExplorerConfig) *Verifier {
	return &Verifier{chain: c, client: client, cfg: cfg, validate: validator.New()}
}

// Verify args 非空时必须与部署时的构造参数一致
func (v *Verifier) Verify(ctx context.Context, address string, args []string) (explorer.Status, error) {
	if err := v.validate.Var(address, "required,eth_addr"); err != nil {
		return explorer.Status{}, fmt.Errorf("%w: %s", chain.ErrInvalidAddress, address)
	}
	for _, a := range args {
		if err := v.validate.Var(a, "eth_addr"); err != nil {
			return explorer.Status{}, fmt.Errorf("%w: constructor argument %s", chain.ErrInvalidAddress, a)
		}
	}
	addr := chain.MustParseAddress(address)

	record, err := v.chain.Contract(ctx, addr)
	if err != nil {
		return explorer.Status{}, err
	}
	recorded, err := contract.DecodeConstructorArgs(record.ConstructorArgs)
	if err != nil {
		return explorer.Status{}, err
	}
	if len(args) > 0 {
		if len(args) != len(recorded) {
			return explorer.Status{}, fmt.Errorf("%w: want %d, got %d", ErrArgsMismatch, len(recorded), len(args))
		}
		for i, a := range args {
			if chain.MustParseAddress(a) != recorded[i] {
				return explorer.Status{}, fmt.Errorf("%w: argument %d", ErrArgsMismatch, i)
			}
		}
	}

	path := filepath.Join(v.cfg.SourceDir, record.Kind+".sol")
	source, err := os.ReadFile(path)
	if err != nil {
		return explorer.Status{}, fmt.Errorf("%w: %s: %v", ErrSourceMissing, path, err)
	}

	guid, err := v.client.VerifySource(ctx, explorer.SourceRequest{
		Address:         addr.Hex(),
		ContractName:    record.Kind,
		SourceCode:      string(source),
		CompilerVersion: v.cfg.CompilerVersion,
		Optimization:    v.cfg.Optimization,
		Runs:            v.cfg.Runs,
		ConstructorArgs: contract.EncodeConstructorArgs(recorded...),
	})
	if errors.Is(err, explorer.ErrAlreadyVerified) {
		logger.Info("contract already verified", zap.String("address", addr.Hex()))
		return explorer.Status{State: explorer.StateVerified, Message: "Already Verified"}, nil
	}
	if err != nil {
		return explorer.Status{}, err
	}

	st, err := v.client.WaitVerified(ctx, guid, v.cfg.PollInterval)
	if err != nil {
		return st, err
	}
	logger.Info("contract verified",
		zap.String("address", addr.Hex()),
		zap.String("kind", record.Kind),
		zap.String("network", record.Network),
	)
	return st, nil
}
