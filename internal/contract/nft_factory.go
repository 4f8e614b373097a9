package contract

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
)

const (
	KindNFTFactory = "NFTFactory"

	EventTransfer = "Transfer"

	slotNextTokenID = "nextTokenId"
)

var (
	ErrMintToZero     = chain.Revert("mint to the zero address")
	ErrTransferToZero = chain.Revert("transfer to the zero address")
	ErrTokenNotFound  = chain.Revert("token does not exist")
	ErrNotTokenOwner  = chain.Revert("caller is not token owner")
)

// TransferEvent ERC-721 Transfer，铸造时 From 为零地址
type TransferEvent struct {
	From    chain.Address `json:"from"`
	To      chain.Address `json:"to"`
	TokenID uint64        `json:"tokenId"`
}

// NFTFactory 合约绑定
type NFTFactory struct {
	chain   *chain.Chain
	address chain.Address
	caller  chain.Address
}

// DeployNFTFactory 部署 NFT 工厂（无构造参数）
func DeployNFTFactory(ctx context.Context, c *chain.Chain, from chain.Address) (*NFTFactory, *chain.Receipt, error) {
	addr, rcpt, err := c.Deploy(ctx, from, KindNFTFactory, []chain.Address{}, func(env *chain.Env) error {
		return repository.NewStorageRepository(env.DB()).Set(env.Context(), env.Self.Lower(), slotNextTokenID, "0")
	})
	if err != nil {
		return nil, rcpt, err
	}
	return &NFTFactory{chain: c, address: addr, caller: from}, rcpt, nil
}

// BindNFTFactory 绑定已部署的工厂，默认以第一个账户发送交易
func BindNFTFactory(ctx context.Context, c *chain.Chain, addr chain.Address) (*NFTFactory, error) {
	if err := expectKind(ctx, c, addr, KindNFTFactory); err != nil {
		return nil, err
	}
	deployer, _ := c.Signer(0)
	return &NFTFactory{chain: c, address: addr, caller: deployer}, nil
}

func (f *NFTFactory) Address() chain.Address { return f.address }

// Connect 返回以 signer 身份发送交易的副本
func (f *NFTFactory) Connect(signer chain.Address) *NFTFactory {
	cp := *f
	cp.caller = signer
	return &cp
}

// Mint 给 to 铸造一个 NFT，返回 tokenId
func (f *NFTFactory) Mint(ctx context.Context, to chain.Address, name, uri string) (uint64, *chain.Receipt, error) {
	var tokenID uint64
	rcpt, err := f.chain.Transact(ctx, f.caller, f.address, "mint", []any{to, name, uri}, func(env *chain.Env) error {
		id, err := mintToken(env, to, name, uri)
		tokenID = id
		return err
	})
	return tokenID, rcpt, err
}

// TransferFrom 只有当前持有者可以转移
func (f *NFTFactory) TransferFrom(ctx context.Context, from, to chain.Address, tokenID uint64) (*chain.Receipt, error) {
	return f.chain.Transact(ctx, f.caller, f.address, "transferFrom", []any{from, to, tokenID}, func(env *chain.Env) error {
		if to.IsZero() {
			return ErrTransferToZero
		}
		tokens := repository.NewTokenRepository(env.DB())
		tok, err := getToken(env, tokens, tokenID)
		if err != nil {
			return err
		}
		if tok.Owner != from.Lower() || env.Sender != from {
			return ErrNotTokenOwner
		}
		if err := tokens.UpdateOwner(env.Context(), env.Self.Lower(), tokenID, to.Lower()); err != nil {
			return err
		}
		return env.Emit(EventTransfer, TransferEvent{From: from, To: to, TokenID: tokenID})
	})
}

func (f *NFTFactory) OwnerOf(ctx context.Context, tokenID uint64) (chain.Address, error) {
	var owner chain.Address
	err := f.chain.View(ctx, f.address, func(env *chain.Env) error {
		tok, err := getToken(env, repository.NewTokenRepository(env.DB()), tokenID)
		if err != nil {
			return err
		}
		owner, err = chain.ParseAddress(tok.Owner)
		return err
	})
	return owner, err
}

func (f *NFTFactory) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	tok, err := f.token(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return tok.URI, nil
}

func (f *NFTFactory) TokenName(ctx context.Context, tokenID uint64) (string, error) {
	tok, err := f.token(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return tok.Name, nil
}

func (f *NFTFactory) BalanceOf(ctx context.Context, owner chain.Address) (uint64, error) {
	var n int64
	err := f.chain.View(ctx, f.address, func(env *chain.Env) error {
		var err error
		n, err = repository.NewTokenRepository(env.DB()).CountByOwner(env.Context(), env.Self.Lower(), owner.Lower())
		return err
	})
	return uint64(n), err
}

// TotalSupply 已铸造数量（tokenId 连续递增，无销毁）
func (f *NFTFactory) TotalSupply(ctx context.Context) (uint64, error) {
	var n uint64
	err := f.chain.View(ctx, f.address, func(env *chain.Env) error {
		var err error
		n, err = repository.NewStorageRepository(env.DB()).Uint(env.Context(), env.Self.Lower(), slotNextTokenID)
		return err
	})
	return n, err
}

func (f *NFTFactory) token(ctx context.Context, tokenID uint64) (*model.Token, error) {
	var tok *model.Token
	err := f.chain.View(ctx, f.address, func(env *chain.Env) error {
		var err error
		tok, err = getToken(env, repository.NewTokenRepository(env.DB()), tokenID)
		return err
	})
	return tok, err
}

// mintToken 工厂铸造逻辑，env.Self 必须是工厂地址
func mintToken(env *chain.Env, to chain.Address, name, uri string) (uint64, error) {
	if to.IsZero() {
		return 0, ErrMintToZero
	}
	id, err := repository.NewStorageRepository(env.DB()).Incr(env.Context(), env.Self.Lower(), slotNextTokenID)
	if err != nil {
		return 0, err
	}
	if err := repository.NewTokenRepository(env.DB()).Create(env.Context(), &model.Token{
		ContractAddress: env.Self.Lower(),
		TokenID:         id,
		Owner:           to.Lower(),
		Name:            name,
		URI:             uri,
		CreatedAt:       env.Time,
		UpdatedAt:       env.Time,
	}); err != nil {
		return 0, err
	}
	return id, env.Emit(EventTransfer, TransferEvent{From: chain.ZeroAddress, To: to, TokenID: id})
}

func getToken(env *chain.Env, tokens repository.TokenRepository, tokenID uint64) (*model.Token, error) {
	tok, err := tokens.Get(env.Context(), env.Self.Lower(), tokenID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	return tok, err
}

var ErrWrongContractKind = errors.New("contract kind mismatch")

func expectKind(ctx context.Context, c *chain.Chain, addr chain.Address, kind string) error {
	ct, err := c.Contract(ctx, addr)
	if err != nil {
		return err
	}
	if ct.Kind != kind {
		return fmt.Errorf("%w: %s is %s, want %s", ErrWrongContractKind, addr.Hex(), ct.Kind, kind)
	}
	return nil
}
