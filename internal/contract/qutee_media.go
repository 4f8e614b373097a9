package contract

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
)

const (
	KindQuteeMedia = "QuteeMedia"

	EventUserRegistered = "UserRegistered"
	EventPostCreated    = "PostCreated"
	EventPostUpvoted    = "PostUpvoted"
	EventPostDownvoted  = "PostDownvoted"
	EventPostRemoved    = "PostRemoved"

	slotAdmin      = "admin"
	slotNFTFactory = "nftFactory"
	slotNextPostID = "nextPostId"
)

var (
	ErrInvalidAdmin      = chain.Revert("invalid admin address")
	ErrInvalidFactory    = chain.Revert("invalid nft factory")
	ErrAlreadyRegistered = chain.Revert("user already registered")
	ErrNotRegistered     = chain.Revert("user not registered")
	ErrEmptyPost         = chain.Revert("empty post")
	ErrPostNotFound      = chain.Revert("post does not exist")
	ErrSelfVote          = chain.Revert("cannot vote on own post")
	ErrAlreadyVoted      = chain.Revert("already voted")
	ErrNotAdmin          = chain.Revert("caller is not admin")
)

// Post searchPost / fetchPosts 的返回结构
type Post struct {
	PostID      uint64        `json:"postId"`
	PostOwner   chain.Address `json:"postOwner"`
	Text        string        `json:"text"`
	Image       string        `json:"image"`
	Name        string        `json:"name"`
	Upvote      uint64        `json:"upvote"`
	Downvote    uint64        `json:"downvote"`
	TokenID     uint64        `json:"tokenId"`
	BlockNumber uint64        `json:"blockNumber"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type UserRegisteredEvent struct {
	User chain.Address `json:"user"`
}

type PostCreatedEvent struct {
	PostID  uint64        `json:"postId"`
	Owner   chain.Address `json:"owner"`
	TokenID uint64        `json:"tokenId"`
	Name    string        `json:"name"`
}

type PostVotedEvent struct {
	PostID uint64        `json:"postId"`
	Voter  chain.Address `json:"voter"`
	Count  uint64        `json:"count"`
}

type PostRemovedEvent struct {
	PostID uint64        `json:"postId"`
	By     chain.Address `json:"by"`
}

// QuteeMedia 社交合约绑定：注册、发帖、点赞、点踩
type QuteeMedia struct {
	chain   *chain.Chain
	address chain.Address
	caller  chain.Address
}

// DeployQuteeMedia 部署社交合约，构造参数为 (admin, nftFactory)
func DeployQuteeMedia(ctx context.Context, c *chain.Chain, from, admin, nftFactory chain.Address) (*QuteeMedia, *chain.Receipt, error) {
	args := []chain.Address{admin, nftFactory}
	addr, rcpt, err := c.Deploy(ctx, from, KindQuteeMedia, args, func(env *chain.Env) error {
		if admin.IsZero() {
			return ErrInvalidAdmin
		}
		if nftFactory.IsZero() {
			return ErrInvalidFactory
		}
		kind, err := env.ContractKind(nftFactory)
		if errors.Is(err, chain.ErrContractNotFound) || (err == nil && kind != KindNFTFactory) {
			return ErrInvalidFactory
		}
		if err != nil {
			return err
		}
		storage := repository.NewStorageRepository(env.DB())
		self := env.Self.Lower()
		if err := storage.Set(env.Context(), self, slotAdmin, admin.Lower()); err != nil {
			return err
		}
		if err := storage.Set(env.Context(), self, slotNFTFactory, nftFactory.Lower()); err != nil {
			return err
		}
		return storage.Set(env.Context(), self, slotNextPostID, "0")
	})
	if err != nil {
		return nil, rcpt, err
	}
	return &QuteeMedia{chain: c, address: addr, caller: from}, rcpt, nil
}

// BindQuteeMedia 绑定已部署的社交合约
func BindQuteeMedia(ctx context.Context, c *chain.Chain, addr chain.Address) (*QuteeMedia, error) {
	if err := expectKind(ctx, c, addr, KindQuteeMedia); err != nil {
		return nil, err
	}
	deployer, _ := c.Signer(0)
	return &QuteeMedia{chain: c, address: addr, caller: deployer}, nil
}

func (m *QuteeMedia) Address() chain.Address { return m.address }

// Caller 当前绑定的发送者
func (m *QuteeMedia) Caller() chain.Address { return m.caller }

// Connect 返回以 signer 身份发送交易的副本
func (m *QuteeMedia) Connect(signer chain.Address) *QuteeMedia {
	cp := *m
	cp.caller = signer
	return &cp
}

// RegisterUser 注册调用者
func (m *QuteeMedia) RegisterUser(ctx context.Context) (*chain.Receipt, error) {
	return m.chain.Transact(ctx, m.caller, m.address, "registerUser", []any{}, func(env *chain.Env) error {
		members := repository.NewMemberRepository(env.DB())
		ok, err := members.Exists(env.Context(), env.Self.Lower(), env.Sender.Lower())
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyRegistered
		}
		if err := members.Create(env.Context(), &model.Member{
			ContractAddress: env.Self.Lower(),
			UserAddress:     env.Sender.Lower(),
			BlockNumber:     env.Block,
			CreatedAt:       env.Time,
		}); err != nil {
			return err
		}
		return env.Emit(EventUserRegistered, UserRegisteredEvent{User: env.Sender})
	})
}

func (m *QuteeMedia) IsUserRegistered(ctx context.Context, user chain.Address) (bool, error) {
	var ok bool
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		var err error
		ok, err = repository.NewMemberRepository(env.DB()).Exists(env.Context(), env.Self.Lower(), user.Lower())
		return err
	})
	return ok, err
}

// CreatePost 发帖并通过工厂给作者铸造 NFT
func (m *QuteeMedia) CreatePost(ctx context.Context, text, image, name string) (*chain.Receipt, error) {
	return m.chain.Transact(ctx, m.caller, m.address, "createPost", []any{text, image, name}, func(env *chain.Env) error {
		ok, err := repository.NewMemberRepository(env.DB()).Exists(env.Context(), env.Self.Lower(), env.Sender.Lower())
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotRegistered
		}
		if text == "" {
			return ErrEmptyPost
		}

		storage := repository.NewStorageRepository(env.DB())
		postID, err := storage.Incr(env.Context(), env.Self.Lower(), slotNextPostID)
		if err != nil {
			return err
		}
		factory, err := m.factoryAddress(env)
		if err != nil {
			return err
		}
		owner := env.Sender
		var tokenID uint64
		if err := env.Call(factory, func(sub *chain.Env) error {
			var err error
			tokenID, err = mintToken(sub, owner, name, image)
			return err
		}); err != nil {
			return err
		}

		if err := repository.NewPostRepository(env.DB()).Create(env.Context(), &model.Post{
			ContractAddress: env.Self.Lower(),
			PostID:          postID,
			Owner:           owner.Lower(),
			Text:            text,
			Image:           image,
			Name:            name,
			TokenID:         tokenID,
			BlockNumber:     env.Block,
			CreatedAt:       env.Time,
			UpdatedAt:       env.Time,
		}); err != nil {
			return err
		}
		return env.Emit(EventPostCreated, PostCreatedEvent{PostID: postID, Owner: owner, TokenID: tokenID, Name: name})
	})
}

// NextPostID 下一个帖子 ID，等于已创建帖子数
func (m *QuteeMedia) NextPostID(ctx context.Context) (uint64, error) {
	var n uint64
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		var err error
		n, err = repository.NewStorageRepository(env.DB()).Uint(env.Context(), env.Self.Lower(), slotNextPostID)
		return err
	})
	return n, err
}

// SearchPost 按 ID 查询帖子
func (m *QuteeMedia) SearchPost(ctx context.Context, postID uint64) (*Post, error) {
	var out *Post
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		p, err := livePost(env, repository.NewPostRepository(env.DB()), postID)
		if err != nil {
			return err
		}
		out, err = toPost(p)
		return err
	})
	return out, err
}

// FetchPosts 全部帖子，按 ID 升序
func (m *QuteeMedia) FetchPosts(ctx context.Context) ([]Post, error) {
	var out []Post
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		rows, err := repository.NewPostRepository(env.DB()).List(env.Context(), env.Self.Lower())
		if err != nil {
			return err
		}
		out, err = toPosts(rows)
		return err
	})
	return out, err
}

// FetchPostsByIDs 批量读取，跳过不存在或已删除的帖子
func (m *QuteeMedia) FetchPostsByIDs(ctx context.Context, ids []uint64) ([]Post, error) {
	var out []Post
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		rows, err := repository.NewPostRepository(env.DB()).ListByIDs(env.Context(), env.Self.Lower(), ids)
		if err != nil {
			return err
		}
		out, err = toPosts(rows)
		return err
	})
	return out, err
}

// PostIDs 当前可见帖子 ID 列表
func (m *QuteeMedia) PostIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		return env.DB().WithContext(env.Context()).
			Model(&model.Post{}).
			Where("contract_address = ? AND removed = ?", env.Self.Lower(), false).
			Order("post_id ASC").
			Pluck("post_id", &ids).Error
	})
	return ids, err
}

// VotePost 点赞
func (m *QuteeMedia) VotePost(ctx context.Context, postID uint64) (*chain.Receipt, error) {
	return m.vote(ctx, "VotePost", postID, model.VoteUp)
}

// DownVoteCourse 点踩
func (m *QuteeMedia) DownVoteCourse(ctx context.Context, postID uint64) (*chain.Receipt, error) {
	return m.vote(ctx, "downVoteCourse", postID, model.VoteDown)
}

func (m *QuteeMedia) vote(ctx context.Context, method string, postID uint64, direction int8) (*chain.Receipt, error) {
	return m.chain.Transact(ctx, m.caller, m.address, method, []any{postID}, func(env *chain.Env) error {
		posts := repository.NewPostRepository(env.DB())
		p, err := livePost(env, posts, postID)
		if err != nil {
			return err
		}
		if p.Owner == env.Sender.Lower() {
			return ErrSelfVote
		}
		votes := repository.NewVoteRepository(env.DB())
		prev, err := votes.Get(env.Context(), env.Self.Lower(), postID, env.Sender.Lower())
		if err != nil {
			return err
		}
		if prev != nil {
			return ErrAlreadyVoted
		}
		if err := votes.Create(env.Context(), &model.Vote{
			ContractAddress: env.Self.Lower(),
			PostID:          postID,
			Voter:           env.Sender.Lower(),
			Direction:       direction,
			BlockNumber:     env.Block,
			CreatedAt:       env.Time,
		}); err != nil {
			return err
		}
		if err := posts.AddVote(env.Context(), env.Self.Lower(), postID, direction); err != nil {
			return err
		}

		event, count := EventPostUpvoted, p.Upvote+1
		if direction == model.VoteDown {
			event, count = EventPostDownvoted, p.Downvote+1
		}
		return env.Emit(event, PostVotedEvent{PostID: postID, Voter: env.Sender, Count: count})
	})
}

// RemovePost 管理员隐藏帖子
func (m *QuteeMedia) RemovePost(ctx context.Context, postID uint64) (*chain.Receipt, error) {
	return m.chain.Transact(ctx, m.caller, m.address, "removePost", []any{postID}, func(env *chain.Env) error {
		admin, err := m.adminAddress(env)
		if err != nil {
			return err
		}
		if env.Sender != admin {
			return ErrNotAdmin
		}
		posts := repository.NewPostRepository(env.DB())
		if _, err := livePost(env, posts, postID); err != nil {
			return err
		}
		if err := posts.MarkRemoved(env.Context(), env.Self.Lower(), postID); err != nil {
			return err
		}
		return env.Emit(EventPostRemoved, PostRemovedEvent{PostID: postID, By: env.Sender})
	})
}

func (m *QuteeMedia) Admin(ctx context.Context) (chain.Address, error) {
	var a chain.Address
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		var err error
		a, err = m.adminAddress(env)
		return err
	})
	return a, err
}

func (m *QuteeMedia) NFTFactory(ctx context.Context) (chain.Address, error) {
	var a chain.Address
	err := m.chain.View(ctx, m.address, func(env *chain.Env) error {
		var err error
		a, err = m.factoryAddress(env)
		return err
	})
	return a, err
}

func (m *QuteeMedia) adminAddress(env *chain.Env) (chain.Address, error) {
	return addressSlot(env, slotAdmin)
}

func (m *QuteeMedia) factoryAddress(env *chain.Env) (chain.Address, error) {
	return addressSlot(env, slotNFTFactory)
}

func addressSlot(env *chain.Env, slot string) (chain.Address, error) {
	v, _, err := repository.NewStorageRepository(env.DB()).Get(env.Context(), env.Self.Lower(), slot)
	if err != nil {
		return chain.ZeroAddress, err
	}
	if v == "" {
		return chain.ZeroAddress, nil
	}
	return chain.ParseAddress(v)
}

func livePost(env *chain.Env, posts repository.PostRepository, postID uint64) (*model.Post, error) {
	p, err := posts.Get(env.Context(), env.Self.Lower(), postID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Removed {
		return nil, ErrPostNotFound
	}
	return p, nil
}

func toPost(p *model.Post) (*Post, error) {
	owner, err := chain.ParseAddress(p.Owner)
	if err != nil {
		return nil, err
	}
	return &Post{
		PostID:      p.PostID,
		PostOwner:   owner,
		Text:        p.Text,
		Image:       p.Image,
		Name:        p.Name,
		Upvote:      p.Upvote,
		Downvote:    p.Downvote,
		TokenID:     p.TokenID,
		BlockNumber: p.BlockNumber,
		CreatedAt:   p.CreatedAt,
	}, nil
}

func toPosts(rows []*model.Post) ([]Post, error) {
	out := make([]Post, 0, len(rows))
	for _, r := range rows {
		p, err := toPost(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
