package service

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/internal/cache"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

var ErrNoPostEvent = errors.New("receipt has no PostCreated event")

// Token NFT 查询结果
type Token struct {
	TokenID uint64        `json:"tokenId"`
	Owner   chain.Address `json:"owner"`
	Name    string        `json:"name"`
	URI     string        `json:"uri"`
}

// MediaService 社交合约的读写入口，读走缓存，写后同步清理缓存
type MediaService interface {
	Register(ctx context.Context, media, signer chain.Address) (*chain.Receipt, error)
	IsRegistered(ctx context.Context, media, user chain.Address) (bool, error)
	CreatePost(ctx context.Context, media, signer chain.Address, text, image, name string) (*contract.Post, *chain.Receipt, error)
	NextPostID(ctx context.Context, media chain.Address) (uint64, error)
	GetPost(ctx context.Context, media chain.Address, id uint64) (*contract.Post, error)
	ListPosts(ctx context.Context, media chain.Address) ([]contract.Post, error)
	Upvote(ctx context.Context, media, signer chain.Address, id uint64) (*chain.Receipt, error)
	Downvote(ctx context.Context, media, signer chain.Address, id uint64) (*chain.Receipt, error)
	RemovePost(ctx context.Context, media, signer chain.Address, id uint64) (*chain.Receipt, error)
	Token(ctx context.Context, factory chain.Address, id uint64) (*Token, error)
	Balance(ctx context.Context, factory, owner chain.Address) (uint64, error)
	ListActivity(ctx context.Context, user chain.Address, page, pageSize int) ([]*model.Activity, error)
}

type mediaService struct {
	chain      *chain.Chain
	cache      *cache.PostCache
	activities repository.ActivityRepository
}

// NewMediaService postCache 可以为 nil
func NewMediaService(c *chain.Chain, postCache *cache.PostCache, activities repository.ActivityRepository) MediaService {
	return &mediaService{chain: c, cache: postCache, activities: activities}
}

func (s *mediaService) bind(ctx context.Context, media chain.Address) (*contract.QuteeMedia, error) {
	return contract.BindQuteeMedia(ctx, s.chain, media)
}

func (s *mediaService) Register(ctx context.Context, media, signer chain.Address) (*chain.Receipt, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, err
	}
	return m.Connect(signer).RegisterUser(ctx)
}

func (s *mediaService) IsRegistered(ctx context.Context, media, user chain.Address) (bool, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return false, err
	}
	return m.IsUserRegistered(ctx, user)
}

func (s *mediaService) CreatePost(ctx context.Context, media, signer chain.Address, text, image, name string) (*contract.Post, *chain.Receipt, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, nil, err
	}
	rcpt, err := m.Connect(signer).CreatePost(ctx, text, image, name)
	if err != nil {
		return nil, rcpt, err
	}
	l, ok := lo.Find(rcpt.Logs, func(l chain.Log) bool { return l.Event == contract.EventPostCreated })
	if !ok {
		return nil, rcpt, ErrNoPostEvent
	}
	var ev contract.PostCreatedEvent
	if err := l.Decode(&ev); err != nil {
		return nil, rcpt, err
	}
	s.invalidate(ctx, media, ev.PostID, true)
	post, err := m.SearchPost(ctx, ev.PostID)
	return post, rcpt, err
}

func (s *mediaService) NextPostID(ctx context.Context, media chain.Address) (uint64, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return 0, err
	}
	return m.NextPostID(ctx)
}

func (s *mediaService) GetPost(ctx context.Context, media chain.Address, id uint64) (*contract.Post, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return m.SearchPost(ctx, id)
	}
	return s.cache.SearchPost(ctx, m, id)
}

func (s *mediaService) ListPosts(ctx context.Context, media chain.Address) ([]contract.Post, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return m.FetchPosts(ctx)
	}
	return s.cache.FetchPosts(ctx, m)
}

func (s *mediaService) Upvote(ctx context.Context, media, signer chain.Address, id uint64) (*chain.Receipt, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, err
	}
	rcpt, err := m.Connect(signer).VotePost(ctx, id)
	if err == nil {
		s.invalidate(ctx, media, id, false)
	}
	return rcpt, err
}

func (s *mediaService) Downvote(ctx context.Context, media, signer chain.Address, id uint64) (*chain.Receipt, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, err
	}
	rcpt, err := m.Connect(signer).DownVoteCourse(ctx, id)
	if err == nil {
		s.invalidate(ctx, media, id, false)
	}
	return rcpt, err
}

func (s *mediaService) RemovePost(ctx context.Context, media, signer chain.Address, id uint64) (*chain.Receipt, error) {
	m, err := s.bind(ctx, media)
	if err != nil {
		return nil, err
	}
	rcpt, err := m.Connect(signer).RemovePost(ctx, id)
	if err == nil {
		s.invalidate(ctx, media, id, true)
	}
	return rcpt, err
}

func (s *mediaService) Token(ctx context.Context, factory chain.Address, id uint64) (*Token, error) {
	f, err := contract.BindNFTFactory(ctx, s.chain, factory)
	if err != nil {
		return nil, err
	}
	owner, err := f.OwnerOf(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err := f.TokenName(ctx, id)
	if err != nil {
		return nil, err
	}
	uri, err := f.TokenURI(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Token{TokenID: id, Owner: owner, Name: name, URI: uri}, nil
}

func (s *mediaService) Balance(ctx context.Context, factory, owner chain.Address) (uint64, error) {
	f, err := contract.BindNFTFactory(ctx, s.chain, factory)
	if err != nil {
		return 0, err
	}
	return f.BalanceOf(ctx, owner)
}

func (s *mediaService) ListActivity(ctx context.Context, user chain.Address, page, pageSize int) ([]*model.Activity, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return s.activities.ListByAddress(ctx, user.Lower(), (page-1)*pageSize, pageSize)
}

func (s *mediaService) invalidate(ctx context.Context, media chain.Address, id uint64, index bool) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, media, id); err != nil {
		logger.Warn("invalidate post failed", zap.Uint64("post_id", id), zap.Error(err))
	}
	if index {
		if err := s.cache.InvalidateIndex(ctx, media); err != nil {
			logger.Warn("invalidate post index failed", zap.String("media", media.Hex()), zap.Error(err))
		}
	}
}
