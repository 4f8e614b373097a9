package model

import "time"

// Member 已注册用户（按合约地址隔离）
type Member struct {
	ContractAddress string `gorm:"primaryKey;type:varchar(42)"`
	UserAddress     string `gorm:"primaryKey;type:varchar(42)"`
	BlockNumber     uint64
	CreatedAt       time.Time
}

func (Member) TableName() string { return "members" }

// Post 帖子
type Post struct {
	ContractAddress string `gorm:"primaryKey;type:varchar(42)"`
	PostID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Owner           string `gorm:"type:varchar(42);index:idx_post_owner;not null"`
	Text            string `gorm:"type:text"`
	Image           string `gorm:"type:text"`
	Name            string `gorm:"type:varchar(255)"`
	Upvote          uint64 `gorm:"not null;default:0"`
	Downvote        uint64 `gorm:"not null;default:0"`
	TokenID         uint64
	Removed         bool `gorm:"not null;default:false"`
	BlockNumber     uint64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Post) TableName() string { return "posts" }

// Vote 投票记录，一个地址对一个帖子只能投一次
type Vote struct {
	ContractAddress string `gorm:"primaryKey;type:varchar(42)"`
	PostID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Voter           string `gorm:"primaryKey;type:varchar(42)"`
	Direction       int8   `gorm:"not null"` // 1:up, -1:down
	BlockNumber     uint64
	CreatedAt       time.Time
}

func (Vote) TableName() string { return "votes" }

const (
	VoteUp   int8 = 1
	VoteDown int8 = -1
)

// Token NFT
type Token struct {
	ContractAddress string `gorm:"primaryKey;type:varchar(42)"`
	TokenID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Owner           string `gorm:"type:varchar(42);index:idx_token_owner;not null"`
	Name            string `gorm:"type:varchar(255)"`
	URI             string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Token) TableName() string { return "tokens" }

// Activity 用户动态（由 indexer 从事件异步写入）
type Activity struct {
	ID              string  `gorm:"primaryKey;type:varchar(36)"`
	Address         string  `gorm:"type:varchar(42);index:idx_activity_addr_block"`
	ContractAddress string  `gorm:"type:varchar(42);index"`
	Event           string  `gorm:"type:varchar(64)"`
	PostID          *uint64 `gorm:"index"`
	TxHash          string  `gorm:"type:varchar(66);uniqueIndex:ux_activity_log"`
	LogIndex        int     `gorm:"uniqueIndex:ux_activity_log"`
	BlockNumber     uint64  `gorm:"index:idx_activity_addr_block"`
	CreatedAt       time.Time
}

func (Activity) TableName() string { return "activities" }
