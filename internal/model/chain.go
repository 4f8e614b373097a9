package model

import "time"

// Account 链上外部账户（只记录 nonce）
type Account struct {
	ChainID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Address   string `gorm:"primaryKey;type:varchar(42)"`
	Nonce     uint64 `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (Account) TableName() string { return "accounts" }

// Block 区块头（automine 模式下一笔交易一个块）
type Block struct {
	ChainID    int64     `gorm:"primaryKey;autoIncrement:false"`
	Number     uint64    `gorm:"primaryKey;autoIncrement:false"`
	Hash       string    `gorm:"type:varchar(66);uniqueIndex"`
	ParentHash string    `gorm:"type:varchar(66)"`
	TxCount    int       `gorm:"not null;default:0"`
	Timestamp  time.Time `gorm:"index"`
}

func (Block) TableName() string { return "blocks" }

// Contract 已部署合约
type Contract struct {
	Address         string `gorm:"primaryKey;type:varchar(42)"`
	ChainID         int64  `gorm:"index:idx_contract_chain;not null"`
	Network         string `gorm:"type:varchar(32)"`
	Kind            string `gorm:"type:varchar(64);index;not null"`
	Deployer        string `gorm:"type:varchar(42);index"`
	TxHash          string `gorm:"type:varchar(66)"`
	BlockNumber     uint64
	ConstructorArgs string `gorm:"type:text"` // JSON 数组
	CreatedAt       time.Time
}

func (Contract) TableName() string { return "contracts" }

// Transaction 交易及回执
type Transaction struct {
	Hash            string `gorm:"primaryKey;type:varchar(66)"`
	ChainID         int64  `gorm:"index:idx_tx_chain_block;not null"`
	BlockNumber     uint64 `gorm:"index:idx_tx_chain_block"`
	From            string `gorm:"column:from_address;type:varchar(42);index"`
	To              string `gorm:"column:to_address;type:varchar(42);index"`
	ContractAddress string `gorm:"type:varchar(42);index"`
	Nonce           uint64
	Method          string `gorm:"type:varchar(64)"`
	Input           string `gorm:"type:text"`
	Status          int8   `gorm:"not null"` // 1:success, 0:reverted
	RevertReason    string `gorm:"type:varchar(255)"`
	Logs            []EventLog `gorm:"foreignKey:TxHash;references:Hash"`
	CreatedAt       time.Time
}

func (Transaction) TableName() string { return "transactions" }

const (
	TxStatusReverted int8 = 0
	TxStatusSuccess  int8 = 1
)

// EventLog 合约事件
type EventLog struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	TxHash      string `gorm:"type:varchar(66);index;uniqueIndex:ux_log_tx_index"`
	LogIndex    int    `gorm:"uniqueIndex:ux_log_tx_index"`
	ChainID     int64
	BlockNumber uint64 `gorm:"index"`
	Address     string `gorm:"type:varchar(42);index"`
	Event       string `gorm:"type:varchar(64);index"`
	Data        string `gorm:"type:text"` // JSON
	CreatedAt   time.Time
}

func (EventLog) TableName() string { return "event_logs" }

// StorageSlot 合约的简单键值存储（计数器、地址参数）
type StorageSlot struct {
	ContractAddress string `gorm:"primaryKey;type:varchar(42)"`
	Slot            string `gorm:"primaryKey;type:varchar(64)"`
	Value           string `gorm:"type:text"`
}

func (StorageSlot) TableName() string { return "storage_slots" }
