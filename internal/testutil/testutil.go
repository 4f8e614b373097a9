// Package testutil 提供测试用的内存数据库与模拟链
package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/pkg/database"
)

const (
	TestChainID = 31337
	TestSeed    = "test test test test test test test test test test test junk"
)

// NewDB 打开 sqlite 内存库并迁移全部表
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { _ = database.Close(db) })
	return db
}

// NewChain 在新内存库上创建模拟链，signers 个账户
func NewChain(tb testing.TB, signers int) *chain.Chain {
	tb.Helper()
	return NewChainOnDB(tb, NewDB(tb), signers)
}

func NewChainOnDB(tb testing.TB, db *gorm.DB, signers int) *chain.Chain {
	tb.Helper()
	c, err := chain.New(context.Background(), db, chain.Options{
		ChainID: TestChainID,
		Network: "hardhat",
		Signers: chain.DeriveSigners(TestSeed, signers),
	})
	if err != nil {
		tb.Fatalf("new chain: %v", err)
	}
	return c
}
