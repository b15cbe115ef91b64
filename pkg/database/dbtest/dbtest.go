// Package dbtest 提供基于内存 sqlite 的测试数据库
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"CredentialDesk/pkg/database"
)

// New 创建已迁移的内存数据库
func New(t *testing.T) *database.Postgres {
	t.Helper()
	db, _ := Open(t)
	return db
}

// Open 同 New，同时返回底层 gorm 句柄，便于测试注册回调
func Open(t *testing.T) (*database.Postgres, *gorm.DB) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// 内存库每个连接独立，只保留一个连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := database.New(gdb)
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, gdb
}
