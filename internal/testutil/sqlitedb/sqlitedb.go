// Package sqlitedb opens an in-memory SQLite database carrying the same
// tables and unique constraints as the postgres migrations.
package sqlitedb

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var counter atomic.Int64

var schema = []string{
	`CREATE TABLE transactions (
		id INTEGER PRIMARY KEY,
		lead_id INTEGER NULL,
		gateway TEXT NOT NULL,
		gateway_txn_id TEXT NOT NULL,
		gateway_order_id TEXT NOT NULL DEFAULT '',
		asset_id TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_response TEXT NOT NULL DEFAULT '{}',
		settled_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (gateway, gateway_txn_id)
	)`,
	`CREATE TABLE transaction_audits (
		id INTEGER PRIMARY KEY,
		transaction_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		reported_status TEXT NOT NULL,
		applied BOOLEAN NOT NULL DEFAULT 0,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE leads (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		nft_purchased TEXT NOT NULL DEFAULT '',
		contract_address TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		payment_status TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		amount NUMERIC NULL,
		currency TEXT NOT NULL DEFAULT '',
		purchased_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE deliveries (
		id INTEGER PRIMARY KEY,
		transaction_id INTEGER NOT NULL UNIQUE,
		gateway TEXT NOT NULL,
		gateway_txn_id TEXT NOT NULL,
		asset_id TEXT NOT NULL DEFAULT '',
		buyer_email TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at DATETIME NOT NULL,
		claimed_at DATETIME NULL,
		delivered_at DATETIME NULL,
		contract_address TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE checkout_orders (
		id INTEGER PRIMARY KEY,
		gateway TEXT NOT NULL,
		gateway_order_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		buyer_name TEXT NOT NULL DEFAULT '',
		buyer_phone TEXT NOT NULL DEFAULT '',
		buyer_address TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		expires_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (gateway, gateway_order_id)
	)`,
	`CREATE TABLE operator_audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT NULL,
		user_agent TEXT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh database private to the test. The pool is limited to
// one connection so concurrent callers serialize like row locks would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
