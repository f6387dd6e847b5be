// Package dbtest opens isolated in-memory sqlite databases carrying the
// service schema. The DDL mirrors pkg/migrate/migrations in sqlite dialect.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		price TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		negotiation_enabled BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE negotiations (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		product_title TEXT NOT NULL,
		product_price TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		accepted_message_id TEXT,
		agreed_amount TEXT,
		closed_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_negotiations_open_buyer_product ON negotiations (buyer_id, product_id) WHERE status = 'OPEN'`,
	`CREATE TABLE negotiation_messages (
		id TEXT PRIMARY KEY,
		negotiation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		sender_role TEXT NOT NULL,
		sender_id TEXT,
		kind TEXT NOT NULL,
		amount TEXT,
		text TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_negotiation_messages_seq ON negotiation_messages (negotiation_id, seq)`,
	`CREATE TABLE commitments (
		id TEXT PRIMARY KEY,
		negotiation_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		agreed_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		commit_expires_at DATETIME NOT NULL,
		paid_at DATETIME,
		released_at DATETIME,
		payment_reference TEXT,
		checkout_session_id TEXT,
		checkout_session_expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_commitments_negotiation ON commitments (negotiation_id)`,
	`CREATE TABLE purchase_tokens (
		id TEXT PRIMARY KEY,
		commitment_id TEXT NOT NULL,
		negotiation_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		token_hash TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		redeemed_at DATETIME,
		invalidated_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_purchase_tokens_commitment ON purchase_tokens (commitment_id)`,
	`CREATE UNIQUE INDEX ux_purchase_tokens_hash ON purchase_tokens (token_hash)`,
	`CREATE TABLE nyp_entitlement_overrides (
		user_id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL,
		updated_by TEXT,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE notification_preferences (
		user_id TEXT PRIMARY KEY,
		sms_negotiations_enabled BOOLEAN NOT NULL DEFAULT 0,
		phone_e164 TEXT,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a fresh database with the full schema applied. A single
// connection keeps the shared-cache database alive and serializes writers.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:nyp_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
