// Package testdb opens a SQLite database with the ledger schema for package
// tests. Amounts are stored as TEXT so decimals round-trip exactly; the CHECK
// constraints and partial indexes of the migrations cast them back to numbers.
package testdb

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
)

// SystemPoolID mirrors the id seeded by the first migration.
var SystemPoolID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

var schema = []string{
	`CREATE TABLE members (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL DEFAULT 'member',
  display_name TEXT NOT NULL,
  balance TEXT NOT NULL DEFAULT '0',
  score INTEGER NOT NULL DEFAULT 0,
  security_lock_until DATETIME,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (kind = 'system' OR CAST(balance AS NUMERIC) >= 0)
);`,
	`CREATE TABLE transactions (
  id TEXT PRIMARY KEY,
  member_id TEXT NOT NULL,
  type TEXT NOT NULL,
  direction TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  balance_before TEXT,
  balance_after TEXT,
  reference_type TEXT,
  reference_id TEXT,
  description TEXT,
  metadata TEXT,
  reject_reason TEXT,
  created_at DATETIME,
  resolved_at DATETIME
);`,
	`CREATE TABLE quotas (
  id TEXT PRIMARY KEY,
  member_id TEXT NOT NULL,
  purchase_price TEXT NOT NULL,
  current_value TEXT NOT NULL,
  purchase_date DATETIME NOT NULL,
  status TEXT NOT NULL,
  valued_at DATETIME,
  sold_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE loans (
  id TEXT PRIMARY KEY,
  member_id TEXT NOT NULL,
  principal TEXT NOT NULL,
  interest_rate TEXT NOT NULL,
  installments INTEGER NOT NULL,
  total_repayment TEXT NOT NULL,
  installment_value TEXT NOT NULL,
  status TEXT NOT NULL,
  due_date DATETIME,
  total_paid TEXT NOT NULL DEFAULT '0',
  paid_installments_count INTEGER NOT NULL DEFAULT 0,
  approved_at DATETIME,
  paid_at DATETIME,
  overdue_notified_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (CAST(total_paid AS NUMERIC) >= 0 AND CAST(total_paid AS NUMERIC) <= CAST(total_repayment AS NUMERIC))
);`,
	`CREATE UNIQUE INDEX ux_loans_one_open_per_member ON loans (member_id) WHERE status IN ('PENDING', 'APPROVED');`,
	`CREATE TABLE listings (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  boosted_until DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE escrow_orders (
  id TEXT PRIMARY KEY,
  listing_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  seller_amount TEXT NOT NULL,
  fee_amount TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  installments INTEGER,
  loan_id TEXT,
  delivery_info TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_escrow_orders_listing ON escrow_orders (listing_id);`,
	`CREATE TABLE proposals (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  status TEXT NOT NULL,
  yes_votes INTEGER NOT NULL DEFAULT 0,
  no_votes INTEGER NOT NULL DEFAULT 0,
  created_by TEXT,
  closed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE votes (
  id TEXT PRIMARY KEY,
  proposal_id TEXT NOT NULL,
  member_id TEXT NOT NULL,
  choice TEXT NOT NULL,
  weight INTEGER NOT NULL,
  created_at DATETIME,
  CONSTRAINT ux_votes_proposal_member UNIQUE (proposal_id, member_id)
);`,
	`CREATE TABLE settlements (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  external_id TEXT UNIQUE,
  member_id TEXT NOT NULL,
  loan_id TEXT,
  purpose TEXT NOT NULL,
  method TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  failure_reason TEXT,
  pending_transaction_id TEXT NOT NULL,
  settled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
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
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh database named after the test with every table created
// and the system pool seeded.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
}

// OpenFile returns a file-backed database for tests that run writers on
// several goroutines. Transactions begin IMMEDIATE so writers queue on the
// busy timeout instead of failing.
func OpenFile(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cred30.db")
	return open(t, "file:"+path+"?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL")
}

func open(t testing.TB, dsn string) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	pool := models.Member{
		ID:          SystemPoolID,
		Kind:        enums.MemberKindSystem,
		DisplayName: "cred30 pool",
	}
	if err := conn.Create(&pool).Error; err != nil {
		t.Fatalf("seed system pool: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// SeedMember inserts a regular member with the given balance and score.
func SeedMember(t testing.TB, conn *gorm.DB, balance string, score int) *models.Member {
	t.Helper()

	member := &models.Member{
		Kind:        enums.MemberKindMember,
		DisplayName: "member " + uuid.NewString()[:8],
		Balance:     decimal.RequireFromString(balance),
		Score:       score,
	}
	if err := conn.Create(member).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return member
}

// Reload reads the member row back from the database.
func Reload(t testing.TB, conn *gorm.DB, id uuid.UUID) *models.Member {
	t.Helper()

	var member models.Member
	if err := conn.Where("id = ?", id).First(&member).Error; err != nil {
		t.Fatalf("reload member: %v", err)
	}
	return &member
}

// Logger discards output.
func Logger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// Outbox returns an outbox service writing to conn.
func Outbox(conn *gorm.DB) *outbox.Service {
	return outbox.NewService(outbox.NewRepository(conn), Logger())
}

// CountEvents returns how many outbox rows of the given type exist.
func CountEvents(t testing.TB, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()

	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return count
}
