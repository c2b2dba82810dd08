package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestMigrationsSeedSystemPoolAndGuards(t *testing.T) {
	checks := map[string][]string{
		"*_create_members.sql": {
			"'00000000-0000-0000-0000-000000000001', 'system'",
			"CHECK (kind = 'system' OR balance >= 0)",
		},
		"*_create_quotas_and_loans.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_loans_one_open_per_member",
			"CHECK (total_paid >= 0 AND total_paid <= total_repayment)",
		},
		"*_create_governance.sql": {
			"CONSTRAINT ux_votes_proposal_member UNIQUE (proposal_id, member_id)",
		},
		"*_create_settlements.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_settlements_reference",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_settlements_external_id",
		},
	}
	for pattern, statements := range checks {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		require.NoError(t, err)
		require.Len(t, matches, 1, pattern)
		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		for _, stmt := range statements {
			assert.True(t, strings.Contains(string(data), stmt), "%s missing %q", pattern, stmt)
		}
	}
}

func TestMigrationsApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_up?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, Run(ctx, sqlDB, Dialect(true), "migrations", "up"))

	var kind string
	require.NoError(t, conn.Raw("SELECT kind FROM members WHERE id = ?", "00000000-0000-0000-0000-000000000001").Scan(&kind).Error)
	assert.Equal(t, "system", kind)

	err = conn.Exec("INSERT INTO members (id, kind, display_name, balance) VALUES (?, 'member', 'm', -1)", "00000000-0000-0000-0000-0000000000aa").Error
	assert.Error(t, err, "negative member balance must be refused")

	require.NoError(t, Run(ctx, sqlDB, Dialect(true), "migrations", "down-to", "0"))
}

func TestDialect(t *testing.T) {
	assert.Equal(t, "postgres", Dialect(false))
	assert.Equal(t, "sqlite3", Dialect(true))
}
