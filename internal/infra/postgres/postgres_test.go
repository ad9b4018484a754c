package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
)

func TestMigrationFiles_OrderedAndEmbedded(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"0001_init.up.sql", "0002_aviation.up.sql", "0003_content.up.sql"}, files)

	for _, f := range files {
		raw, err := migrationFS.ReadFile("migrations/" + f)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS", f)
	}
}

func TestMigrations_CoverEveryTable(t *testing.T) {
	var all strings.Builder
	files, err := MigrationFiles()
	require.NoError(t, err)
	for _, f := range files {
		raw, err := migrationFS.ReadFile("migrations/" + f)
		require.NoError(t, err)
		all.Write(raw)
	}

	for _, table := range []string{
		"leads", "accounts", "opportunities", "pending_lead_imports", "webhook_logs",
		"fallback_airports", "aircraft", "trusted_operators", "aircraft_locations",
		"quotes", "open_legs", "email_templates",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestListLeadsQuery(t *testing.T) {
	query, args, err := listLeadsQuery(domain.LeadFilter{UserID: "u-1", Status: "new", Limit: 5}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "FROM leads WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 5")
	assert.Equal(t, []any{"u-1", "new"}, args)
}

func TestListLeadsQuery_NoFilters(t *testing.T) {
	query, args, err := listLeadsQuery(domain.LeadFilter{}).ToSql()
	require.NoError(t, err)

	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "LIMIT")
	assert.Empty(t, args)
}

func TestMarkConvertedQuery_GuardsStatus(t *testing.T) {
	at := time.Date(2025, 10, 8, 12, 0, 0, 0, time.UTC)
	query, args, err := markConvertedQuery("lead-1", at)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "UPDATE leads SET status = $1, converted_at = $2, updated_at = $3"))
	assert.Contains(t, query, "WHERE id = $4 AND status <> $5")
	assert.Contains(t, query, "RETURNING id, user_id")
	assert.Equal(t, []any{"converted", at, at, "lead-1", "converted"}, args)
}

func TestUpdateLeadQuery_OpenGuardsStatus(t *testing.T) {
	query, args, err := updateLeadQuery("lead-1", map[string]any{"status": "contacted"}, true)
	require.NoError(t, err)

	assert.Contains(t, query, "WHERE id = $3 AND status <> $4")
	assert.Equal(t, "contacted", args[0])
	assert.Equal(t, []any{"lead-1", "converted"}, args[2:])

	query, _, err = updateLeadQuery("lead-1", map[string]any{"notes": "x"}, false)
	require.NoError(t, err)
	assert.NotContains(t, query, "status <>")
}
