package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erlendps/thingbooker/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestInitMigrationCreatesCoreTables(t *testing.T) {
	body, err := fs.ReadFile(migrations.FS, "00001_init.sql")
	require.NoError(t, err)
	sql := string(body)

	for _, table := range []string{
		"tb.users", "tb.groups", "tb.things", "tb.thing_rules",
		"tb.bookings", "tb.memberships", "tb.invite_tokens", "tb.email_jobs",
	} {
		assert.True(t, strings.Contains(sql, "CREATE TABLE "+table+" "), "missing %s", table)
	}
	assert.Contains(t, sql, "CHECK (end_date > start_date)")
	assert.Contains(t, sql, "CHECK (num_people >= 1)")
}
