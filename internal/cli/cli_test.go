package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremodel/coremodel/internal/app"
	"github.com/coremodel/coremodel/internal/events"
	"github.com/coremodel/coremodel/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func sqliteArgs(t *testing.T) []string {
	t.Helper()
	t.Setenv("REDIS_URL", "")
	return []string{
		"--backend", "sqlite",
		"--database-url", filepath.Join(t.TempDir(), "datactl.db"),
		"--log-level", "error",
	}
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	out, err := execute(t, "version")
	require.NoError(t, err, "version must not need configuration")
	assert.Equal(t, "datactl v"+Version+" ("+GitCommit+")\n", out)
}

func TestSchemaCommand_Table(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	out, err := execute(t, "schema")
	require.NoError(t, err)

	assert.Contains(t, out, "User.email")
	assert.Contains(t, out, "users.email")
	assert.Contains(t, out, "unique, required")
	assert.Contains(t, out, "core_entities.owner_id")
	assert.Contains(t, out, "User.id")
	assert.Contains(t, out, `default "Standard User"`)
	assert.Contains(t, out, "(2 entities)")
}

func TestSchemaCommand_JSON(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	out, err := execute(t, "schema", "--json")
	require.NoError(t, err)

	var schema []model.EntitySpec
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, model.Schema, schema)
}

func TestMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "migrate", "status", "--backend", "sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestMigrateCommands_SQLite(t *testing.T) {
	args := sqliteArgs(t)

	out, err := execute(t, append([]string{"migrate", "status"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.NotContains(t, out, "applied")

	out, err = execute(t, append([]string{"migrate", "up"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 migration(s), schema version 2")

	out, err = execute(t, append([]string{"migrate", "up"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0 migration(s)")

	out, err = execute(t, append([]string{"migrate", "status"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
	assert.NotContains(t, out, "pending")

	out, err = execute(t, append([]string{"migrate", "down"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")
}

func TestMigrateCommands_Gorm(t *testing.T) {
	args := []string{
		"--backend", "gorm",
		"--gorm-dialect", "sqlite",
		"--database-url", filepath.Join(t.TempDir(), "gorm.db"),
		"--log-level", "error",
	}

	out, err := execute(t, append([]string{"migrate", "up"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "AutoMigrate")

	_, err = execute(t, append([]string{"migrate", "status"}, args...)...)
	assert.ErrorIs(t, err, app.ErrUnsupportedForGorm)
}

func TestSeedCommand(t *testing.T) {
	args := sqliteArgs(t)

	out, err := execute(t, append([]string{
		"seed", "--migrate", "--json",
		"--email", "ada@example.com", "--name", "Ada",
		"--title", "First", "--content", "hello",
	}, args...)...)
	require.NoError(t, err)

	var first seedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.True(t, first.UserCreated)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, model.DefaultRole, first.Role)
	assert.NotEmpty(t, first.UserID)
	assert.NotEmpty(t, first.EntityID)

	out, err = execute(t, append([]string{"seed", "--json", "--email", "ada@example.com"}, args...)...)
	require.NoError(t, err)

	var second seedOutput
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.False(t, second.UserCreated)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Empty(t, second.EntityID)
}

func TestSeedCommand_PlainOutput(t *testing.T) {
	args := sqliteArgs(t)

	out, err := execute(t, append([]string{
		"seed", "--migrate", "--email", "root@example.com", "--role", model.RoleAdmin,
	}, args...)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "user "))
	assert.Contains(t, out, "created (root@example.com)")
}

func TestSeedCommand_Validation(t *testing.T) {
	args := sqliteArgs(t)

	_, err := execute(t, append([]string{"seed", "--migrate"}, args...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")

	_, err = execute(t, append([]string{
		"seed", "--migrate", "--email", "a@example.com", "--title", "T",
	}, args...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--content")
}

func TestEventsCommand_RequiresRedis(t *testing.T) {
	_, err := execute(t, append([]string{"events", "tail"}, sqliteArgs(t)...)...)
	assert.ErrorIs(t, err, errRedisRequired)

	_, err = execute(t, append([]string{"events", "dlq"}, sqliteArgs(t)...)...)
	assert.ErrorIs(t, err, errRedisRequired)
}

func TestPrintEvent(t *testing.T) {
	ctx := context.Background()
	ev := events.Event{Type: events.EntityDeleted, ID: "e1", OwnerID: "u1", OccurredAt: 1_700_000_000_000_000}

	var buf bytes.Buffer
	require.NoError(t, printEvent(&buf, false)(ctx, "1-0", ev))
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "1-0 2023-11-14T22:13:20Z entity.deleted"), line)
	assert.Contains(t, line, "id=e1 owner=u1\n")

	buf.Reset()
	require.NoError(t, printEvent(&buf, true)(ctx, "2-0", ev))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "2-0", got["stream_id"])
	assert.Equal(t, "entity.deleted", got["type"])
	assert.Equal(t, "u1", got["owner_id"])
}
