package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "00001_init.sql", entries[0].Name())

	body, err := fs.ReadFile(FS, "00001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"accounts", "master_secrets", "xreq_tokens", "security_metrics", "security_violations"} {
		require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}
	require.True(t, strings.Contains(string(body), "-- +goose Down"))
}

func TestUpUsesEmbeddedRoot(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Up(context.Background(), nil))
	require.Equal(t, ".", gotDir)
}

func TestUpWrapsFailure(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }

	err := Up(context.Background(), nil)
	require.ErrorIs(t, err, boom)
}
