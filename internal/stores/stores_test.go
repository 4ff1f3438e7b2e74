package stores

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durable-lists/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.DBConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "lists.db")}

	e, err := Open(ctx, cfg)
	require.NoError(t, err)
	_, err = e.Quests.CreateCharacter(ctx, "hero")
	require.NoError(t, err)
	e.Close()

	// Tables survive reopening.
	e, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer e.Close()
	characters, _, err := e.Quests.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, characters)
	n, err := e.Flights.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DBConfig{Driver: "mysql"})
	assert.Error(t, err)
}
