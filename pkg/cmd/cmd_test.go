package cmd

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	assert.Equal(t, "postgres", parseProvider("postgres://u:p@db/cadence", supportedPersistenceProviders))
	assert.Equal(t, "postgresql", parseProvider("postgresql://db/cadence", supportedPersistenceProviders))
	assert.Equal(t, "file", parseProvider("file:///var/lib/cadence", supportedPersistenceProviders))
	assert.Equal(t, "file", parseProvider("./data", supportedPersistenceProviders))
	assert.Empty(t, parseProvider("mongodb://db", supportedPersistenceProviders))
	assert.Empty(t, parseProvider("redis://localhost:6379/0", supportedPersistenceProviders))
	assert.Equal(t, "redis", parseProvider("redis://localhost:6379/0", supportedLedgerProviders))
}

func TestNewPersistence_Unsupported(t *testing.T) {
	_, err := NewPersistence(t.Context(), slog.Default(), "mongodb://db")
	require.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = NewLedger(t.Context(), slog.Default(), "memcached://cache", t.TempDir(), nil)
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "postgres", Describe("postgres://user:secret@db/cadence"))
	assert.Equal(t, "file (./data)", Describe("./data"))
}

func TestNewPersistenceAndLedger_File(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPersistence(t.Context(), slog.Default(), "file://"+dir)
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, store)

	ledger, err := NewLedger(t.Context(), slog.Default(), "", "file://"+dir, store)
	require.NoError(t, err)
	assert.IsType(t, &file.Ledger{}, ledger)

	ledger, err = NewLedger(t.Context(), slog.Default(), filepath.Join(dir, "ledger"), "file://"+dir, store)
	require.NoError(t, err)
	assert.NoError(t, ledger.HealthCheck(t.Context()))
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("", slog.Default(), "")
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = NewEventBus("gochannel", slog.Default(), "")
	require.NoError(t, err)
	require.NotNil(t, bus)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", slog.Default(), "")
	assert.Error(t, err)

	_, err = NewEventBus("nats", slog.Default(), "")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}
