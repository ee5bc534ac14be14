package capital

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	l1, err := New("bybit", 1000, 0.8, dir)
	require.NoError(t, err)
	require.True(t, l1.Reserve("BTCUSDT", 500, false))
	require.True(t, l1.Reserve("ETHUSDT", 200, false))
	l1.Release("BTCUSDT", 50, 0)

	// A new session against the same state dir: the snapshot overrides
	// the initial capital figure and restores the surviving lock.
	l2, err := New("bybit", 99999, 0.8, dir)
	require.NoError(t, err)

	stats := l2.Stats()
	assert.InDelta(t, 1050.0, stats.TotalCapital, 1e-9)
	assert.InDelta(t, 200.0, stats.LockedCapital, 1e-9)
	assert.InDelta(t, 1050.0, stats.PeakCapital, 1e-9)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, []string{"ETHUSDT"}, l2.LockedSymbols())
}

func TestSnapshotRoundTripIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	l1, err := New("bybit", 1000, 0.8, dir)
	require.NoError(t, err)
	require.True(t, l1.Reserve("BTCUSDT", 500, false))
	l1.Release("BTCUSDT", -75, 0)

	before := readSnapshotFields(t, filepath.Join(dir, "bybit_capital_state.json"))

	// Load into a fresh ledger and persist immediately: every field but
	// the write timestamp must come back unchanged.
	l2, err := New("bybit", 1000, 0.8, dir)
	require.NoError(t, err)
	l2.Persist()

	after := readSnapshotFields(t, filepath.Join(dir, "bybit_capital_state.json"))
	assert.Equal(t, before, after)
}

func TestCorruptStateFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bybit_capital_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l, err := New("bybit", 1000, 0.8, dir)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, l.Stats().TotalCapital, 1e-9)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()

	l, err := New("bybit", 1000, 0.8, dir)
	require.NoError(t, err)
	l.Release("BTCUSDT", 10, 0)
	l.Persist()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bybit_capital_state.json", entries[0].Name())
}

// readSnapshotFields parses a state file with the volatile write
// timestamp stripped.
func readSnapshotFields(t *testing.T, path string) map[string]interface{} {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	delete(fields, "last_update")
	return fields
}
