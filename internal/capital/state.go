package capital

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/quantdesk/tradecore/internal/pkg/logger"
)

// snapshot is the persisted form of a ledger, one JSON file per
// exchange. It is written as a complete record after every release and
// reset, and read in full at construction.
type snapshot struct {
	Exchange       string             `json:"exchange"`
	TotalCapital   float64            `json:"total_capital"`
	InitialCapital float64            `json:"initial_capital"`
	LockedCapital  map[string]float64 `json:"locked_capital"`
	PositionSizes  map[string]float64 `json:"position_sizes"`
	Stats          snapshotStats      `json:"stats"`
	DailyPnL       map[string]float64 `json:"daily_pnl"`
	DailyTrades    map[string]int     `json:"daily_trade_count"`
	LastUpdate     time.Time          `json:"last_update"`
}

type snapshotStats struct {
	TotalTrades   int     `json:"total_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	PeakCapital   float64 `json:"peak_capital"`
}

func stateFilePath(stateDir, exchange string) string {
	return filepath.Join(stateDir, exchange+"_capital_state.json")
}

// saveState persists the snapshot atomically: the record is written to a
// temp file in the same directory and renamed over the previous one, so
// a crash mid-write can never leave a truncated state file behind.
// Failures are logged and swallowed; the in-memory ledger stays
// authoritative for the running process. Callers must hold l.mu.
func (l *Ledger) saveState() {
	state := snapshot{
		Exchange:       l.exchange,
		TotalCapital:   l.totalCapital,
		InitialCapital: l.initialCapital,
		LockedCapital:  l.lockedCapital,
		PositionSizes:  l.positionSizes,
		Stats: snapshotStats{
			TotalTrades:   l.totalTrades,
			TotalPnL:      l.totalPnL,
			RealizedPnL:   l.realizedPnL,
			UnrealizedPnL: l.unrealizedPnL,
			MaxDrawdown:   l.maxDrawdown,
			PeakCapital:   l.peakCapital,
		},
		DailyPnL:    l.dailyPnL,
		DailyTrades: l.dailyTrades,
		LastUpdate:  l.now(),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logger.Error("capital state marshal failed", "exchange", l.exchange, "error", err.Error())
		return
	}

	dir := filepath.Dir(l.stateFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("capital state dir create failed", "path", dir, "error", err.Error())
		return
	}

	tmp, err := os.CreateTemp(dir, ".capital_state_*")
	if err != nil {
		logger.Error("capital state temp file failed", "exchange", l.exchange, "error", err.Error())
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		logger.Error("capital state write failed", "exchange", l.exchange, "error", err.Error())
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		logger.Error("capital state close failed", "exchange", l.exchange, "error", err.Error())
		return
	}
	if err := os.Rename(tmpName, l.stateFile); err != nil {
		os.Remove(tmpName)
		logger.Error("capital state rename failed", "exchange", l.exchange, "error", err.Error())
		return
	}

	logger.Debug("capital state saved", "exchange", l.exchange, "path", l.stateFile)
}

// loadState restores a previously persisted snapshot if one exists.
// Read or decode failures are logged and the ledger keeps its
// constructor state. Callers must hold l.mu (or run before the ledger
// is shared).
func (l *Ledger) loadState() {
	data, err := os.ReadFile(l.stateFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("no persisted capital state, starting fresh", "exchange", l.exchange)
		} else {
			logger.Error("capital state read failed", "exchange", l.exchange, "error", err.Error())
		}
		return
	}

	var state snapshot
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Error("capital state decode failed", "exchange", l.exchange, "error", err.Error())
		return
	}

	l.totalCapital = state.TotalCapital
	if state.LockedCapital != nil {
		l.lockedCapital = state.LockedCapital
	}
	if state.PositionSizes != nil {
		l.positionSizes = state.PositionSizes
	}
	if state.DailyPnL != nil {
		l.dailyPnL = state.DailyPnL
	}
	if state.DailyTrades != nil {
		l.dailyTrades = state.DailyTrades
	}
	l.totalTrades = state.Stats.TotalTrades
	l.totalPnL = state.Stats.TotalPnL
	l.realizedPnL = state.Stats.RealizedPnL
	l.unrealizedPnL = state.Stats.UnrealizedPnL
	l.maxDrawdown = state.Stats.MaxDrawdown
	l.peakCapital = state.Stats.PeakCapital

	logger.Info("capital state loaded",
		"exchange", l.exchange,
		"total_capital", l.totalCapital,
		"locked_symbols", len(l.lockedCapital),
	)
}
