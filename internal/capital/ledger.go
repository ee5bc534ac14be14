package capital

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quantdesk/tradecore/internal/pkg/logger"
	"github.com/quantdesk/tradecore/internal/pkg/metrics"
)

// Ledger governs the shared capital pool of one exchange. Any number of
// worker goroutines reserve capital before opening positions and release
// it with the realized result on close; a single mutex spans the whole
// allocation-ceiling check so two concurrent reservations can never both
// pass when their combined amount would breach it.
type Ledger struct {
	exchange           string
	initialCapital     float64
	maxAllocationRatio float64
	stateFile          string

	mu            sync.Mutex
	totalCapital  float64
	lockedCapital map[string]float64
	positionSizes map[string]float64
	dailyPnL      map[string]float64
	dailyTrades   map[string]int

	totalTrades   int
	totalPnL      float64
	realizedPnL   float64
	unrealizedPnL float64
	maxDrawdown   float64
	peakCapital   float64

	now func() time.Time
}

// Stats is a point-in-time snapshot of the ledger's accounting.
type Stats struct {
	TotalTrades      int     `json:"total_trades"`
	TotalPnL         float64 `json:"total_pnl"`
	RealizedPnL      float64 `json:"realized_pnl"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	PeakCapital      float64 `json:"peak_capital"`
	TotalCapital     float64 `json:"total_capital"`
	InitialCapital   float64 `json:"initial_capital"`
	AvailableCapital float64 `json:"available_capital"`
	LockedCapital    float64 `json:"locked_capital"`
	AllocationRatio  float64 `json:"allocation_ratio"`
	LockedSymbols    int     `json:"locked_symbols"`
	ROI              float64 `json:"roi"`
}

// New builds the ledger for one exchange. A snapshot persisted under
// stateDir from a previous session overrides initialCapital. The ratio
// must lie in (0,1] and initial capital must not be negative; both fail
// fast here rather than silently clamping.
func New(exchange string, initialCapital, maxAllocationRatio float64, stateDir string) (*Ledger, error) {
	if maxAllocationRatio <= 0 || maxAllocationRatio > 1 {
		return nil, fmt.Errorf("capital: max allocation ratio %v outside (0,1]", maxAllocationRatio)
	}
	if initialCapital < 0 {
		return nil, fmt.Errorf("capital: negative initial capital %v", initialCapital)
	}

	exchange = strings.ToLower(exchange)
	l := &Ledger{
		exchange:           exchange,
		initialCapital:     initialCapital,
		maxAllocationRatio: maxAllocationRatio,
		stateFile:          stateFilePath(stateDir, exchange),
		totalCapital:       initialCapital,
		lockedCapital:      make(map[string]float64),
		positionSizes:      make(map[string]float64),
		dailyPnL:           make(map[string]float64),
		dailyTrades:        make(map[string]int),
		peakCapital:        initialCapital,
		now:                time.Now,
	}

	// A persisted snapshot from a previous session is authoritative.
	// Load failures are logged and the ledger starts fresh.
	l.loadState()

	logger.Info("capital ledger ready",
		"exchange", exchange,
		"total_capital", l.totalCapital,
		"max_allocation_ratio", maxAllocationRatio,
		"locked_symbols", len(l.lockedCapital),
	)
	return l, nil
}

// Reserve attempts to lock capital for a position on symbol. It returns
// false when the reservation would push the locked total past the
// allocation ceiling, or when the symbol already holds a reservation
// (callers must Release before reserving again). With checkOnly the
// ceiling is evaluated but nothing is locked.
//
// A false return is the expected outcome under contention, not an error.
func (l *Ledger) Reserve(symbol string, amount float64, checkOnly bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.lockedCapital[symbol]; held {
		metrics.CapitalReserveRejects.WithLabelValues(l.exchange, "already_locked").Inc()
		logger.Warn("capital reserve rejected: symbol already locked",
			"exchange", l.exchange,
			"symbol", symbol,
			"held", l.lockedCapital[symbol],
			"requested", amount,
		)
		return false
	}

	totalLocked := l.lockedTotalLocked()
	maxAllowed := l.totalCapital * l.maxAllocationRatio

	if totalLocked+amount > maxAllowed {
		metrics.CapitalReserveRejects.WithLabelValues(l.exchange, "ceiling").Inc()
		logger.Warn("capital reserve rejected: allocation ceiling",
			"exchange", l.exchange,
			"symbol", symbol,
			"requested", amount,
			"locked", totalLocked,
			"ceiling", maxAllowed,
		)
		return false
	}

	if !checkOnly {
		l.lockedCapital[symbol] = amount
		metrics.CapitalAllocationRatio.WithLabelValues(l.exchange).Set(l.allocationRatioLocked())
		logger.Info("capital reserved",
			"exchange", l.exchange,
			"symbol", symbol,
			"amount", amount,
			"locked_total", totalLocked+amount,
		)
	}
	return true
}

// Release unlocks the symbol's reservation and books the realized
// result: total capital and realized P&L absorb pnl, the day's bucket is
// updated and peak/drawdown statistics recomputed. The state snapshot is
// persisted as the final step; a missing reservation is tolerated but
// logged since it signals a caller bug.
func (l *Ledger) Release(symbol string, pnl, positionSize float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if released, ok := l.lockedCapital[symbol]; ok {
		delete(l.lockedCapital, symbol)
		logger.Info("capital released",
			"exchange", l.exchange,
			"symbol", symbol,
			"amount", released,
		)
	} else {
		logger.Warn("release for symbol with no reservation",
			"exchange", l.exchange,
			"symbol", symbol,
		)
	}
	delete(l.positionSizes, symbol)

	l.totalCapital += pnl
	l.totalPnL += pnl
	l.realizedPnL += pnl
	l.totalTrades++

	day := l.now().Format("2006-01-02")
	l.dailyPnL[day] += pnl
	l.dailyTrades[day]++

	if l.totalCapital > l.peakCapital {
		l.peakCapital = l.totalCapital
	}
	if l.peakCapital > 0 {
		drawdown := (l.peakCapital - l.totalCapital) / l.peakCapital
		if drawdown > l.maxDrawdown {
			l.maxDrawdown = drawdown
		}
	}

	metrics.CapitalAllocationRatio.WithLabelValues(l.exchange).Set(l.allocationRatioLocked())
	logger.Info("position closed",
		"exchange", l.exchange,
		"symbol", symbol,
		"pnl", pnl,
		"position_size", positionSize,
		"total_capital", l.totalCapital,
	)

	l.saveState()
}

// UpdateUnrealized records a mark-to-market figure for reporting. It
// never touches total capital or the allocation ceiling; only realized
// results do.
func (l *Ledger) UpdateUnrealized(symbol string, unrealized float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.unrealizedPnL = unrealized
	logger.Debug("unrealized pnl updated",
		"exchange", l.exchange,
		"symbol", symbol,
		"unrealized", unrealized,
	)
}

// SetPositionSize records the contract size held for a symbol, for
// reporting alongside its capital lock. Cleared on Release and Reset.
func (l *Ledger) SetPositionSize(symbol string, size float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positionSizes[symbol] = size
}

// AvailableCapital reports total capital minus everything locked.
func (l *Ledger) AvailableCapital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalCapital - l.lockedTotalLocked()
}

// LockedCapital reports the sum of all open reservations.
func (l *Ledger) LockedCapital() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockedTotalLocked()
}

// AllocationRatio reports locked/total, or 0 when capital is
// non-positive.
func (l *Ledger) AllocationRatio() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocationRatioLocked()
}

// LockedSymbols lists the symbols currently holding reservations,
// sorted for stable output.
func (l *Ledger) LockedSymbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	symbols := make([]string, 0, len(l.lockedCapital))
	for s := range l.lockedCapital {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// DailyPnL returns the most recent N day buckets, keyed YYYY-MM-DD.
func (l *Ledger) DailyPnL(days int) map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	dates := make([]string, 0, len(l.dailyPnL))
	for d := range l.dailyPnL {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if days > 0 && len(dates) > days {
		dates = dates[:days]
	}

	out := make(map[string]float64, len(dates))
	for _, d := range dates {
		out[d] = l.dailyPnL[d]
	}
	return out
}

// Stats snapshots the full accounting state.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	locked := l.lockedTotalLocked()
	s := Stats{
		TotalTrades:      l.totalTrades,
		TotalPnL:         l.totalPnL,
		RealizedPnL:      l.realizedPnL,
		UnrealizedPnL:    l.unrealizedPnL,
		MaxDrawdown:      l.maxDrawdown,
		PeakCapital:      l.peakCapital,
		TotalCapital:     l.totalCapital,
		InitialCapital:   l.initialCapital,
		AvailableCapital: l.totalCapital - locked,
		LockedCapital:    locked,
		AllocationRatio:  l.allocationRatioLocked(),
		LockedSymbols:    len(l.lockedCapital),
	}
	if l.initialCapital > 0 {
		s.ROI = (l.totalCapital - l.initialCapital) / l.initialCapital
	}
	return s
}

// Reset is an operator override: it discards every in-flight reservation
// without reconciling them and restarts the pool at newCapital (or the
// original initial capital when newCapital is non-positive).
func (l *Ledger) Reset(newCapital float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if newCapital <= 0 {
		newCapital = l.initialCapital
	}
	l.totalCapital = newCapital
	l.lockedCapital = make(map[string]float64)
	l.positionSizes = make(map[string]float64)
	l.peakCapital = newCapital

	metrics.CapitalAllocationRatio.WithLabelValues(l.exchange).Set(0)
	logger.Warn("capital ledger reset, all reservations discarded",
		"exchange", l.exchange,
		"total_capital", newCapital,
	)

	l.saveState()
}

// Persist writes the current snapshot immediately, outside the normal
// release path. Useful for an orderly shutdown.
func (l *Ledger) Persist() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saveState()
}

// lockedTotalLocked sums open reservations. Callers must hold l.mu.
func (l *Ledger) lockedTotalLocked() float64 {
	var total float64
	for _, v := range l.lockedCapital {
		total += v
	}
	return total
}

// allocationRatioLocked computes locked/total. Callers must hold l.mu.
func (l *Ledger) allocationRatioLocked() float64 {
	if l.totalCapital <= 0 {
		return 0
	}
	return l.lockedTotalLocked() / l.totalCapital
}
