package ledger

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantdesk/tradecore/internal/model"
	"github.com/quantdesk/tradecore/internal/pkg/logger"
	"github.com/quantdesk/tradecore/internal/pkg/metrics"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service reconstructs realized P&L from the raw fill stream for
// exchanges that do not report it. Opening fills are ingested as
// executions; closing fills consume the oldest still-open opposing
// executions first (FIFO), which keeps entry prices deterministic and
// fee proration auditable even under repeated partial fills.
type Service struct {
	db *Database

	mu         sync.Mutex
	matchLocks map[string]*sync.Mutex

	now func() time.Time
}

// Fill is one raw fill handed over by an exchange adapter.
type Fill struct {
	Exchange    string
	Symbol      string
	Side        model.Side
	Price       float64
	Amount      float64
	Fee         float64
	FeeCurrency string
	OrderID     string
	Timestamp   time.Time
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		matchLocks: make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// AddExecution appends a fill to the ledger with its full amount still
// open. Exchange and symbol casing is normalized, a missing timestamp
// defaults to now and a missing order id is generated.
func (s *Service) AddExecution(f Fill) (*Execution, error) {
	if !f.Side.Valid() {
		return nil, fmt.Errorf("invalid side %q", f.Side)
	}
	if f.Amount <= 0 {
		return nil, fmt.Errorf("non-positive amount %v", f.Amount)
	}
	if f.Price <= 0 {
		return nil, fmt.Errorf("non-positive price %v", f.Price)
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	orderID := f.OrderID
	if orderID == "" {
		orderID = "EXE_" + uuid.New().String()
	}
	feeCurrency := f.FeeCurrency
	if feeCurrency == "" {
		feeCurrency = "USDT"
	}

	exe := &Execution{
		Exchange:        strings.ToLower(f.Exchange),
		Symbol:          strings.ToUpper(f.Symbol),
		Side:            f.Side,
		Price:           f.Price,
		Amount:          f.Amount,
		Fee:             f.Fee,
		FeeCurrency:     feeCurrency,
		OrderID:         orderID,
		Timestamp:       ts,
		RemainingAmount: f.Amount,
	}
	if err := s.db.CreateExecution(exe); err != nil {
		return nil, err
	}

	logger.Info("execution saved",
		"exchange", exe.Exchange,
		"symbol", exe.Symbol,
		"side", exe.Side.String(),
		"amount", exe.Amount,
		"price", exe.Price,
	)
	return exe, nil
}

// OpenExecutions lists unclosed fills for a side, oldest first.
func (s *Service) OpenExecutions(exchange, symbol string, side model.Side) ([]Execution, error) {
	return s.db.OpenExecutions(strings.ToLower(exchange), strings.ToUpper(symbol), side)
}

// MatchFIFO books a closing fill against the oldest open opposing
// executions and persists the realized trade. A SELL exit closes a long
// (matches open BUYs), a BUY exit closes a short. Partially consumed
// lots keep their remainder open.
//
// The walk, the remaining-amount write-backs and the closed-trade
// insert run in one transaction, guarded by a per exchange+symbol lock;
// matching order only matters within that pair, so a global ledger lock
// is unnecessary.
//
// When no opposing open executions exist the exit cannot be priced:
// MatchFIFO returns (nil, nil) and logs a warning instead of
// fabricating a trade. That signals a bookkeeping gap such as an
// opening fill that was never ingested.
func (s *Service) MatchFIFO(exchange, symbol string, exitPrice, exitAmount float64, exitSide model.Side, exitTime time.Time, fee float64) (*ClosedTrade, error) {
	if !exitSide.Valid() {
		return nil, fmt.Errorf("invalid exit side %q", exitSide)
	}
	if exitAmount <= 0 {
		return nil, fmt.Errorf("non-positive exit amount %v", exitAmount)
	}

	exchange = strings.ToLower(exchange)
	symbol = strings.ToUpper(symbol)
	entrySide := exitSide.Opposite()

	lock := s.matchLock(exchange, symbol)
	lock.Lock()
	defer lock.Unlock()

	var trade *ClosedTrade
	err := s.db.Transaction(func(tx *Database) error {
		opens, err := tx.OpenExecutions(exchange, symbol, entrySide)
		if err != nil {
			return err
		}
		if len(opens) == 0 {
			return nil
		}

		totalPnL := decimal.Zero
		totalEntryValue := decimal.Zero
		totalCommission := decimal.NewFromFloat(fee)
		remainingToClose := exitAmount
		matchedAmount := 0.0
		var entryTime time.Time

		exit := decimal.NewFromFloat(exitPrice)

		for _, exe := range opens {
			if remainingToClose <= 0 {
				break
			}
			if entryTime.IsZero() {
				entryTime = exe.Timestamp
			}

			consumed := math.Min(exe.RemainingAmount, remainingToClose)
			qty := decimal.NewFromFloat(consumed)
			entry := decimal.NewFromFloat(exe.Price)

			// Long exits book exit-entry, short exits the reverse.
			legPnL := exit.Sub(entry).Mul(qty)
			if exitSide == model.SideBuy {
				legPnL = legPnL.Neg()
			}
			totalPnL = totalPnL.Add(legPnL)
			totalEntryValue = totalEntryValue.Add(entry.Mul(qty))
			totalCommission = totalCommission.Add(
				decimal.NewFromFloat(exe.Fee).Mul(qty).Div(decimal.NewFromFloat(exe.Amount)),
			)

			matchedAmount += consumed
			remainingToClose -= consumed

			newRemaining := exe.RemainingAmount - consumed
			if err := tx.ConsumeExecution(exe.ID, newRemaining, newRemaining < closeEpsilon); err != nil {
				return err
			}
		}

		if matchedAmount <= 0 {
			return nil
		}

		avgEntry := totalEntryValue.Div(decimal.NewFromFloat(matchedAmount))
		pnlPct := decimal.Zero
		if totalEntryValue.IsPositive() {
			pnlPct = totalPnL.Div(totalEntryValue).Mul(decimal.NewFromInt(100))
		}

		trade = &ClosedTrade{
			Exchange:   exchange,
			Symbol:     symbol,
			Side:       model.PositionFromExit(exitSide),
			EntryPrice: avgEntry.InexactFloat64(),
			ExitPrice:  exitPrice,
			Amount:     matchedAmount,
			PnL:        totalPnL.InexactFloat64(),
			PnLPct:     pnlPct.InexactFloat64(),
			EntryTime:  entryTime,
			ExitTime:   exitTime,
			Commission: totalCommission.InexactFloat64(),
		}
		return tx.CreateClosedTrade(trade)
	})
	if err != nil {
		return nil, err
	}

	if trade == nil {
		metrics.UnmatchedExits.WithLabelValues(exchange).Inc()
		logger.Warn("no matching open executions for exit",
			"exchange", exchange,
			"symbol", symbol,
			"entry_side", entrySide.String(),
			"exit_amount", exitAmount,
		)
		return nil, nil
	}

	metrics.TradesMatched.WithLabelValues(exchange, trade.Side.String()).Inc()
	logger.Info("trade closed",
		"exchange", exchange,
		"symbol", symbol,
		"side", trade.Side.String(),
		"amount", trade.Amount,
		"pnl", trade.PnL,
		"pnl_pct", trade.PnLPct,
	)
	return trade, nil
}

// Summary aggregates realized results, optionally for one exchange.
func (s *Service) Summary(exchange string) (*Summary, error) {
	return s.db.Summary(strings.ToLower(exchange))
}

// AllClosedTrades lists realized trades, most recent exit first.
func (s *Service) AllClosedTrades(limit int) ([]ClosedTrade, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.db.ClosedTrades(limit)
}

// matchLock returns the mutex serializing matches for one
// exchange+symbol pair, creating it on first use.
func (s *Service) matchLock(exchange, symbol string) *sync.Mutex {
	key := exchange + "|" + symbol
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.matchLocks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.matchLocks[key] = m
	return m
}
