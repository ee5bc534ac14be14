package ledger

import (
	"fmt"

	"github.com/quantdesk/tradecore/internal/model"
	"gorm.io/gorm"
)

// Database is the query layer over the trade ledger's relational store.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn against a transactional view of the store. The
// FIFO matcher relies on this so remaining-amount decrements across
// multiple rows commit atomically with the closed-trade insert.
func (d *Database) Transaction(fn func(tx *Database) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

// CreateExecution appends a raw fill row.
func (d *Database) CreateExecution(exe *Execution) error {
	if err := d.db.Create(exe).Error; err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// OpenExecutions returns the unclosed fills for one exchange, symbol
// and side, oldest first. The ascending timestamp order is what makes
// the matching first-in-first-out; it must never be violated.
func (d *Database) OpenExecutions(exchange, symbol string, side model.Side) ([]Execution, error) {
	var rows []Execution
	if err := d.db.
		Where("exchange = ? AND symbol = ? AND side = ? AND is_closed = ?", exchange, symbol, side, false).
		Order("timestamp ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch open executions: %w", err)
	}
	return rows, nil
}

// ConsumeExecution writes back one matched lot's remaining amount and
// closed flag.
func (d *Database) ConsumeExecution(id uint, remaining float64, closed bool) error {
	if err := d.db.Model(&Execution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"remaining_amount": remaining,
			"is_closed":        closed,
		}).Error; err != nil {
		return fmt.Errorf("failed to update execution %d: %w", id, err)
	}
	return nil
}

// CreateClosedTrade appends a realized trade row.
func (d *Database) CreateClosedTrade(trade *ClosedTrade) error {
	if err := d.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to save closed trade: %w", err)
	}
	return nil
}

// Summary aggregates closed trades, optionally filtered by exchange.
func (d *Database) Summary(exchange string) (*Summary, error) {
	var row struct {
		Cnt int64
		Pnl float64
		Fee float64
	}

	q := d.db.Model(&ClosedTrade{}).
		Select("COUNT(*) as cnt, COALESCE(SUM(pnl), 0) as pnl, COALESCE(SUM(commission), 0) as fee")
	if exchange != "" {
		q = q.Where("exchange = ?", exchange)
	}
	if err := q.Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate closed trades: %w", err)
	}

	return &Summary{
		TotalTrades: row.Cnt,
		TotalPnL:    row.Pnl,
		TotalFee:    row.Fee,
		NetPnL:      row.Pnl - row.Fee,
	}, nil
}

// ClosedTrades lists realized trades, most recent exit first.
func (d *Database) ClosedTrades(limit int) ([]ClosedTrade, error) {
	var rows []ClosedTrade
	if err := d.db.
		Order("exit_time DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch closed trades: %w", err)
	}
	return rows, nil
}
