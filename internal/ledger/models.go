package ledger

import (
	"time"

	"github.com/quantdesk/tradecore/internal/model"
	"gorm.io/gorm"
)

// closeEpsilon is the tolerance below which a remaining amount is
// treated as fully consumed.
const closeEpsilon = 1e-8

// Execution is one raw fill reported by an exchange. Rows are
// append-only: the matching algorithm decrements RemainingAmount and
// flips IsClosed, but closed rows stay behind for audit.
type Execution struct {
	gorm.Model      `json:"-"`
	Exchange        string     `gorm:"index:idx_open_scan" json:"exchange"`
	Symbol          string     `gorm:"index:idx_open_scan" json:"symbol"`
	Side            model.Side `gorm:"index:idx_open_scan" json:"side"`
	Price           float64    `json:"price"`
	Amount          float64    `json:"amount"`
	Fee             float64    `json:"fee"`
	FeeCurrency     string     `json:"fee_currency"`
	OrderID         string     `gorm:"index" json:"order_id"`
	Timestamp       time.Time  `gorm:"index" json:"timestamp"`
	IsClosed        bool       `gorm:"index:idx_open_scan" json:"is_closed"`
	RemainingAmount float64    `json:"remaining_amount"`
}

// ClosedTrade is a realized trade derived by FIFO matching. Created
// exactly once per successful match and immutable thereafter.
type ClosedTrade struct {
	gorm.Model `json:"-"`
	Exchange   string             `gorm:"index" json:"exchange"`
	Symbol     string             `gorm:"index" json:"symbol"`
	Side       model.PositionSide `json:"side"`
	EntryPrice float64            `json:"entry_price"` // volume-weighted across matched lots
	ExitPrice  float64            `json:"exit_price"`
	Amount     float64            `json:"amount"`
	PnL        float64            `gorm:"column:pnl" json:"pnl"`
	PnLPct     float64            `gorm:"column:pnl_pct" json:"pnl_pct"`
	EntryTime  time.Time          `json:"entry_time"` // earliest matched execution
	ExitTime   time.Time          `gorm:"index" json:"exit_time"`
	Commission float64            `json:"commission"` // prorated from all matched legs
}

// Summary aggregates realized results over closed trades.
type Summary struct {
	TotalTrades int64   `json:"total_trades"`
	TotalPnL    float64 `json:"total_pnl"`
	TotalFee    float64 `json:"total_fee"`
	NetPnL      float64 `json:"net_pnl"`
}
