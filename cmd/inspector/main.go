package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quantdesk/tradecore/internal/capital"
	"github.com/quantdesk/tradecore/internal/config"
	"github.com/quantdesk/tradecore/internal/database"
	"github.com/quantdesk/tradecore/internal/ledger"
	"github.com/quantdesk/tradecore/internal/pkg/logger"
)

// inspector prints the durable state of the trading core: the realized
// trade summary from the local store and the persisted capital state of
// every exchange found under the state directory.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init("error") // keep inspector output readable

	db, err := database.New(cfg.Storage.TradeDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	svc := ledger.NewService(db)

	summary, err := svc.Summary("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "summary: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("--- Trade Summary ---")
	fmt.Printf("trades: %d  pnl: %.2f  fees: %.2f  net: %.2f\n",
		summary.TotalTrades, summary.TotalPnL, summary.TotalFee, summary.NetPnL)

	trades, err := svc.AllClosedTrades(20)
	if err != nil {
		fmt.Fprintf(os.Stderr, "closed trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) > 0 {
		fmt.Println("\n--- Recent Closed Trades ---")
		for _, t := range trades {
			fmt.Printf("%s  %-10s %-8s %-5s  entry=%.4f exit=%.4f amt=%.6f pnl=%.2f (%.2f%%)\n",
				t.ExitTime.Format("2006-01-02 15:04:05"),
				t.Exchange, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice, t.Amount, t.PnL, t.PnLPct)
		}
	}

	printCapitalStates(cfg)
}

func printCapitalStates(cfg *config.Config) {
	entries, err := os.ReadDir(cfg.Storage.StateDir)
	if err != nil {
		return // no snapshots yet
	}

	first := true
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, "_capital_state.json") {
			continue
		}
		exchange := strings.TrimSuffix(filepath.Base(name), "_capital_state.json")

		l, err := capital.New(exchange, cfg.Capital.InitialCapital, cfg.Capital.MaxAllocationRatio, cfg.Storage.StateDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "capital %s: %v\n", exchange, err)
			continue
		}

		if first {
			fmt.Println("\n--- Capital State ---")
			first = false
		}
		s := l.Stats()
		fmt.Printf("%-10s total=%.2f available=%.2f locked=%.2f (%.1f%%) trades=%d pnl=%.2f peak=%.2f maxdd=%.2f%% roi=%.2f%%\n",
			exchange, s.TotalCapital, s.AvailableCapital, s.LockedCapital,
			s.AllocationRatio*100, s.TotalTrades, s.RealizedPnL,
			s.PeakCapital, s.MaxDrawdown*100, s.ROI*100)
		if symbols := l.LockedSymbols(); len(symbols) > 0 {
			fmt.Printf("           locked symbols: %s\n", strings.Join(symbols, ", "))
		}
	}
}
