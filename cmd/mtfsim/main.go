package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"mtf-simulator/internal/market"
	"mtf-simulator/internal/position"
	"mtf-simulator/internal/simulation"
)

var (
	configPath  string
	candleFlags []string
	maxTrades   int
)

var rootCmd = &cobra.Command{
	Use:   "mtfsim --config config.yaml --candles 1h=data/1h.csv --candles 4h=data/4h.csv --candles 1d=data/1d.csv",
	Short: "Run a multi-timeframe confluence strategy simulation over historical candles",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML simulation config (defaults used when empty)")
	rootCmd.Flags().StringArrayVar(&candleFlags, "candles", nil, "timeframe=csv-path pair, repeatable")
	rootCmd.Flags().IntVar(&maxTrades, "max-trades", 10, "number of most recent trades to print")
	rootCmd.MarkFlagRequired("candles")
}

func run(cmd *cobra.Command, args []string) error {
	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg := simulation.DefaultConfig()
	if configPath != "" {
		loaded, err := simulation.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	seriesByTF, err := loadSeries(cfg.Symbol)
	if err != nil {
		return err
	}

	driver, err := simulation.NewDriver(cfg)
	if err != nil {
		return err
	}

	result, err := driver.Run(seriesByTF)
	if err != nil {
		return err
	}

	result.Summary.Print()
	fmt.Println()
	printTrades(result.Trades, maxTrades)

	return nil
}

// loadSeries parses the repeated --candles timeframe=path flags.
func loadSeries(symbol string) (map[market.Timeframe]*market.Series, error) {
	seriesByTF := make(map[market.Timeframe]*market.Series, len(candleFlags))
	for _, flag := range candleFlags {
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --candles value %q, want timeframe=path", flag)
		}
		tf, err := market.ParseTimeframe(parts[0])
		if err != nil {
			return nil, err
		}
		series, err := market.LoadSeriesCSV(parts[1], symbol, tf)
		if err != nil {
			return nil, err
		}
		seriesByTF[tf] = series
	}
	return seriesByTF, nil
}

func printTrades(trades []position.Trade, limit int) {
	if len(trades) == 0 {
		fmt.Println("No trades generated")
		return
	}

	start := 0
	if limit > 0 && len(trades) > limit {
		start = len(trades) - limit
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Side", "Style", "Entry", "Exit", "PnL", "PnL %", "Held (h)", "Reason"})
	for _, t := range trades[start:] {
		table.Append([]string{
			fmt.Sprintf("%d", t.ID),
			string(t.Side),
			string(t.Style),
			fmt.Sprintf("%.5f", t.EntryPrice),
			fmt.Sprintf("%.5f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.PnL),
			fmt.Sprintf("%.2f", t.PnLPercent),
			fmt.Sprintf("%.1f", t.HoldingPeriodHours),
			t.ExitReason,
		})
	}
	table.Render()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Simulation failed", "error", err)
		os.Exit(1)
	}
}
