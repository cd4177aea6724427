package report

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"commotrend/internal/backtest"
	"commotrend/internal/broker"
	"commotrend/internal/market"
	"commotrend/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() backtest.Run {
	return backtest.Run{
		ID:          "run-1",
		Name:        "amber-harvest-0042",
		Policy:      "long_only",
		Timeframe:   "1d",
		StartTS:     0,
		EndTS:       90 * 86_400_000,
		InitialCash: 100_000,
		Config: backtest.RunConfig{
			Universe: []string{"GC=F"},
			Policy:   "long_only",
			Spans:    strategy.Spans{Short: 2, Medium: 4, Long: 8},
		},
	}
}

func sampleArtifacts() backtest.RunArtifacts {
	points := make([]market.PricePoint, 60)
	closes := make([]float64, 60)
	for i := range points {
		price := 100 + 10*math.Sin(float64(i)/8)
		points[i] = market.PricePoint{TS: int64(i) * 86_400_000, Price: price}
		closes[i] = price
	}
	return backtest.RunArtifacts{
		Transactions: []broker.Transaction{
			{Date: time.UnixMilli(10 * 86_400_000).UTC(), Ticker: "GC=F", Side: broker.SideBuy, Quantity: 5, Price: 104.5, CashAfter: 99477.5},
			{Date: time.UnixMilli(30 * 86_400_000).UTC(), Ticker: "GC=F", Side: broker.SideSell, Quantity: 5, Price: 96.2, CashAfter: 99958.5},
		},
		Snapshots: []backtest.EquitySnapshot{
			{RunID: "run-1", TS: 10 * 86_400_000, Equity: 100000, Cash: 99477.5, Drawdown: 0, Exposure: 0.52},
			{RunID: "run-1", TS: 30 * 86_400_000, Equity: 99958.5, Cash: 99958.5, Drawdown: 0.04, Exposure: 0},
		},
		Information: strategy.InformationSet{
			FullData: []strategy.TickerData{{
				Ticker: "GC=F",
				Points: points,
				EMA: strategy.Triple{
					Short:  strategy.EMA(closes, 2),
					Medium: strategy.EMA(closes, 4),
					Long:   strategy.EMA(closes, 8),
				},
			}},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteRunReport(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir, false, nil, nil)
	require.NoError(t, err)

	run := sampleRun()
	require.NoError(t, exporter.WriteRunReport(context.Background(), run, sampleArtifacts()))

	runDir := filepath.Join(dir, run.Name)

	txns := readCSV(t, filepath.Join(runDir, "transactions.csv"))
	require.Len(t, txns, 3)
	assert.Equal(t, []string{"date", "ticker", "side", "quantity", "price", "cash_after"}, txns[0])
	assert.Equal(t, "1970-01-11", txns[1][0])
	assert.Equal(t, "buy", txns[1][2])
	assert.Equal(t, "5", txns[1][3])
	assert.Equal(t, "sell", txns[2][2])

	equity := readCSV(t, filepath.Join(runDir, "equity.csv"))
	require.Len(t, equity, 3)
	assert.Equal(t, "100000.00", equity[1][1])

	html, err := os.ReadFile(filepath.Join(runDir, "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "GC=F")

	// 未开启截图则不产出 png
	_, err = os.Stat(filepath.Join(runDir, "report.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewExporterRequiresDir(t *testing.T) {
	_, err := NewExporter("", false, nil, nil)
	assert.Error(t, err)
}
