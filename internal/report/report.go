package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"commotrend/internal/analysis/indicator"
	"commotrend/internal/analysis/visual"
	"commotrend/internal/backtest"
	"commotrend/internal/logger"
)

// 中文说明：
// 回测产物导出：每次运行在 export_dir/<run-name>/ 下生成
// transactions.csv、equity.csv、report.html（可选 report.png），
// 并对每个标的计算 TALib 指标报告写进结果库。

const dateLayout = "2006-01-02"

// Exporter 实现 backtest.Reporter。
type Exporter struct {
	ExportDir     string
	ChartSnapshot bool
	Store         *backtest.Store
	Results       *backtest.ResultStore
}

func NewExporter(exportDir string, chartSnapshot bool, store *backtest.Store, results *backtest.ResultStore) (*Exporter, error) {
	if exportDir == "" {
		return nil, fmt.Errorf("export dir 不能为空")
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, err
	}
	return &Exporter{ExportDir: exportDir, ChartSnapshot: chartSnapshot, Store: store, Results: results}, nil
}

func (e *Exporter) WriteRunReport(ctx context.Context, run backtest.Run, art backtest.RunArtifacts) error {
	dir := filepath.Join(e.ExportDir, run.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := e.writeTransactionsCSV(filepath.Join(dir, "transactions.csv"), art); err != nil {
		return err
	}
	if err := e.writeEquityCSV(filepath.Join(dir, "equity.csv"), art); err != nil {
		return err
	}
	if err := e.writeCharts(ctx, dir, run, art); err != nil {
		// 图表失败不拦截 CSV 与指标产出
		logger.Warnf("[report] run %s 图表渲染失败: %v", run.Name, err)
	}
	e.writeIndicatorReports(ctx, run)
	logger.Infof("[report] run %s 产物已写入 %s", run.Name, dir)
	return nil
}

func (e *Exporter) writeTransactionsCSV(path string, art backtest.RunArtifacts) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"date", "ticker", "side", "quantity", "price", "cash_after"}); err != nil {
		return err
	}
	for _, txn := range art.Transactions {
		record := []string{
			txn.Date.UTC().Format(dateLayout),
			txn.Ticker,
			string(txn.Side),
			strconv.FormatInt(txn.Quantity, 10),
			strconv.FormatFloat(txn.Price, 'f', 4, 64),
			strconv.FormatFloat(txn.CashAfter, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) writeEquityCSV(path string, art backtest.RunArtifacts) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"date", "equity", "cash", "drawdown_pct", "exposure_pct"}); err != nil {
		return err
	}
	for _, snap := range art.Snapshots {
		record := []string{
			time.UnixMilli(snap.TS).UTC().Format(dateLayout),
			strconv.FormatFloat(snap.Equity, 'f', 2, 64),
			strconv.FormatFloat(snap.Cash, 'f', 2, 64),
			strconv.FormatFloat(snap.Drawdown, 'f', 4, 64),
			strconv.FormatFloat(snap.Exposure, 'f', 4, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) writeCharts(ctx context.Context, dir string, run backtest.Run, art backtest.RunArtifacts) error {
	input := visual.RunChartInput{
		Title: fmt.Sprintf("%s（%s）", run.Name, run.Policy),
		Subtitle: fmt.Sprintf("%s ~ %s  收益 %.2f%%  最大回撤 %.2f%%",
			time.UnixMilli(run.StartTS).UTC().Format(dateLayout),
			time.UnixMilli(run.EndTS).UTC().Format(dateLayout),
			run.ReturnPct, run.MaxDrawdownPct),
		InitialCash: run.InitialCash,
	}
	for _, snap := range art.Snapshots {
		input.Equity = append(input.Equity, visual.EquityPoint{TS: snap.TS, Equity: snap.Equity, Drawdown: snap.Drawdown})
	}
	markers := make(map[string][]visual.Marker)
	for _, txn := range art.Transactions {
		markers[txn.Ticker] = append(markers[txn.Ticker], visual.Marker{
			TS:    txn.Date.UnixMilli(),
			Price: txn.Price,
			Side:  string(txn.Side),
		})
	}
	for _, td := range art.Information.FullData {
		input.Tickers = append(input.Tickers, visual.TickerChartInput{
			Ticker:  td.Ticker,
			Points:  td.Points,
			EMA:     td.EMA,
			Spans:   run.Config.Spans,
			Markers: markers[td.Ticker],
		})
	}
	html, err := visual.RenderRunHTML(input)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.html"), html, 0o644); err != nil {
		return err
	}
	if !e.ChartSnapshot {
		return nil
	}
	png, err := visual.SnapshotPNG(ctx, html, (len(input.Tickers)+1)*560)
	if err != nil {
		return fmt.Errorf("png 截图失败: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "report.png"), png, 0o644)
}

// writeIndicatorReports 每个标的一份 TALib 诊断报告，失败只告警。
func (e *Exporter) writeIndicatorReports(ctx context.Context, run backtest.Run) {
	if e.Store == nil || e.Results == nil {
		return
	}
	for _, ticker := range run.Config.Universe {
		candles, err := e.Store.RangeCandles(ctx, ticker, run.Timeframe, run.StartTS, run.EndTS)
		if err != nil || len(candles) == 0 {
			continue
		}
		rep, err := indicator.ComputeAll(candles, indicator.Settings{
			Ticker:   ticker,
			Interval: run.Timeframe,
			EMA: indicator.EMASettings{
				Short:  run.Config.Spans.Short,
				Medium: run.Config.Spans.Medium,
				Long:   run.Config.Spans.Long,
			},
		})
		if err != nil {
			logger.Warnf("[report] %s 指标计算失败: %v", ticker, err)
			continue
		}
		if err := e.Results.InsertIndicatorReport(ctx, run.ID, ticker, rep); err != nil {
			logger.Warnf("[report] %s 指标报告落库失败: %v", ticker, err)
		}
	}
}
