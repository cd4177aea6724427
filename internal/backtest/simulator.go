package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"commotrend/internal/broker"
	"commotrend/internal/config"
	"commotrend/internal/config/loader"
	"commotrend/internal/logger"
	"commotrend/internal/market"
	"commotrend/internal/strategy"

	"github.com/google/uuid"
)

// Notifier 用于运行完成后的推送（Telegram 等）。
type Notifier interface {
	SendText(text string) error
}

// RunArtifacts 回测完成后交给报告器的物料。
type RunArtifacts struct {
	Transactions []broker.Transaction
	Snapshots    []EquitySnapshot
	Information  strategy.InformationSet
	Events       []broker.Event
}

// Reporter 消费回测产物（CSV 导出、图表、指标报告等）。
// 报告失败不影响回测本身的落库。
type Reporter interface {
	WriteRunReport(ctx context.Context, run Run, artifacts RunArtifacts) error
}

// RunDefaults 来自配置文件的回测缺省参数。
type RunDefaults struct {
	Universe    []string
	Policy      string
	Spans       strategy.Spans
	Timeframe   string
	InitialCash float64
}

type SimulatorConfig struct {
	CandleStore   *Store
	ResultStore   *ResultStore
	Fetcher       *Service
	Profiles      *loader.ProfileLoader
	Defaults      RunDefaults
	Notifier      Notifier
	Reporters     []Reporter
	MaxConcurrent int
}

// Simulator 负责将历史收盘价 + 信号机 + 再平衡策略推演为资金曲线。
type Simulator struct {
	store    *Store
	results  *ResultStore
	fetcher  *Service
	profiles *loader.ProfileLoader
	defaults RunDefaults
	notifier Notifier
	reports  []Reporter

	sem     chan struct{}
	baseCtx context.Context

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.ResultStore == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Simulator{
		store:    cfg.CandleStore,
		results:  cfg.ResultStore,
		fetcher:  cfg.Fetcher,
		profiles: cfg.Profiles,
		defaults: cfg.Defaults,
		notifier: cfg.Notifier,
		reports:  cfg.Reporters,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Wait 阻塞到所有后台回测结束。一次性命令行模式使用。
func (s *Simulator) Wait() {
	s.wg.Wait()
}

// StartRun 创建回测任务并立即返回，模拟过程在后台进行。
// 请求里的空字段依次由 profile、配置缺省补齐。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	cfg, err := s.resolveConfig(req)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		ID:          uuid.NewString(),
		Name:        generateRunName(),
		Policy:      cfg.Policy,
		Status:      RunStatusPending,
		StartTS:     cfg.StartTS,
		EndTS:       cfg.EndTS,
		Timeframe:   cfg.Timeframe,
		InitialCash: cfg.InitialCash,
		FinalValue:  cfg.InitialCash,
		Config:      cfg,
		CreatedAt:   time.Now(),
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	s.wg.Add(1)
	go s.runLoop(run)
	return run, nil
}

func (s *Simulator) resolveConfig(req RunRequest) (RunConfig, error) {
	universe := req.Universe
	policy := req.Policy
	spans := strategy.Spans{Short: req.SpanShort, Medium: req.SpanMedium, Long: req.SpanLong}
	initialCash := req.InitialCash

	if req.Profile != "" {
		if s.profiles == nil {
			return RunConfig{}, fmt.Errorf("未启用 profiles，无法使用 %q", req.Profile)
		}
		def, ok := s.profiles.Get(req.Profile)
		if !ok {
			return RunConfig{}, fmt.Errorf("未知 profile: %s", req.Profile)
		}
		if len(universe) == 0 {
			universe = def.Universe
		}
		if policy == "" {
			policy = def.Policy
		}
		if spans == (strategy.Spans{}) {
			spans = strategy.Spans{Short: def.SpanShort, Medium: def.SpanMedium, Long: def.SpanLong}
		}
		if initialCash <= 0 {
			initialCash = def.InitialCash
		}
	}
	if len(universe) == 0 {
		universe = append([]string{}, s.defaults.Universe...)
	}
	if policy == "" {
		policy = s.defaults.Policy
	}
	if spans == (strategy.Spans{}) {
		spans = s.defaults.Spans
	}
	if initialCash <= 0 {
		initialCash = s.defaults.InitialCash
	}
	if len(universe) == 0 {
		return RunConfig{}, fmt.Errorf("universe 不能为空")
	}
	for i, ticker := range universe {
		universe[i] = strings.ToUpper(strings.TrimSpace(ticker))
	}
	if !spans.Valid() {
		return RunConfig{}, fmt.Errorf("ema spans 非法: %+v", spans)
	}

	tfName := req.Timeframe
	if tfName == "" {
		tfName = s.defaults.Timeframe
	}
	tf, err := ParseTimeframe(tfName)
	if err != nil {
		return RunConfig{}, err
	}

	start, err := time.ParseInLocation(config.DateLayout, req.Start, time.UTC)
	if err != nil {
		return RunConfig{}, fmt.Errorf("start 日期无效（要求 %s）: %w", config.DateLayout, err)
	}
	var end time.Time
	if req.End == "" {
		end = time.Now().UTC().Truncate(24 * time.Hour)
	} else {
		end, err = time.ParseInLocation(config.DateLayout, req.End, time.UTC)
		if err != nil {
			return RunConfig{}, fmt.Errorf("end 日期无效（要求 %s）: %w", config.DateLayout, err)
		}
	}
	if !end.After(start) {
		return RunConfig{}, fmt.Errorf("end 必须晚于 start")
	}

	cfg := RunConfig{
		Universe:    universe,
		Policy:      policy,
		Spans:       spans,
		Timeframe:   tf.Key,
		StartTS:     start.UnixMilli(),
		EndTS:       end.UnixMilli() + tf.durationMillis() - 1,
		InitialCash: initialCash,
	}
	// 先验证策略名，失败早于落库。
	if _, err := broker.NewPolicy(policy, len(universe), nil); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func (s *Simulator) runLoop(run Run) {
	defer s.wg.Done()
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s 等待可用 worker", run.ID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	_ = s.results.UpdateRunStatus(ctx, run.ID, RunStatusRunning, "准备数据…")
	runner := newSimRunner(s.store, s.results, s.fetcher, s.reports, s.notifier)
	if err := runner.Run(ctx, run); err != nil {
		logger.Warnf("[backtest] run %s (%s) 失败: %v", run.ID, run.Name, err)
		_ = s.results.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
	}
}

type simRunner struct {
	store    *Store
	results  *ResultStore
	fetcher  *Service
	reports  []Reporter
	notifier Notifier
}

func newSimRunner(store *Store, results *ResultStore, fetcher *Service, reports []Reporter, notifier Notifier) *simRunner {
	return &simRunner{store: store, results: results, fetcher: fetcher, reports: reports, notifier: notifier}
}

func (r *simRunner) Run(ctx context.Context, run Run) error {
	cfg := run.Config
	tf, err := ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return err
	}
	series, err := r.loadSeries(ctx, run.ID, cfg, tf)
	if err != nil {
		return err
	}

	info, err := strategy.NewEMAInformation(cfg.Spans, series)
	if err != nil {
		return err
	}

	var events []broker.Event
	observer := broker.ObserverFunc(func(e broker.Event) {
		broker.LogObserver{}.OnEvent(e)
		events = append(events, e)
	})
	ledger := broker.NewLedger(cfg.InitialCash, observer)
	policy, err := broker.NewPolicy(cfg.Policy, len(cfg.Universe), observer)
	if err != nil {
		return err
	}

	// EMA 递推只依赖过去，截至 EndTS 一次性计算的信号序列与逐日
	// 重算逐日取最后一个结果完全一致，之后按日过滤即可。
	infoSet, err := info.ComputeInformation(cfg.EndTS)
	if err != nil {
		return err
	}
	timeline := tradingTimeline(series, cfg.StartTS, cfg.EndTS)
	if len(timeline) == 0 {
		return fmt.Errorf("区间内没有任何交易日")
	}
	logger.Infof("[backtest] run %s (%s) 开始：%d 个标的，%d 个交易日，策略=%s",
		run.ID, run.Name, len(cfg.Universe), len(timeline), cfg.Policy)

	stats := RunStats{
		FinalValue:   cfg.InitialCash,
		EquityPeak:   cfg.InitialCash,
		EquityValley: cfg.InitialCash,
	}
	var snapshots []EquitySnapshot
	progressStep := len(timeline) / 10
	if progressStep < 1 {
		progressStep = 1
	}

	for idx, ts := range timeline {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		day := time.UnixMilli(ts).UTC()
		prices := info.Prices(ts)
		active := infoSet.ActiveAt(ts)
		if len(active) > 0 {
			if err := policy.Rebalance(day, active, prices, ledger); err != nil {
				return fmt.Errorf("%s 再平衡失败: %w", day.Format(config.DateLayout), err)
			}
		}
		equity, err := ledger.PortfolioValue(prices)
		if err != nil {
			return fmt.Errorf("%s 估值失败: %w", day.Format(config.DateLayout), err)
		}
		if equity > stats.EquityPeak {
			stats.EquityPeak = equity
		}
		if equity < stats.EquityValley {
			stats.EquityValley = equity
		}
		drawdown := 0.0
		if stats.EquityPeak > 0 {
			drawdown = (stats.EquityPeak - equity) / stats.EquityPeak * 100
		}
		if drawdown > stats.MaxDrawdownPct {
			stats.MaxDrawdownPct = drawdown
		}
		snap := EquitySnapshot{
			RunID:    run.ID,
			TS:       ts,
			Equity:   equity,
			Cash:     ledger.Cash(),
			Drawdown: drawdown,
			Exposure: grossExposure(ledger, prices, equity),
		}
		snapshots = append(snapshots, snap)
		if err := r.results.InsertSnapshot(ctx, snap); err != nil {
			logger.Warnf("[backtest] run %s 快照写入失败: %v", run.ID, err)
		}
		stats.FinalValue = equity
		if idx%progressStep == 0 {
			_ = r.results.UpdateRunStatus(ctx, run.ID, RunStatusRunning,
				fmt.Sprintf("进度 %d/%d（%s）", idx+1, len(timeline), day.Format(config.DateLayout)))
		}
	}

	txns := ledger.TransactionLog()
	records := make([]TransactionRecord, len(txns))
	for i, txn := range txns {
		records[i] = TransactionRecord{
			RunID: run.ID, Date: txn.Date, Ticker: txn.Ticker, Side: string(txn.Side),
			Quantity: txn.Quantity, Price: txn.Price, CashAfter: txn.CashAfter,
		}
		switch txn.Side {
		case broker.SideBuy:
			stats.Buys++
		case broker.SideSell:
			stats.Sells++
		}
	}
	if err := r.results.InsertTransactions(ctx, records); err != nil {
		return fmt.Errorf("成交流水落库失败: %w", err)
	}
	stats.Trades = len(txns)
	stats.Snapshots = len(snapshots)
	stats.OpenPositions = len(ledger.Positions())
	for _, e := range events {
		switch e.Type {
		case broker.EventMissingPrice:
			stats.MissingPrices++
		case broker.EventPartialFill:
			stats.PartialFills++
		case broker.EventReserveCover:
			stats.ReserveCovers++
		}
	}
	stats.Profit = stats.FinalValue - cfg.InitialCash
	if cfg.InitialCash > 0 {
		stats.ReturnPct = stats.Profit / cfg.InitialCash * 100
	}
	stats.FinishedAt = time.Now()

	message := fmt.Sprintf("完成：收益 %.2f（%.2f%%），最大回撤 %.2f%%，成交 %d 笔",
		stats.Profit, stats.ReturnPct, stats.MaxDrawdownPct, stats.Trades)
	if err := r.results.UpdateRunSummary(ctx, run.ID, RunStatusDone, stats, message); err != nil {
		return err
	}
	logger.Infof("[backtest] run %s (%s) %s", run.ID, run.Name, message)

	run.Status = RunStatusDone
	run.Stats = stats
	run.FinalValue = stats.FinalValue
	run.Profit = stats.Profit
	run.ReturnPct = stats.ReturnPct
	run.MaxDrawdownPct = stats.MaxDrawdownPct
	run.Trades = stats.Trades
	run.Message = message
	artifacts := RunArtifacts{
		Transactions: txns,
		Snapshots:    snapshots,
		Information:  infoSet,
		Events:       events,
	}
	for _, reporter := range r.reports {
		if err := reporter.WriteRunReport(ctx, run, artifacts); err != nil {
			logger.Warnf("[backtest] run %s 报告生成失败: %v", run.ID, err)
		}
	}
	if r.notifier != nil {
		text := fmt.Sprintf("回测 %s 完成\n策略: %s  区间: %s ~ %s\n%s",
			run.Name, cfg.Policy,
			time.UnixMilli(cfg.StartTS).UTC().Format(config.DateLayout),
			time.UnixMilli(cfg.EndTS).UTC().Format(config.DateLayout),
			message)
		if err := r.notifier.SendText(text); err != nil {
			logger.Warnf("[backtest] run %s 通知发送失败: %v", run.ID, err)
		}
	}
	return nil
}

// loadSeries 确保区间数据就绪后装载收盘价序列。
// 个别 ticker 拉不到数据只告警（它在时间线上永远缺价），全部为空才算失败。
func (r *simRunner) loadSeries(ctx context.Context, runID string, cfg RunConfig, tf Timeframe) (map[string]market.Series, error) {
	series := make(map[string]market.Series, len(cfg.Universe))
	for i, ticker := range cfg.Universe {
		_ = r.results.UpdateRunStatus(ctx, runID, RunStatusRunning,
			fmt.Sprintf("同步 %s（%d/%d）…", ticker, i+1, len(cfg.Universe)))
		cov, err := r.fetcher.EnsureRange(ctx, ticker, tf, cfg.StartTS, cfg.EndTS)
		if err != nil {
			return nil, fmt.Errorf("同步 %s 失败: %w", ticker, err)
		}
		if cov.Present == 0 {
			logger.Warnf("[backtest] run %s: %s 区间内无数据，跳过", runID, ticker)
			continue
		}
		candles, err := r.store.RangeCandles(ctx, ticker, tf.Key, cfg.StartTS, cfg.EndTS)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			continue
		}
		series[ticker] = market.SeriesFromCandles(ticker, candles)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("所有标的在区间内均无数据")
	}
	return series, nil
}

// tradingTimeline 各序列时间戳的并集（升序），即回测步进的“交易日”。
// 周末与节假日天然不在并集里。
func tradingTimeline(series map[string]market.Series, start, end int64) []int64 {
	seen := make(map[int64]struct{})
	for _, s := range series {
		for _, p := range s.Points {
			if p.TS >= start && p.TS <= end {
				seen[p.TS] = struct{}{}
			}
		}
	}
	out := make([]int64, 0, len(seen))
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// grossExposure Σ|持仓市值| / 权益（百分比）。缺价的持仓跳过
// （调用处已先通过 PortfolioValue 的缺价检查）。
func grossExposure(ledger *broker.Ledger, prices map[string]float64, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	gross := 0.0
	for _, pos := range ledger.Positions() {
		price, ok := prices[pos.Ticker]
		if !ok {
			continue
		}
		gross += math.Abs(float64(pos.Quantity) * price)
	}
	return gross / equity * 100
}
