package app

import (
	"context"
	"fmt"
	"time"

	"commotrend/internal/backtest"
	"commotrend/internal/config"
	cfgloader "commotrend/internal/config/loader"
	"commotrend/internal/feed"
	"commotrend/internal/logger"
	"commotrend/internal/notifier"
	"commotrend/internal/report"
	"commotrend/internal/strategy"
)

// AppBuilder 把配置翻译成可运行的组件图。
// 各 build 函数可在测试中替换（注入假数据源等）。
type AppBuilder struct {
	cfg *config.Config

	sourceFn   func(config.FeedConfig) (feed.HistorySource, error)
	notifierFn func(config.NotifyConfig) backtest.Notifier
}

type AppBuilderOption func(*AppBuilder)

// WithSource 覆盖数据源构造，测试用。
func WithSource(fn func(config.FeedConfig) (feed.HistorySource, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sourceFn = fn }
}

// WithNotifier 覆盖通知器构造。
func WithNotifier(fn func(config.NotifyConfig) backtest.Notifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifierFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		sourceFn:   feed.Build,
		notifierFn: buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildNotifier(cfg config.NotifyConfig) backtest.Notifier {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == "" {
		return nil
	}
	return notifier.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	store, err := backtest.NewStore(cfg.App.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("行情存储初始化失败: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Backtest.ResultRoot)
	if err != nil {
		return nil, fmt.Errorf("结果存储初始化失败: %w", err)
	}
	source, err := b.sourceFn(cfg.Feed)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 数据源: %s", source.Name())

	fetcher, err := backtest.NewService(backtest.ServiceConfig{
		Store:           store,
		Source:          source,
		RateLimitPerMin: cfg.Feed.RateLimitPerMin,
		MaxConcurrent:   cfg.Feed.MaxConcurrent,
	})
	if err != nil {
		return nil, err
	}

	var profiles *cfgloader.ProfileLoader
	if cfg.Strategy.ProfilesPath != "" {
		profiles, err = cfgloader.NewProfileLoader(cfg.Strategy.ProfilesPath)
		if err != nil {
			return nil, fmt.Errorf("profiles 加载失败: %w", err)
		}
		snap := profiles.Snapshot()
		logger.Infof("✓ 已加载 %d 个策略档", len(snap.Profiles))
	}

	exporter, err := report.NewExporter(cfg.Backtest.ExportDir, cfg.Backtest.ChartSnapshot, store, results)
	if err != nil {
		return nil, err
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		CandleStore: store,
		ResultStore: results,
		Fetcher:     fetcher,
		Profiles:    profiles,
		Defaults: backtest.RunDefaults{
			Universe: append([]string{}, cfg.Strategy.Universe...),
			Policy:   cfg.Strategy.Policy,
			Spans: strategy.Spans{
				Short:  cfg.Strategy.Spans.Short,
				Medium: cfg.Strategy.Spans.Medium,
				Long:   cfg.Strategy.Spans.Long,
			},
			Timeframe:   cfg.Strategy.Interval,
			InitialCash: cfg.Backtest.InitialCash,
		},
		Notifier:  b.notifierFn(cfg.Notify),
		Reporters: []backtest.Reporter{exporter},
	})
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:     cfg,
		store:   store,
		results: results,
		fetcher: fetcher,
		sim:     sim,
	}
	if cfg.Server.Enabled {
		httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
			Addr:      cfg.Server.Addr,
			Svc:       fetcher,
			Simulator: sim,
			Results:   results,
			Profiles:  profiles,
		})
		if err != nil {
			return nil, err
		}
		app.http = httpSrv
	}
	app.startedAt = time.Now()
	return app, nil
}
