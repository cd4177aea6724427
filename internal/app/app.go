package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"commotrend/internal/backtest"
	"commotrend/internal/config"
	"commotrend/internal/logger"

	"golang.org/x/sync/errgroup"
)

// App 应用级编排：加载配置→初始化依赖→serve 模式起 HTTP，
// 否则按配置跑一次回测后退出。
type App struct {
	cfg     *config.Config
	store   *backtest.Store
	results *backtest.ResultStore
	fetcher *backtest.Service
	sim     *backtest.Simulator
	http    *backtest.HTTPServer

	startedAt time.Time
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动应用并阻塞到结束。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.fetcher.SetContext(ctx)
	a.sim.SetContext(ctx)
	defer a.close()

	if a.http != nil {
		logger.InfoBlock(strings.Join([]string{
			"启动",
			fmt.Sprintf("模式: serve（%s）", a.cfg.Server.Addr),
			fmt.Sprintf("数据源: %s", a.cfg.Feed.Source),
			fmt.Sprintf("标的: %s", strings.Join(a.cfg.Strategy.Universe, ", ")),
		}, "\n"))
		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			if err := a.http.Run(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
		return group.Wait()
	}
	return a.runOnce(ctx)
}

// runOnce 按配置文件的区间跑一次回测，等待完成后退出。
func (a *App) runOnce(ctx context.Context) error {
	bt := a.cfg.Backtest
	if bt.Start == "" {
		return fmt.Errorf("一次性模式需要 backtest.start（serve 模式请开启 server.enabled）")
	}
	logger.InfoBlock(strings.Join([]string{
		"启动",
		"模式: 一次性回测",
		fmt.Sprintf("区间: %s ~ %s", bt.Start, orToday(bt.End)),
		fmt.Sprintf("策略: %s  初始资金: %.0f", a.cfg.Strategy.Policy, bt.InitialCash),
		fmt.Sprintf("标的: %s", strings.Join(a.cfg.Strategy.Universe, ", ")),
	}, "\n"))

	run, err := a.sim.StartRun(backtest.RunRequest{Start: bt.Start, End: bt.End})
	if err != nil {
		return err
	}
	logger.Infof("回测 %s (%s) 已提交", run.ID, run.Name)
	a.sim.Wait()

	final, err := a.results.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if final.Status != backtest.RunStatusDone {
		return fmt.Errorf("回测未完成（%s）: %s", final.Status, final.Message)
	}
	logger.Infof("回测完成: %s", final.Message)
	return nil
}

func (a *App) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
}

// Simulator 暴露模拟器实例，测试/脚本用。
func (a *App) Simulator() *backtest.Simulator {
	if a == nil {
		return nil
	}
	return a.sim
}

func orToday(end string) string {
	if end != "" {
		return end
	}
	return "今天"
}
