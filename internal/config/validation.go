package config

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 回测起止日期格式。
const DateLayout = "2006-01-02"

func validate(c *Config) error {
	switch strings.ToLower(c.Feed.Source) {
	case "yahoo", "binance", "csv":
	default:
		return fmt.Errorf("feed.source 非法: %q（支持 yahoo / binance / csv）", c.Feed.Source)
	}
	switch c.Strategy.Policy {
	case "long_only", "long_short":
	default:
		return fmt.Errorf("strategy.policy 非法: %q（支持 long_only / long_short）", c.Strategy.Policy)
	}
	s := c.Strategy.Spans
	if !(s.Short > 0 && s.Medium > s.Short && s.Long > s.Medium) {
		return fmt.Errorf("strategy.spans 必须满足 0 < short < medium < long，得到 %d/%d/%d", s.Short, s.Medium, s.Long)
	}
	for _, ticker := range c.Strategy.Universe {
		if strings.TrimSpace(ticker) == "" {
			return fmt.Errorf("strategy.universe 含空 ticker")
		}
	}
	if c.Backtest.Start != "" || c.Backtest.End != "" {
		start, err := time.Parse(DateLayout, c.Backtest.Start)
		if err != nil {
			return fmt.Errorf("backtest.start 非法: %w", err)
		}
		end, err := time.Parse(DateLayout, c.Backtest.End)
		if err != nil {
			return fmt.Errorf("backtest.end 非法: %w", err)
		}
		if !end.After(start) {
			return fmt.Errorf("backtest.end 必须晚于 start")
		}
	}
	if strings.ToLower(c.Feed.Source) == "csv" && strings.TrimSpace(c.Feed.CSV.Dir) == "" {
		return fmt.Errorf("feed.source=csv 时必须设置 feed.csv.dir")
	}
	return nil
}
