package config

// 默认值对齐最初的商品期货部署：雅虎行情、日线、EMA 5/50/250、
// 百万初始资金、只做多。
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.DataRoot == "" {
		c.App.DataRoot = "data/candles"
	}
	if c.Feed.Source == "" {
		c.Feed.Source = "yahoo"
	}
	if c.Feed.RateLimitPerMin <= 0 {
		c.Feed.RateLimitPerMin = 60
	}
	if c.Feed.MaxConcurrent <= 0 {
		c.Feed.MaxConcurrent = 2
	}
	if len(c.Strategy.Universe) == 0 {
		c.Strategy.Universe = []string{"GC=F", "CL=F", "CT=F", "OJ=F", "SB=F", "ZS=F", "ZC=F"}
	}
	if c.Strategy.Interval == "" {
		c.Strategy.Interval = "1d"
	}
	if c.Strategy.Spans.Short <= 0 {
		c.Strategy.Spans.Short = 5
	}
	if c.Strategy.Spans.Medium <= 0 {
		c.Strategy.Spans.Medium = 50
	}
	if c.Strategy.Spans.Long <= 0 {
		c.Strategy.Spans.Long = 250
	}
	if c.Strategy.Policy == "" {
		c.Strategy.Policy = "long_only"
	}
	if c.Backtest.InitialCash <= 0 {
		c.Backtest.InitialCash = 1_000_000
	}
	if c.Backtest.ResultRoot == "" {
		c.Backtest.ResultRoot = "data/results"
	}
	if c.Backtest.ExportDir == "" {
		c.Backtest.ExportDir = "backtests"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9985"
	}
}
