package feed

import (
	"context"
	"fmt"
	"strings"

	"commotrend/internal/config"
	"commotrend/internal/market"
)

// FetchRequest 描述一次历史行情请求。时间为 Unix 毫秒，End 为 0 表示不限。
type FetchRequest struct {
	Ticker   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// HistorySource 统一不同行情来源的拉取行为。
type HistorySource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error)
	Name() string
}

// Build 按配置构造数据源。
func Build(cfg config.FeedConfig) (HistorySource, error) {
	switch strings.ToLower(cfg.Source) {
	case "yahoo":
		return NewYahooSource(cfg.Yahoo.BaseURL), nil
	case "binance":
		return NewBinanceSource(cfg.Binance.BaseURL), nil
	case "csv":
		return NewCSVSource(cfg.CSV.Dir), nil
	default:
		return nil, fmt.Errorf("未知数据源: %s", cfg.Source)
	}
}
