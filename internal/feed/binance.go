package feed

import (
	"context"
	"fmt"
	"strconv"

	"commotrend/internal/market"

	"github.com/adshao/go-binance/v2"
)

// BinanceSource 现货 K 线，用于在加密标的上跑同一套策略。
type BinanceSource struct {
	client *binance.Client
}

func NewBinanceSource(base string) *BinanceSource {
	client := binance.NewClient("", "")
	if base != "" {
		client.BaseURL = base
	}
	return &BinanceSource{client: client}
}

func (b *BinanceSource) Name() string { return "binance" }

func (b *BinanceSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Ticker == "" || req.Interval == "" {
		return nil, fmt.Errorf("ticker/interval 不能为空")
	}
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	svc := b.client.NewKlinesService().Symbol(req.Ticker).Interval(req.Interval).Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 拉取失败（%s %s）: %w", req.Ticker, req.Interval, err)
	}
	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, market.Candle{
			OpenTime:  k.OpenTime,
			CloseTime: k.CloseTime,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
