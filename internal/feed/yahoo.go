package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"commotrend/internal/market"

	"github.com/tidwall/gjson"
)

// 中文说明：
// Yahoo Finance chart 接口（商品期货 ticker 形如 GC=F、CL=F）。
// 返回 JSON：时间戳数组（秒）+ OHLCV 并列数组，空洞为 null。

// YahooSource 基于 /v8/finance/chart/<ticker>。
type YahooSource struct {
	baseURL string
	client  *http.Client
}

func NewYahooSource(base string) *YahooSource {
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	return &YahooSource{
		baseURL: base,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (y *YahooSource) Name() string { return "yahoo" }

func (y *YahooSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Ticker == "" || req.Interval == "" {
		return nil, fmt.Errorf("ticker/interval 不能为空")
	}
	interval, err := yahooInterval(req.Interval)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(y.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/v8/finance/chart/" + req.Ticker
	q := u.Query()
	q.Set("interval", interval)
	q.Set("events", "history")
	if req.Start > 0 {
		q.Set("period1", strconv.FormatInt(req.Start/1000, 10))
	}
	if req.End > 0 {
		q.Set("period2", strconv.FormatInt(req.End/1000, 10))
	} else {
		q.Set("period2", strconv.FormatInt(time.Now().Unix(), 10))
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (compatible; commotrend)")
	resp, err := y.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("yahoo 返回状态码 %d（%s）", resp.StatusCode, req.Ticker)
	}
	return parseYahooChart(req.Ticker, body)
}

func parseYahooChart(ticker string, body []byte) ([]market.Candle, error) {
	root := gjson.ParseBytes(body)
	if desc := root.Get("chart.error.description"); desc.Exists() && desc.String() != "" {
		return nil, fmt.Errorf("yahoo 错误（%s）: %s", ticker, desc.String())
	}
	result := root.Get("chart.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("yahoo 响应缺少 chart.result（%s）", ticker)
	}
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	out := make([]market.Candle, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue // 停牌/无成交的空洞
		}
		ms := ts.Int() * 1000
		candle := market.Candle{OpenTime: ms, CloseTime: ms, Close: closes[i].Float()}
		if i < len(opens) {
			candle.Open = opens[i].Float()
		}
		if i < len(highs) {
			candle.High = highs[i].Float()
		}
		if i < len(lows) {
			candle.Low = lows[i].Float()
		}
		if i < len(volumes) {
			candle.Volume = volumes[i].Float()
		}
		out = append(out, candle)
	}
	return out, nil
}

func yahooInterval(interval string) (string, error) {
	switch interval {
	case "1d":
		return "1d", nil
	case "1w", "1wk":
		return "1wk", nil
	case "1mo":
		return "1mo", nil
	default:
		return "", fmt.Errorf("yahoo 不支持的周期: %s", interval)
	}
}
