package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"commotrend/internal/market"
)

// 中文说明：
// 基于 TALib 的诊断指标报告，回测完成后按 ticker 附加到结果里，
// 帮助人工复盘信号质量（趋势、动量、波动率）。不参与交易决策。

// Settings 描述计算指标所需的最小配置。
type Settings struct {
	Ticker   string
	Interval string
	EMA      EMASettings
	RSI      RSISettings
}

// EMASettings TALib EMA 的三个窗口，缺省对齐回测窗口。
type EMASettings struct {
	Short  int `json:"short,omitempty"`
	Medium int `json:"medium,omitempty"`
	Long   int `json:"long,omitempty"`
}

// RSISettings RSI 参数。
type RSISettings struct {
	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`
}

// Value 保存单个指标的最新值、序列与状态。
type Value struct {
	Latest float64   `json:"latest"`
	Series []float64 `json:"series,omitempty"`
	State  string    `json:"state,omitempty"`
	Note   string    `json:"note,omitempty"`
}

// Report 汇总单个 ticker+interval 的指标输出。
type Report struct {
	Ticker   string           `json:"ticker"`
	Interval string           `json:"interval"`
	Count    int              `json:"count"`
	Values   map[string]Value `json:"values"`
}

// ComputeAll 计算常用指标并返回结构化报告。
func ComputeAll(candles []market.Candle, cfg Settings) (Report, error) {
	rep := Report{
		Ticker:   cfg.Ticker,
		Interval: cfg.Interval,
		Count:    len(candles),
		Values:   make(map[string]Value),
	}
	if len(candles) == 0 {
		return rep, fmt.Errorf("no candles")
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	if cfg.EMA.Short <= 0 {
		cfg.EMA.Short = 5
	}
	if cfg.EMA.Medium <= 0 {
		cfg.EMA.Medium = 50
	}
	if cfg.EMA.Long <= 0 {
		cfg.EMA.Long = 250
	}
	lastClose := closes[len(closes)-1]
	for name, span := range map[string]int{
		"ema_short":  cfg.EMA.Short,
		"ema_medium": cfg.EMA.Medium,
		"ema_long":   cfg.EMA.Long,
	} {
		if span >= len(closes) {
			continue
		}
		series := trimLeadingZeros(sanitizeSeries(talib.Ema(closes, span)))
		rep.Values[name] = Value{
			Latest: lastValid(series),
			Series: series,
			State:  relativeState(lastClose, lastValid(series)),
			Note:   fmt.Sprintf("EMA%d vs price", span),
		}
	}

	if cfg.RSI.Period <= 0 {
		cfg.RSI.Period = 14
	}
	if cfg.RSI.Overbought == 0 {
		cfg.RSI.Overbought = 70
	}
	if cfg.RSI.Oversold == 0 {
		cfg.RSI.Oversold = 30
	}
	if cfg.RSI.Period < len(closes) {
		rsiSeries := sanitizeSeries(talib.Rsi(closes, cfg.RSI.Period))
		rsiVal := lastValid(rsiSeries)
		state := "neutral"
		switch {
		case rsiVal >= cfg.RSI.Overbought:
			state = "overbought"
		case rsiVal <= cfg.RSI.Oversold:
			state = "oversold"
		}
		rep.Values["rsi"] = Value{
			Latest: rsiVal,
			Series: rsiSeries,
			State:  state,
			Note:   fmt.Sprintf("period=%d thresholds=%.1f/%.1f", cfg.RSI.Period, cfg.RSI.Oversold, cfg.RSI.Overbought),
		}
	}

	if len(closes) > 35 {
		_, signal, hist := talib.Macd(closes, 12, 26, 9)
		histSeries := sanitizeSeries(hist)
		macdState := "flat"
		switch {
		case lastValid(histSeries) > 0:
			macdState = "bullish"
		case lastValid(histSeries) < 0:
			macdState = "bearish"
		}
		rep.Values["macd"] = Value{
			Latest: lastValid(histSeries),
			Series: histSeries,
			State:  macdState,
			Note:   fmt.Sprintf("signal=%.4f", lastValid(sanitizeSeries(signal))),
		}
	}

	if len(closes) > 9 {
		rocSeries := sanitizeSeries(talib.Roc(closes, 9))
		rocVal := lastValid(rocSeries)
		rep.Values["roc"] = Value{
			Latest: rocVal,
			Series: rocSeries,
			State:  polarityState(rocVal),
			Note:   "period=9",
		}
	}

	if len(closes) > 14 {
		atrSeries := sanitizeSeries(talib.Atr(highs, lows, closes, 14))
		rep.Values["atr"] = Value{
			Latest: lastValid(atrSeries),
			Series: atrSeries,
			State:  "volatility",
			Note:   "period=14",
		}
	}

	return rep, nil
}

func sanitizeSeries(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, round4(v))
	}
	return out
}

// trimLeadingZeros 去掉 TALib 零值热身段，使序列从有效窗口开始。
func trimLeadingZeros(series []float64) []float64 {
	start := 0
	for start < len(series) && math.Abs(series[start]) <= 1e-9 {
		start++
	}
	return series[start:]
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

func relativeState(price, ref float64) string {
	if ref == 0 {
		return "unknown"
	}
	switch {
	case price > ref*1.002:
		return "above"
	case price < ref*0.998:
		return "below"
	default:
		return "touch"
	}
}

func polarityState(v float64) string {
	switch {
	case v > 0:
		return "positive"
	case v < 0:
		return "negative"
	default:
		return "flat"
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
