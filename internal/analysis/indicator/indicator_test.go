package indicator

import (
	"math"
	"testing"

	"commotrend/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + 20*math.Sin(2*math.Pi*float64(i)/60)
		out[i] = market.Candle{
			OpenTime:  int64(i) * 86_400_000,
			CloseTime: int64(i) * 86_400_000,
			Open:      price, High: price + 2, Low: price - 2, Close: price, Volume: 500,
		}
	}
	return out
}

func TestComputeAllDefaults(t *testing.T) {
	candles := sineCandles(300)
	rep, err := ComputeAll(candles, Settings{Ticker: "GC=F", Interval: "1d"})
	require.NoError(t, err)
	assert.Equal(t, "GC=F", rep.Ticker)
	assert.Equal(t, 300, rep.Count)

	for _, key := range []string{"ema_short", "ema_medium", "ema_long", "rsi", "macd", "roc", "atr"} {
		v, ok := rep.Values[key]
		require.True(t, ok, "缺少指标 %s", key)
		assert.False(t, math.IsNaN(v.Latest), "%s latest 不应为 NaN", key)
	}

	rsi := rep.Values["rsi"]
	assert.GreaterOrEqual(t, rsi.Latest, 0.0)
	assert.LessOrEqual(t, rsi.Latest, 100.0)
	assert.Contains(t, []string{"neutral", "overbought", "oversold"}, rsi.State)
}

func TestComputeAllShortSeriesSkipsLongWindows(t *testing.T) {
	candles := sineCandles(40)
	rep, err := ComputeAll(candles, Settings{Ticker: "CL=F", Interval: "1d"})
	require.NoError(t, err)

	_, hasShort := rep.Values["ema_short"]
	assert.True(t, hasShort)
	_, hasLong := rep.Values["ema_long"]
	assert.False(t, hasLong, "数据不足时跳过 250 期 EMA")
}

func TestComputeAllCustomSpans(t *testing.T) {
	candles := sineCandles(100)
	rep, err := ComputeAll(candles, Settings{
		Ticker:   "ZS=F",
		Interval: "1d",
		EMA:      EMASettings{Short: 3, Medium: 10, Long: 30},
		RSI:      RSISettings{Period: 7, Oversold: 25, Overbought: 75},
	})
	require.NoError(t, err)
	assert.Contains(t, rep.Values["ema_long"].Note, "EMA30")
}

func TestComputeAllEmptyInput(t *testing.T) {
	_, err := ComputeAll(nil, Settings{Ticker: "CT=F"})
	assert.Error(t, err)
}
