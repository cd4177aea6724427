package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(closeTime int64, close float64) Candle {
	return Candle{OpenTime: closeTime - 1000, CloseTime: closeTime, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestSeriesFromCandlesDedupesLastWins(t *testing.T) {
	s := SeriesFromCandles("GC=F", []Candle{
		candle(1000, 10),
		candle(2000, 11),
		candle(2000, 12), // 重复时间戳，后者生效
		candle(3000, 13),
	})
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{10, 12, 13}, s.Prices())
}

func TestSeriesUpToPrefix(t *testing.T) {
	s := SeriesFromCandles("CL=F", []Candle{
		candle(1000, 1), candle(2000, 2), candle(3000, 3),
	})
	assert.Equal(t, 0, s.UpTo(999).Len())
	assert.Equal(t, 2, s.UpTo(2000).Len())
	assert.Equal(t, 3, s.UpTo(9999).Len())
}

func TestLastPriceAt(t *testing.T) {
	s := SeriesFromCandles("SB=F", []Candle{
		candle(1000, 5), candle(3000, 7),
	})
	_, ok := s.LastPriceAt(500)
	assert.False(t, ok)

	price, ok := s.LastPriceAt(1000)
	require.True(t, ok)
	assert.Equal(t, 5.0, price)

	// 中间的空日沿用上一个收盘价
	price, ok = s.LastPriceAt(2000)
	require.True(t, ok)
	assert.Equal(t, 5.0, price)

	price, _ = s.LastPriceAt(4000)
	assert.Equal(t, 7.0, price)
}
