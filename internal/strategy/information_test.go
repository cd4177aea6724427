package strategy

import (
	"testing"

	"commotrend/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dayTS(n int64) int64 { return n * 86_400_000 }

func seriesOf(ticker string, prices ...float64) market.Series {
	points := make([]market.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = market.PricePoint{TS: dayTS(int64(i + 1)), Price: p}
	}
	return market.Series{Ticker: ticker, Points: points}
}

func testSpans() Spans { return Spans{Short: 2, Medium: 4, Long: 8} }

func TestNewEMAInformationValidation(t *testing.T) {
	_, err := NewEMAInformation(Spans{Short: 4, Medium: 2, Long: 8}, map[string]market.Series{
		"GC=F": seriesOf("GC=F", 1, 2, 3),
	})
	assert.Error(t, err)

	_, err = NewEMAInformation(testSpans(), map[string]market.Series{})
	assert.Error(t, err)
}

func TestPricesLastKnown(t *testing.T) {
	info, err := NewEMAInformation(testSpans(), map[string]market.Series{
		"GC=F": seriesOf("GC=F", 100, 101, 102),
		"CL=F": seriesOf("CL=F", 70),
	})
	require.NoError(t, err)

	prices := info.Prices(dayTS(2))
	assert.Equal(t, 101.0, prices["GC=F"])
	// CL=F 只有第 1 天的报价，第 2 天沿用
	assert.Equal(t, 70.0, prices["CL=F"])

	// 起点之前没有任何报价
	prices = info.Prices(dayTS(1) - 1)
	assert.Empty(t, prices)
}

func TestComputeInformationSortedAndComplete(t *testing.T) {
	info, err := NewEMAInformation(testSpans(), map[string]market.Series{
		"ZS=F": seriesOf("ZS=F", 10, 11, 12, 13, 14),
		"CT=F": seriesOf("CT=F", 5, 4, 3, 2, 1),
	})
	require.NoError(t, err)

	set, err := info.ComputeInformation(dayTS(5))
	require.NoError(t, err)
	require.Len(t, set.FullData, 2)
	assert.Len(t, set.Signals, 10)

	for i := 1; i < len(set.Signals); i++ {
		prev, cur := set.Signals[i-1], set.Signals[i]
		if prev.TS == cur.TS {
			assert.LessOrEqual(t, prev.Ticker, cur.Ticker)
		} else {
			assert.Less(t, prev.TS, cur.TS)
		}
	}
}

// EMA 只依赖过去，一次性算到末尾与截断到任意前缀必须给出相同前缀信号。
func TestComputeInformationPrefixConsistency(t *testing.T) {
	prices := []float64{9, 12, 8, 14, 11, 16, 13, 18, 15, 20}
	info, err := NewEMAInformation(testSpans(), map[string]market.Series{
		"OJ=F": seriesOf("OJ=F", prices...),
	})
	require.NoError(t, err)

	full, err := info.ComputeInformation(dayTS(10))
	require.NoError(t, err)
	partial, err := info.ComputeInformation(dayTS(6))
	require.NoError(t, err)

	require.Len(t, partial.Signals, 6)
	assert.Equal(t, full.Signals[:6], partial.Signals)
}

func TestActiveAtFiltersHold(t *testing.T) {
	set := InformationSet{Signals: []Signal{
		{TS: dayTS(1), Ticker: "GC=F", Action: ActionHold},
		{TS: dayTS(2), Ticker: "GC=F", Action: ActionBuy},
		{TS: dayTS(2), Ticker: "CL=F", Action: ActionSell},
		{TS: dayTS(3), Ticker: "CL=F", Action: ActionHold},
	}}
	active := set.ActiveAt(dayTS(2))
	require.Len(t, active, 2)
	assert.Equal(t, ActionBuy, active[0].Action)
	assert.Equal(t, ActionSell, active[1].Action)
	assert.Empty(t, set.ActiveAt(dayTS(1)))
	assert.Empty(t, set.ActiveAt(dayTS(3)))
}
