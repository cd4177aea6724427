package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMASeedAndRecursion(t *testing.T) {
	prices := []float64{10, 11, 12, 13}
	span := 3
	out := EMA(prices, span)
	require.Len(t, out, 4)

	// 首值直接取第一条价格，不用 SMA 热身
	assert.Equal(t, 10.0, out[0])

	alpha := 2.0 / float64(span+1)
	expect := prices[0]
	for i := 1; i < len(prices); i++ {
		expect = alpha*prices[i] + (1-alpha)*expect
		assert.InDelta(t, expect, out[i], 1e-12, "i=%d", i)
	}
}

func TestEMAConstantSeriesStaysFlat(t *testing.T) {
	prices := []float64{42, 42, 42, 42, 42}
	out := EMA(prices, 5)
	for i, v := range out {
		assert.InDelta(t, 42.0, v, 1e-12, "i=%d", i)
	}
}

func TestEMAEmptyAndBadSpan(t *testing.T) {
	assert.Nil(t, EMA(nil, 5))
	assert.Nil(t, EMA([]float64{1, 2}, 0))
}

func TestComputeTripleLengths(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	triple := ComputeTriple(prices, Spans{Short: 2, Medium: 4, Long: 6})
	assert.Len(t, triple.Short, len(prices))
	assert.Len(t, triple.Medium, len(prices))
	assert.Len(t, triple.Long, len(prices))

	// 短窗口对新价格反应更快
	assert.Greater(t, triple.Short[len(prices)-1], triple.Long[len(prices)-1])
}

func TestSpansValid(t *testing.T) {
	assert.True(t, Spans{Short: 5, Medium: 50, Long: 250}.Valid())
	assert.False(t, Spans{Short: 50, Medium: 5, Long: 250}.Valid())
	assert.False(t, Spans{Short: 0, Medium: 5, Long: 10}.Valid())
	assert.False(t, Spans{Short: 5, Medium: 5, Long: 10}.Valid())
}
