package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextEdgeTriggered(t *testing.T) {
	// 多头排列：Flat→Buy，之后保持排列不再触发
	action, state := Next(StateFlat, 3, 2, 1)
	assert.Equal(t, ActionBuy, action)
	assert.Equal(t, StateLong, state)

	action, state = Next(state, 4, 3, 2)
	assert.Equal(t, ActionHold, action)
	assert.Equal(t, StateLong, state)

	// 翻转为空头排列：Long→Sell
	action, state = Next(state, 1, 2, 3)
	assert.Equal(t, ActionSell, action)
	assert.Equal(t, StateShort, state)

	action, state = Next(state, 0.5, 1.5, 2.5)
	assert.Equal(t, ActionHold, action)
	assert.Equal(t, StateShort, state)
}

func TestNextTiesHold(t *testing.T) {
	for _, tc := range []struct {
		name                string
		short, medium, long float64
	}{
		{"all equal", 2, 2, 2},
		{"short=medium", 2, 2, 1},
		{"medium=long", 3, 2, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			action, state := Next(StateFlat, tc.short, tc.medium, tc.long)
			assert.Equal(t, ActionHold, action)
			assert.Equal(t, StateFlat, state)
		})
	}
}

func TestNextMixedOrderingHolds(t *testing.T) {
	// 短>中 但 中<长：非完全排列，不动作
	action, state := Next(StateFlat, 3, 1, 2)
	assert.Equal(t, ActionHold, action)
	assert.Equal(t, StateFlat, state)
}

func TestTrackerPerTickerState(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, ActionBuy, tr.Step("GC=F", 3, 2, 1))
	assert.Equal(t, ActionSell, tr.Step("CL=F", 1, 2, 3))
	assert.Equal(t, StateLong, tr.StateOf("GC=F"))
	assert.Equal(t, StateShort, tr.StateOf("CL=F"))
	assert.Equal(t, StateFlat, tr.StateOf("SB=F"))

	// 各 ticker 状态互不串扰
	assert.Equal(t, ActionHold, tr.Step("GC=F", 4, 3, 2))
	assert.Equal(t, ActionSell, tr.Step("GC=F", 1, 2, 3))
}

func TestReplayMonotonicRiseFiresSingleBuy(t *testing.T) {
	// 单调上行价格：短 EMA 必然率先上穿，且整段只出一次 Buy
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	triple := ComputeTriple(prices, Spans{Short: 3, Medium: 7, Long: 15})
	actions := Replay(triple)
	require.Len(t, actions, len(prices))

	buys := 0
	for _, a := range actions {
		switch a {
		case ActionBuy:
			buys++
		case ActionSell:
			t.Fatalf("单调上行不应出现 Sell")
		}
	}
	assert.Equal(t, 1, buys)
}

func TestReplayDeterministic(t *testing.T) {
	prices := []float64{5, 7, 6, 9, 12, 10, 8, 6, 5, 4, 7, 11, 15}
	triple := ComputeTriple(prices, Spans{Short: 2, Medium: 4, Long: 8})
	first := Replay(triple)
	second := Replay(triple)
	assert.Equal(t, first, second)
}
