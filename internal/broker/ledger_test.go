package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestLedgerBuySellRoundTrip(t *testing.T) {
	l := NewLedger(1000, nil)
	require.NoError(t, l.Buy("X", 10, 60, day))
	assert.InDelta(t, 400.0, l.Cash(), 1e-9)

	pos, ok := l.Position("X")
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.Equal(t, 60.0, pos.EntryPrice)

	require.NoError(t, l.Sell("X", 5, 70, day.AddDate(0, 0, 1)))
	assert.InDelta(t, 750.0, l.Cash(), 1e-9)
	pos, _ = l.Position("X")
	assert.Equal(t, int64(5), pos.Quantity)
	assert.Equal(t, 60.0, pos.EntryPrice)

	value, err := l.PortfolioValue(map[string]float64{"X": 80})
	require.NoError(t, err)
	assert.InDelta(t, 1150.0, value, 1e-9)

	log := l.TransactionLog()
	require.Len(t, log, 2)
	assert.Equal(t, SideBuy, log[0].Side)
	assert.InDelta(t, 400.0, log[0].CashAfter, 1e-9)
	assert.Equal(t, SideSell, log[1].Side)
	assert.InDelta(t, 750.0, log[1].CashAfter, 1e-9)
}

func TestLedgerWeightedEntryOnAdd(t *testing.T) {
	l := NewLedger(10_000, nil)
	require.NoError(t, l.Buy("GC=F", 10, 100, day))
	require.NoError(t, l.Buy("GC=F", 30, 140, day))

	pos, ok := l.Position("GC=F")
	require.True(t, ok)
	assert.Equal(t, int64(40), pos.Quantity)
	// (10·100 + 30·140) / 40 = 130
	assert.InDelta(t, 130.0, pos.EntryPrice, 1e-9)
}

func TestLedgerSellFlipsThroughZero(t *testing.T) {
	l := NewLedger(1000, nil)
	require.NoError(t, l.Buy("CL=F", 4, 50, day))
	// 卖 10：平 4 多，翻成 6 空，开仓价取本次成交价
	require.NoError(t, l.Sell("CL=F", 10, 55, day))

	pos, ok := l.Position("CL=F")
	require.True(t, ok)
	assert.Equal(t, int64(-6), pos.Quantity)
	assert.Equal(t, 55.0, pos.EntryPrice)
	// 1000 - 200 + 550
	assert.InDelta(t, 1350.0, l.Cash(), 1e-9)
}

func TestLedgerBuyCoversShortExactly(t *testing.T) {
	l := NewLedger(1000, nil)
	require.NoError(t, l.Sell("SB=F", 5, 20, day))
	require.NoError(t, l.Buy("SB=F", 5, 18, day))

	_, ok := l.Position("SB=F")
	assert.False(t, ok, "完全平空后持仓应删除")
	assert.InDelta(t, 1010.0, l.Cash(), 1e-9)
}

func TestLedgerShortAddWeightsEntry(t *testing.T) {
	l := NewLedger(0, nil)
	require.NoError(t, l.Sell("ZC=F", 10, 30, day))
	require.NoError(t, l.Sell("ZC=F", 10, 40, day))
	pos, _ := l.Position("ZC=F")
	assert.Equal(t, int64(-20), pos.Quantity)
	assert.InDelta(t, 35.0, pos.EntryPrice, 1e-9)
}

func TestLedgerRejectsNonPositiveQuantity(t *testing.T) {
	l := NewLedger(100, nil)
	assert.Error(t, l.Buy("X", 0, 10, day))
	assert.Error(t, l.Buy("X", -3, 10, day))
	assert.Error(t, l.Sell("X", 0, 10, day))
	assert.Empty(t, l.TransactionLog())
}

func TestPortfolioValueMissingPriceIsFatal(t *testing.T) {
	l := NewLedger(500, nil)
	require.NoError(t, l.Buy("OJ=F", 2, 100, day))

	_, err := l.PortfolioValue(map[string]float64{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingPrice)
}

func TestReserveCreditDebitNetsToZero(t *testing.T) {
	l := NewLedger(100, nil)
	l.ReserveCredit(250)
	assert.InDelta(t, 350.0, l.Cash(), 1e-9)
	l.ReserveDebit(250)
	assert.InDelta(t, 100.0, l.Cash(), 1e-9)
}

func TestLedgerEmitsTradeEvents(t *testing.T) {
	var events []Event
	l := NewLedger(1000, ObserverFunc(func(e Event) { events = append(events, e) }))
	require.NoError(t, l.Buy("GC=F", 1, 10, day))
	require.NoError(t, l.Sell("GC=F", 1, 12, day))
	require.Len(t, events, 2)
	assert.Equal(t, EventTrade, events[0].Type)
	assert.Equal(t, SideBuy, events[0].Side)
	assert.Equal(t, SideSell, events[1].Side)
}

// 长序列的现金守恒：decimal 累计不应出现浮点漂移
func TestLedgerCashExactOverManySmallTrades(t *testing.T) {
	l := NewLedger(1000, nil)
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Buy("CT=F", 1, 0.1, day))
	}
	assert.Equal(t, 900.0, l.Cash())
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Sell("CT=F", 1, 0.1, day))
	}
	assert.Equal(t, 1000.0, l.Cash())
}
