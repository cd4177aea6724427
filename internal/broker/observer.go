package broker

import (
	"time"

	"commotrend/internal/logger"
)

// 中文说明：
// 账本与再平衡过程中的非致命状况（缺价、部分成交、动用准备金）
// 通过 Observer 以事件形式抛出，便于测试断言；默认实现只打日志。

type EventType string

const (
	EventTrade        EventType = "trade"
	EventMissingPrice EventType = "missing_price"
	EventPartialFill  EventType = "partial_fill"
	EventReserveCover EventType = "reserve_cover"
)

// Event 一次可观测事件。Quantity/Price/Amount 按事件类型选填。
type Event struct {
	Type     EventType
	Date     time.Time
	Ticker   string
	Side     Side
	Quantity int64
	Price    float64
	Amount   float64
	Detail   string
}

type Observer interface {
	OnEvent(Event)
}

// ObserverFunc 便于用闭包收集事件。
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LogObserver 默认观察者：非致命状况打 Warn，成交打 Debug。
type LogObserver struct{}

func (LogObserver) OnEvent(e Event) {
	switch e.Type {
	case EventTrade:
		logger.Debugf("[broker] %s %s x%d @ %.4f", e.Side, e.Ticker, e.Quantity, e.Price)
	case EventMissingPrice:
		logger.Warnf("[broker] %s 在 %s 无可用报价，跳过", e.Ticker, e.Date.Format("2006-01-02"))
	case EventPartialFill:
		logger.Warnf("[broker] %s 资金不足，部分成交 x%d @ %.4f（%s）", e.Ticker, e.Quantity, e.Price, e.Detail)
	case EventReserveCover:
		logger.Warnf("[broker] %s 动用准备金 %.2f 平空（%s）", e.Ticker, e.Amount, e.Detail)
	default:
		logger.Debugf("[broker] event %s %s", e.Type, e.Ticker)
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
