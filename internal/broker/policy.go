package broker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"commotrend/internal/strategy"
)

// 中文说明：
// 两种互斥的再平衡策略：long_only（八成现金均分给当日 Buy 信号）与
// long_short（按当前权益的八成除以标的数定每名额度，卖出信号开空，
// 买入信号优先平空，缺口可动用两成权益的准备金垫付）。
// 二者的分母语义不同（现金 vs 权益），通过配置选其一，不做分支混写。

const (
	defaultInvestFraction  = 0.80
	defaultShortFraction   = 0.20
	defaultReserveFraction = 0.20
)

// RebalancingPolicy 消费当日活跃信号与报价快照，对账本下达买卖指令。
type RebalancingPolicy interface {
	Name() string
	Rebalance(t time.Time, signals []strategy.Signal, prices map[string]float64, ledger *Ledger) error
}

// NewPolicy 按配置名构造策略。
func NewPolicy(name string, universeSize int, observer Observer) (RebalancingPolicy, error) {
	if observer == nil {
		observer = nopObserver{}
	}
	switch name {
	case "long_only":
		return &LongOnlyPolicy{InvestFraction: defaultInvestFraction, observer: observer}, nil
	case "long_short":
		if universeSize <= 0 {
			return nil, fmt.Errorf("long_short 策略需要正的标的数，得到 %d", universeSize)
		}
		return &LongShortPolicy{
			UniverseSize:    universeSize,
			AllocFraction:   defaultInvestFraction,
			ShortFraction:   defaultShortFraction,
			ReserveFraction: defaultReserveFraction,
			observer:        observer,
		}, nil
	default:
		return nil, fmt.Errorf("未知再平衡策略: %s", name)
	}
}

// LongOnlyPolicy 只做多。Sell 全平既有多头，Buy 把 InvestFraction 份额
// 的现金均分到当日全部 Buy 信号（缺价的信号份额不重分）。
type LongOnlyPolicy struct {
	InvestFraction float64
	observer       Observer
}

func (p *LongOnlyPolicy) Name() string { return "long_only" }

func (p *LongOnlyPolicy) Rebalance(t time.Time, signals []strategy.Signal, prices map[string]float64, ledger *Ledger) error {
	var buys []strategy.Signal
	for _, sig := range signals {
		switch sig.Action {
		case strategy.ActionSell:
			price, ok := prices[sig.Ticker]
			if !ok {
				p.observer.OnEvent(Event{Type: EventMissingPrice, Date: t, Ticker: sig.Ticker, Side: SideSell})
				continue
			}
			if pos, held := ledger.Position(sig.Ticker); held && pos.Quantity > 0 {
				if err := ledger.Sell(sig.Ticker, pos.Quantity, price, t); err != nil {
					return err
				}
			}
		case strategy.ActionBuy:
			buys = append(buys, sig)
		}
	}
	if len(buys) == 0 {
		return nil
	}
	perTicker := p.InvestFraction * ledger.Cash() / float64(len(buys))
	for _, sig := range buys {
		price, ok := prices[sig.Ticker]
		if !ok {
			p.observer.OnEvent(Event{Type: EventMissingPrice, Date: t, Ticker: sig.Ticker, Side: SideBuy})
			continue
		}
		qty := int64(math.Floor(perTicker / price))
		if qty <= 0 {
			continue
		}
		if err := ledger.Buy(sig.Ticker, qty, price, t); err != nil {
			return err
		}
	}
	return nil
}

// LongShortPolicy 多空双向。每次再平衡都用当时权益重算每名额度，
// 先处理 Sell（按日期排序）再处理 Buy。
type LongShortPolicy struct {
	UniverseSize    int
	AllocFraction   float64
	ShortFraction   float64
	ReserveFraction float64
	observer        Observer
}

func (p *LongShortPolicy) Name() string { return "long_short" }

func (p *LongShortPolicy) Rebalance(t time.Time, signals []strategy.Signal, prices map[string]float64, ledger *Ledger) error {
	value, err := ledger.PortfolioValue(prices)
	if err != nil {
		return err
	}
	alloc := p.AllocFraction * value / float64(p.UniverseSize)

	ordered := make([]strategy.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Action != ordered[j].Action {
			return ordered[i].Action == strategy.ActionSell
		}
		return ordered[i].TS < ordered[j].TS
	})

	for _, sig := range ordered {
		price, ok := prices[sig.Ticker]
		if !ok {
			p.observer.OnEvent(Event{Type: EventMissingPrice, Date: t, Ticker: sig.Ticker})
			continue
		}
		switch sig.Action {
		case strategy.ActionSell:
			if err := p.sell(t, sig.Ticker, price, alloc, ledger); err != nil {
				return err
			}
		case strategy.ActionBuy:
			if err := p.buy(t, sig.Ticker, price, alloc, value, ledger); err != nil {
				return err
			}
		}
	}
	return nil
}

// sell 先全平多头，再按 ShortFraction·alloc 开/加空。
func (p *LongShortPolicy) sell(t time.Time, ticker string, price, alloc float64, ledger *Ledger) error {
	if pos, held := ledger.Position(ticker); held && pos.Quantity > 0 {
		if err := ledger.Sell(ticker, pos.Quantity, price, t); err != nil {
			return err
		}
	}
	qty := int64(math.Floor(p.ShortFraction * alloc / price))
	if qty <= 0 {
		return nil
	}
	return ledger.Sell(ticker, qty, price, t)
}

// buy 有空头先平：现金够则全平；缺口不超过准备金就垫付后全平，
// 否则按现金能买到的数量部分平。无空头则按额度开多，现金不足时
// 降级为部分成交。
func (p *LongShortPolicy) buy(t time.Time, ticker string, price, alloc, value float64, ledger *Ledger) error {
	pos, held := ledger.Position(ticker)
	if held && pos.Quantity < 0 {
		coverQty := -pos.Quantity
		cost := float64(coverQty) * price
		cash := ledger.Cash()
		if cash >= cost {
			return ledger.Buy(ticker, coverQty, price, t)
		}
		shortfall := cost - cash
		reserve := p.ReserveFraction * value
		if shortfall <= reserve {
			p.observer.OnEvent(Event{Type: EventReserveCover, Date: t, Ticker: ticker, Amount: shortfall,
				Detail: fmt.Sprintf("cost=%.2f cash=%.2f", cost, cash)})
			ledger.ReserveCredit(shortfall)
			if err := ledger.Buy(ticker, coverQty, price, t); err != nil {
				return err
			}
			ledger.ReserveDebit(shortfall)
			return nil
		}
		partial := int64(math.Floor(cash / price))
		if partial <= 0 {
			return nil
		}
		p.observer.OnEvent(Event{Type: EventPartialFill, Date: t, Ticker: ticker, Side: SideBuy,
			Quantity: partial, Price: price, Detail: fmt.Sprintf("cover %d/%d", partial, coverQty)})
		return ledger.Buy(ticker, partial, price, t)
	}

	qty := int64(math.Floor(alloc / price))
	if qty <= 0 {
		return nil
	}
	affordable := int64(math.Floor(ledger.Cash() / price))
	if affordable < qty {
		if affordable <= 0 {
			return nil
		}
		p.observer.OnEvent(Event{Type: EventPartialFill, Date: t, Ticker: ticker, Side: SideBuy,
			Quantity: affordable, Price: price, Detail: fmt.Sprintf("want %d", qty)})
		qty = affordable
	}
	return ledger.Buy(ticker, qty, price, t)
}
