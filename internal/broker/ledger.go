package broker

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// 中文说明：
// 组合账本：现金、持仓、只追加的成交流水与估值。现金用 decimal 精确
// 累计（避免长回测的浮点漂移）；买卖本身不做资金校验，仓位大小由
// 上层的再平衡策略负责（允许准备金垫付造成的瞬时负现金）。

// ErrMissingPrice 估值时持仓 ticker 缺价。属调用方契约违反，向上传播。
var ErrMissingPrice = errors.New("持仓 ticker 缺少估值价格")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position 单个 ticker 的净持仓。Quantity 有符号：正为多、负为空。
type Position struct {
	Ticker     string  `json:"ticker"`
	Quantity   int64   `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

// Transaction 一次成交记录，写入后不可变。
type Transaction struct {
	Date      time.Time `json:"date"`
	Ticker    string    `json:"ticker"`
	Side      Side      `json:"side"`
	Quantity  int64     `json:"quantity"`
	Price     float64   `json:"price"`
	CashAfter float64   `json:"cash_after"`
}

// Ledger 由单个回测独占，无并发访问（见模拟器的单线程步进）。
type Ledger struct {
	cash      decimal.Decimal
	positions map[string]*Position
	log       []Transaction
	observer  Observer
}

func NewLedger(initialCash float64, observer Observer) *Ledger {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Ledger{
		cash:      decimal.NewFromFloat(initialCash),
		positions: make(map[string]*Position),
		observer:  observer,
	}
}

// Cash 当前现金。
func (l *Ledger) Cash() float64 { return l.cash.InexactFloat64() }

// Buy 买入 qty（必须为正）。先冲抵既有空头，剩余部分开/加多头；
// 同向加仓按数量加权摊薄开仓价。现金扣减 qty·price，不做下限校验。
func (l *Ledger) Buy(ticker string, qty int64, price float64, date time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("buy %s: quantity 必须为正，得到 %d", ticker, qty)
	}
	pos := l.positions[ticker]
	switch {
	case pos == nil:
		l.positions[ticker] = &Position{Ticker: ticker, Quantity: qty, EntryPrice: price}
	case pos.Quantity > 0:
		pos.EntryPrice = weightedEntry(pos.Quantity, pos.EntryPrice, qty, price)
		pos.Quantity += qty
	default:
		// 空头：先平后开。残余多头以本次成交价为开仓价。
		pos.Quantity += qty
		if pos.Quantity > 0 {
			pos.EntryPrice = price
		}
		if pos.Quantity == 0 {
			delete(l.positions, ticker)
		}
	}
	cost := decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(price))
	l.cash = l.cash.Sub(cost)
	l.append(Transaction{Date: date, Ticker: ticker, Side: SideBuy, Quantity: qty, Price: price, CashAfter: l.Cash()})
	return nil
}

// Sell 卖出 qty（必须为正）。减多头，超出部分翻空；无持仓则直接开空；
// 既有空头按数量加权摊薄开仓价。现金增加 qty·price。
func (l *Ledger) Sell(ticker string, qty int64, price float64, date time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("sell %s: quantity 必须为正，得到 %d", ticker, qty)
	}
	pos := l.positions[ticker]
	switch {
	case pos == nil:
		l.positions[ticker] = &Position{Ticker: ticker, Quantity: -qty, EntryPrice: price}
	case pos.Quantity < 0:
		pos.EntryPrice = weightedEntry(-pos.Quantity, pos.EntryPrice, qty, price)
		pos.Quantity -= qty
	default:
		pos.Quantity -= qty
		if pos.Quantity < 0 {
			pos.EntryPrice = price
		}
		if pos.Quantity == 0 {
			delete(l.positions, ticker)
		}
	}
	proceeds := decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(price))
	l.cash = l.cash.Add(proceeds)
	l.append(Transaction{Date: date, Ticker: ticker, Side: SideSell, Quantity: qty, Price: price, CashAfter: l.Cash()})
	return nil
}

func (l *Ledger) append(txn Transaction) {
	l.log = append(l.log, txn)
	l.observer.OnEvent(Event{
		Type:     EventTrade,
		Date:     txn.Date,
		Ticker:   txn.Ticker,
		Side:     txn.Side,
		Quantity: txn.Quantity,
		Price:    txn.Price,
	})
}

// PortfolioValue 现金 + Σ 持仓数量·现价。持仓 ticker 缺价返回
// ErrMissingPrice（不静默跳过）。
func (l *Ledger) PortfolioValue(prices map[string]float64) (float64, error) {
	total := l.cash
	for ticker, pos := range l.positions {
		price, ok := prices[ticker]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingPrice, ticker)
		}
		total = total.Add(decimal.NewFromInt(pos.Quantity).Mul(decimal.NewFromFloat(price)))
	}
	return total.InexactFloat64(), nil
}

// Position 返回某 ticker 持仓副本。
func (l *Ledger) Position(ticker string) (Position, bool) {
	pos, ok := l.positions[ticker]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions 返回全部持仓副本，按 ticker 排序。
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// TransactionLog 返回成交流水只读快照。
func (l *Ledger) TransactionLog() []Transaction {
	out := make([]Transaction, len(l.log))
	copy(out, l.log)
	return out
}

// ReserveCredit / ReserveDebit 成对使用：平空资金缺口先由准备金垫付，
// 执行后原数归还。净效果等于直接扣 cost，但保留中间态供观察。
func (l *Ledger) ReserveCredit(amount float64) {
	l.cash = l.cash.Add(decimal.NewFromFloat(amount))
}

func (l *Ledger) ReserveDebit(amount float64) {
	l.cash = l.cash.Sub(decimal.NewFromFloat(amount))
}

func weightedEntry(heldQty int64, heldEntry float64, addQty int64, addPrice float64) float64 {
	held := decimal.NewFromInt(heldQty).Mul(decimal.NewFromFloat(heldEntry))
	added := decimal.NewFromInt(addQty).Mul(decimal.NewFromFloat(addPrice))
	total := decimal.NewFromInt(heldQty + addQty)
	return held.Add(added).Div(total).InexactFloat64()
}
