package strategy

import (
	"fmt"
	"sort"

	"commotrend/internal/market"

	"golang.org/x/sync/errgroup"
)

// Information 信息能力：信号机与再平衡器只依赖该接口取价与取信号，
// 不直接接触原始行情存储。
type Information interface {
	// Prices 返回各 ticker 截至 t（含）最近一个收盘价。
	Prices(ts int64) map[string]float64
	// ComputeInformation 返回截至 t 的完整信号序列与 EMA 增强数据。
	ComputeInformation(ts int64) (InformationSet, error)
}

// TickerData 单个 ticker 的 EMA 增强序列。
type TickerData struct {
	Ticker string              `json:"ticker"`
	Points []market.PricePoint `json:"points"`
	EMA    Triple              `json:"ema"`
}

// InformationSet compute_information 的输出：按 (TS, Ticker) 排序的
// 信号序列 + 全量数据。
type InformationSet struct {
	Signals  []Signal     `json:"signals"`
	FullData []TickerData `json:"full_data"`
}

// EMAInformation 基于内存内收盘价序列实现 Information。
// 序列在构造时装载（回测期间只读），EMA 计算可按 ticker 并行。
type EMAInformation struct {
	spans   Spans
	series  map[string]market.Series
	tickers []string
}

func NewEMAInformation(spans Spans, series map[string]market.Series) (*EMAInformation, error) {
	if !spans.Valid() {
		return nil, fmt.Errorf("ema spans 非法: %+v（要求 0 < short < medium < long）", spans)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("没有任何行情序列")
	}
	tickers := make([]string, 0, len(series))
	for ticker := range series {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return &EMAInformation{spans: spans, series: series, tickers: tickers}, nil
}

// Tickers 返回有序 ticker 列表。
func (e *EMAInformation) Tickers() []string {
	out := make([]string, len(e.tickers))
	copy(out, e.tickers)
	return out
}

// Prices 实现 Information。没有任何可用报价的 ticker 不出现在结果里。
func (e *EMAInformation) Prices(ts int64) map[string]float64 {
	out := make(map[string]float64, len(e.tickers))
	for _, ticker := range e.tickers {
		if price, ok := e.series[ticker].LastPriceAt(ts); ok {
			out[ticker] = price
		}
	}
	return out
}

// ComputeInformation 实现 Information。每个 ticker 的 EMA 与信号重放
// 相互独立（只读序列），按 ticker 并行后再按时间戳归并；
// 账本侧的时序约束由调用方（模拟器单线程步进）保证。
func (e *EMAInformation) ComputeInformation(ts int64) (InformationSet, error) {
	perTicker := make([]TickerData, len(e.tickers))
	perSignals := make([][]Signal, len(e.tickers))

	var group errgroup.Group
	for i, ticker := range e.tickers {
		i, ticker := i, ticker
		group.Go(func() error {
			slice := e.series[ticker].UpTo(ts)
			triple := ComputeTriple(slice.Prices(), e.spans)
			perTicker[i] = TickerData{Ticker: ticker, Points: slice.Points, EMA: triple}
			actions := Replay(triple)
			signals := make([]Signal, len(actions))
			for j, action := range actions {
				signals[j] = Signal{TS: slice.Points[j].TS, Ticker: ticker, Action: action}
			}
			perSignals[i] = signals
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return InformationSet{}, err
	}

	var merged []Signal
	for _, signals := range perSignals {
		merged = append(merged, signals...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].TS != merged[j].TS {
			return merged[i].TS < merged[j].TS
		}
		return merged[i].Ticker < merged[j].Ticker
	})
	return InformationSet{Signals: merged, FullData: perTicker}, nil
}

// ActiveAt 过滤出恰好发生在 ts 的活跃信号（非 Hold），保持顺序。
func (s InformationSet) ActiveAt(ts int64) []Signal {
	var out []Signal
	for _, sig := range s.Signals {
		if sig.TS == ts && sig.Active() {
			out = append(out, sig)
		}
	}
	return out
}
