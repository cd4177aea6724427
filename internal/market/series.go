package market

import "sort"

// PricePoint 收盘价时间点（TS 为 Unix 毫秒）。
type PricePoint struct {
	TS    int64   `json:"ts"`
	Price float64 `json:"price"`
}

// Series 单个 ticker 的收盘价序列，按时间严格升序。
// 调用方持有所有权；派生列（EMA 等）只追加，不修改原始点。
type Series struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// SeriesFromCandles 从 K 线构造收盘价序列。重复时间戳只保留最后一条。
func SeriesFromCandles(ticker string, candles []Candle) Series {
	points := make([]PricePoint, 0, len(candles))
	for _, c := range candles {
		p := PricePoint{TS: c.CloseTime, Price: c.Close}
		if n := len(points); n > 0 && points[n-1].TS == p.TS {
			points[n-1] = p
			continue
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TS < points[j].TS })
	return Series{Ticker: ticker, Points: points}
}

// Len 返回点数。
func (s Series) Len() int { return len(s.Points) }

// Prices 导出价格切片（与 Points 等长）。
func (s Series) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// UpTo 返回时间戳 <= ts 的前缀（共享底层数组，只读使用）。
func (s Series) UpTo(ts int64) Series {
	idx := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].TS > ts })
	return Series{Ticker: s.Ticker, Points: s.Points[:idx]}
}

// LastPriceAt 返回 ts 之前（含）最近一个收盘价。
func (s Series) LastPriceAt(ts int64) (float64, bool) {
	idx := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].TS > ts })
	if idx == 0 {
		return 0, false
	}
	return s.Points[idx-1].Price, true
}
