package backtest

import (
	"encoding/json"
	"time"

	"commotrend/internal/strategy"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 本次回测的参数快照，便于重放。
type RunConfig struct {
	Universe    []string       `json:"universe"`
	Policy      string         `json:"policy"`
	Spans       strategy.Spans `json:"spans"`
	Timeframe   string         `json:"timeframe"`
	StartTS     int64          `json:"start_ts"`
	EndTS       int64          `json:"end_ts"`
	InitialCash float64        `json:"initial_cash"`
	Notes       string         `json:"notes,omitempty"`
}

// RunStats 汇总收益与风险指标。
type RunStats struct {
	FinalValue     float64   `json:"final_value"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	Trades         int       `json:"trades"`
	Buys           int       `json:"buys"`
	Sells          int       `json:"sells"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	Snapshots      int       `json:"snapshots"`
	OpenPositions  int       `json:"open_positions"`
	MissingPrices  int       `json:"missing_prices"`
	PartialFills   int       `json:"partial_fills"`
	ReserveCovers  int       `json:"reserve_covers"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run 一次回测任务。
type Run struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Policy         string    `json:"policy"`
	Status         string    `json:"status"`
	StartTS        int64     `json:"start_ts"`
	EndTS          int64     `json:"end_ts"`
	Timeframe      string    `json:"timeframe"`
	InitialCash    float64   `json:"initial_cash"`
	FinalValue     float64   `json:"final_value"`
	Profit         float64   `json:"profit"`
	ReturnPct      float64   `json:"return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Trades         int       `json:"trades"`
	Message        string    `json:"message"`
	Config         RunConfig `json:"config"`
	Stats          RunStats  `json:"stats"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// MarshalConfig 返回 config JSON。
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// RunRequest HTTP 提交回测用。日期为 2006-01-02。
type RunRequest struct {
	Universe    []string `json:"universe"`
	Policy      string   `json:"policy"`
	Profile     string   `json:"profile,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Timeframe   string   `json:"timeframe,omitempty"`
	InitialCash float64  `json:"initial_cash,omitempty"`
	SpanShort   int      `json:"span_short,omitempty"`
	SpanMedium  int      `json:"span_medium,omitempty"`
	SpanLong    int      `json:"span_long,omitempty"`
}

// EquitySnapshot 资金曲线一个点。
type EquitySnapshot struct {
	ID       int64   `json:"id"`
	RunID    string  `json:"run_id"`
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Cash     float64 `json:"cash"`
	Drawdown float64 `json:"drawdown"`
	Exposure float64 `json:"exposure"`
}

// TransactionRecord 持久化的成交记录（账本流水的镜像）。
type TransactionRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Date      time.Time `json:"date"`
	Ticker    string    `json:"ticker"`
	Side      string    `json:"side"`
	Quantity  int64     `json:"quantity"`
	Price     float64   `json:"price"`
	CashAfter float64   `json:"cash_after"`
}
