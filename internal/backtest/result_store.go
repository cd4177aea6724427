package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 中文说明：
// 回测结果存储（Gorm + SQLite）：runs / transactions / equity snapshots /
// indicator reports 四张表。config 与 stats 以 JSON 列保存，便于重放。

type runModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:64;index"`
	Policy      string `gorm:"size:32"`
	Status      string `gorm:"size:16;index"`
	StartTS     int64
	EndTS       int64
	Timeframe   string `gorm:"size:8"`
	InitialCash float64
	FinalValue  float64
	Profit      float64
	ReturnPct   float64
	MaxDrawdown float64
	Trades      int
	Message     string
	Config      datatypes.JSON
	Stats       datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (runModel) TableName() string { return "backtest_runs" }

type transactionModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"size:64;index"`
	Date      time.Time
	Ticker    string `gorm:"size:16;index"`
	Side      string `gorm:"size:8"`
	Quantity  int64
	Price     float64
	CashAfter float64
}

func (transactionModel) TableName() string { return "backtest_transactions" }

type snapshotModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"size:64;index"`
	TS       int64  `gorm:"index"`
	Equity   float64
	Cash     float64
	Drawdown float64
	Exposure float64
}

func (snapshotModel) TableName() string { return "backtest_snapshots" }

type indicatorReportModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	RunID  string `gorm:"size:64;index"`
	Ticker string `gorm:"size:16"`
	Report datatypes.JSON
}

func (indicatorReportModel) TableName() string { return "backtest_indicator_reports" }

// ResultStore 管理回测结果库。
type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(root string) (*ResultStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &transactionModel{}, &snapshotModel{}, &indicatorReportModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// WAL 下允许少量并发读（HTTP 查询），写仍串行。
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 落库新任务。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateRunStatus 更新状态与进度消息。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	updates := map[string]any{"status": status, "message": message, "updated_at": time.Now()}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

// UpdateRunSummary 写入最终统计。
func (s *ResultStore) UpdateRunSummary(ctx context.Context, id, status string, stats RunStats, message string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now()
	updates := map[string]any{
		"status":       status,
		"message":      message,
		"final_value":  stats.FinalValue,
		"profit":       stats.Profit,
		"return_pct":   stats.ReturnPct,
		"max_drawdown": stats.MaxDrawdownPct,
		"trades":       stats.Trades,
		"stats":        datatypes.JSON(statsJSON),
		"updated_at":   now,
		"completed_at": &now,
	}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

// InsertTransactions 批量写成交流水。
func (s *ResultStore) InsertTransactions(ctx context.Context, records []TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]transactionModel, len(records))
	for i, r := range records {
		models[i] = transactionModel{
			RunID: r.RunID, Date: r.Date, Ticker: r.Ticker, Side: r.Side,
			Quantity: r.Quantity, Price: r.Price, CashAfter: r.CashAfter,
		}
	}
	return s.db.WithContext(ctx).CreateInBatches(models, 200).Error
}

// InsertSnapshot 写入资金曲线一个点。
func (s *ResultStore) InsertSnapshot(ctx context.Context, snap EquitySnapshot) error {
	model := snapshotModel{
		RunID: snap.RunID, TS: snap.TS, Equity: snap.Equity,
		Cash: snap.Cash, Drawdown: snap.Drawdown, Exposure: snap.Exposure,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// InsertIndicatorReport 附加单个 ticker 的指标报告。
func (s *ResultStore) InsertIndicatorReport(ctx context.Context, runID, ticker string, report any) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	model := indicatorReportModel{RunID: runID, Ticker: ticker, Report: datatypes.JSON(raw)}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetRun 按 ID 取任务。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	var model runModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return Run{}, err
	}
	return fromRunModel(model)
}

// ListRuns 按创建时间倒序。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := fromRunModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ListTransactions 返回某 run 的全部成交（按时间升序）。
func (s *ResultStore) ListTransactions(ctx context.Context, runID string) ([]TransactionRecord, error) {
	var models []transactionModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("date ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]TransactionRecord, len(models))
	for i, m := range models {
		out[i] = TransactionRecord{
			ID: m.ID, RunID: m.RunID, Date: m.Date, Ticker: m.Ticker,
			Side: m.Side, Quantity: m.Quantity, Price: m.Price, CashAfter: m.CashAfter,
		}
	}
	return out, nil
}

// ListSnapshots 返回某 run 的资金曲线（按时间升序）。
func (s *ResultStore) ListSnapshots(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	var models []snapshotModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]EquitySnapshot, len(models))
	for i, m := range models {
		out[i] = EquitySnapshot{
			ID: m.ID, RunID: m.RunID, TS: m.TS, Equity: m.Equity,
			Cash: m.Cash, Drawdown: m.Drawdown, Exposure: m.Exposure,
		}
	}
	return out, nil
}

func toRunModel(run Run) (runModel, error) {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return runModel{}, err
	}
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return runModel{}, err
	}
	model := runModel{
		ID:          run.ID,
		Name:        run.Name,
		Policy:      run.Policy,
		Status:      run.Status,
		StartTS:     run.StartTS,
		EndTS:       run.EndTS,
		Timeframe:   run.Timeframe,
		InitialCash: run.InitialCash,
		FinalValue:  run.FinalValue,
		Profit:      run.Profit,
		ReturnPct:   run.ReturnPct,
		MaxDrawdown: run.MaxDrawdownPct,
		Trades:      run.Trades,
		Message:     run.Message,
		Config:      datatypes.JSON(configJSON),
		Stats:       datatypes.JSON(statsJSON),
	}
	if !run.CompletedAt.IsZero() {
		t := run.CompletedAt
		model.CompletedAt = &t
	}
	return model, nil
}

func fromRunModel(m runModel) (Run, error) {
	run := Run{
		ID:             m.ID,
		Name:           m.Name,
		Policy:         m.Policy,
		Status:         m.Status,
		StartTS:        m.StartTS,
		EndTS:          m.EndTS,
		Timeframe:      m.Timeframe,
		InitialCash:    m.InitialCash,
		FinalValue:     m.FinalValue,
		Profit:         m.Profit,
		ReturnPct:      m.ReturnPct,
		MaxDrawdownPct: m.MaxDrawdown,
		Trades:         m.Trades,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.CompletedAt != nil {
		run.CompletedAt = *m.CompletedAt
	}
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &run.Config); err != nil {
			return Run{}, fmt.Errorf("解析 run config 失败: %w", err)
		}
	}
	if len(m.Stats) > 0 {
		if err := json.Unmarshal(m.Stats, &run.Stats); err != nil {
			return Run{}, fmt.Errorf("解析 run stats 失败: %w", err)
		}
	}
	return run, nil
}
