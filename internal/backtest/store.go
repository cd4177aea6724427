package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"commotrend/internal/market"

	_ "modernc.org/sqlite"
)

// 中文说明：
// 行情存储：每个 ticker@timeframe 一个独立 sqlite 文件，open_time 主键
// 去重，manifest 表记录区间统计。期货代码里的 "=" 落盘时换成 "_"。

// Manifest 某个 ticker@timeframe 文件的统计信息。
type Manifest struct {
	Ticker     string `json:"ticker"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// Coverage 描述某区间的数据覆盖情况。日线有周末与假日空洞，
// 不能按固定步长数条数，这里只看首尾是否盖住请求区间。
type Coverage struct {
	Present  int64 `json:"present"`
	MinTime  int64 `json:"min_time"`
	MaxTime  int64 `json:"max_time"`
	WantFrom int64 `json:"want_from"`
	WantTo   int64 `json:"want_to"`
}

// Complete 首尾各允许 5 个周期的松弛（节假日/上市时间差）。
func (c Coverage) Complete(tf Timeframe) bool {
	if c.Present == 0 {
		return false
	}
	slack := 5 * tf.durationMillis()
	return c.MinTime <= c.WantFrom+slack && c.MaxTime >= c.WantTo-slack
}

type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(ticker, timeframe string) (*sql.DB, string, error) {
	if ticker == "" || timeframe == "" {
		return nil, "", fmt.Errorf("ticker/timeframe 不能为空")
	}
	key := strings.ToUpper(ticker) + "@" + strings.ToLower(timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[key]; ok && db != nil {
		return db, s.dbPath(ticker, timeframe), nil
	}
	path := s.dbPath(ticker, timeframe)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, ticker, timeframe); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	s.dbs[key] = db
	return db, path, nil
}

func (s *Store) dbPath(ticker, timeframe string) string {
	safe := strings.NewReplacer("=", "_", "/", "_").Replace(strings.ToUpper(ticker))
	return filepath.Join(s.root, safe, strings.ToLower(timeframe)+".db")
}

// InsertCandles 批量写入 K 线（重复 open_time 覆盖）。
func (s *Store) InsertCandles(ctx context.Context, ticker, timeframe string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	db, _, err := s.db(ticker, timeframe)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(open_time) DO UPDATE SET
		    close_time=excluded.close_time,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	count := 0
	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if err := s.refreshManifest(ctx, db); err != nil {
		return count, err
	}
	return count, nil
}

// RangeCandles 读取指定区间全部 K 线，按 open_time 升序。
func (s *Store) RangeCandles(ctx context.Context, ticker, timeframe string, start, end int64) ([]market.Candle, error) {
	db, _, err := s.db(ticker, timeframe)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM candles WHERE open_time BETWEEN ? AND ?
		ORDER BY open_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CheckCoverage 统计区间覆盖情况。
func (s *Store) CheckCoverage(ctx context.Context, ticker, timeframe string, start, end int64) (Coverage, error) {
	db, _, err := s.db(ticker, timeframe)
	if err != nil {
		return Coverage{}, err
	}
	row := db.QueryRowContext(ctx, `
		SELECT COUNT(1), COALESCE(MIN(open_time), 0), COALESCE(MAX(open_time), 0)
		FROM candles WHERE open_time BETWEEN ? AND ?`, start, end)
	cov := Coverage{WantFrom: start, WantTo: end}
	if err := row.Scan(&cov.Present, &cov.MinTime, &cov.MaxTime); err != nil {
		return Coverage{}, err
	}
	return cov, nil
}

// Manifest 返回某个 ticker@timeframe 的统计信息。
func (s *Store) Manifest(ctx context.Context, ticker, timeframe string) (Manifest, error) {
	db, path, err := s.db(ticker, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT ticker,timeframe,min_time,max_time,rows,last_sync_at FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Ticker, &m.Timeframe, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func (s *Store) refreshManifest(ctx context.Context, db *sql.DB) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(open_time), 0) FROM candles),
		    max_time = (SELECT COALESCE(MAX(open_time), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, now)
	return err
}

func ensureSchema(db *sql.DB, ticker, timeframe string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			open_time  INTEGER PRIMARY KEY,
			close_time INTEGER NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			volume     REAL NOT NULL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			ticker TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
		`INSERT INTO manifest (id, ticker, timeframe) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET ticker=excluded.ticker, timeframe=excluded.timeframe;`,
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = db.Exec(stmt, strings.ToUpper(ticker), strings.ToLower(timeframe))
		} else {
			_, err = db.Exec(stmt)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
