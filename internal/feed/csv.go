package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"commotrend/internal/market"
)

// CSVSource 读取本地目录下的 <ticker>.csv（列：date,open,high,low,close,volume，
// 日期为 2006-01-02）。离线回放与测试用。
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (c *CSVSource) Name() string { return "csv" }

func (c *CSVSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker 不能为空")
	}
	path := filepath.Join(c.dir, sanitizeFilename(req.Ticker)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开 CSV 失败（%s）: %w", req.Ticker, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	var out []market.Candle
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读 CSV 失败（%s）: %w", path, err)
		}
		if first {
			first = false
			if strings.EqualFold(row[0], "date") {
				continue // 表头
			}
		}
		candle, err := parseCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("CSV 行非法（%s）: %w", path, err)
		}
		if req.Start > 0 && candle.CloseTime < req.Start {
			continue
		}
		if req.End > 0 && candle.CloseTime > req.End {
			continue
		}
		out = append(out, candle)
	}
	return out, nil
}

func parseCSVRow(row []string) (market.Candle, error) {
	if len(row) < 5 {
		return market.Candle{}, fmt.Errorf("列数不足: %d", len(row))
	}
	day, err := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
	if err != nil {
		return market.Candle{}, err
	}
	fields := make([]float64, 0, 5)
	for _, cell := range row[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return market.Candle{}, err
		}
		fields = append(fields, v)
	}
	ms := day.UTC().UnixMilli()
	candle := market.Candle{
		OpenTime:  ms,
		CloseTime: ms,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
	}
	if len(fields) > 4 {
		candle.Volume = fields[4]
	}
	return candle, nil
}

// sanitizeFilename 把期货 ticker 里的 "=" 换成 "_"（GC=F → GC_F.csv）。
func sanitizeFilename(ticker string) string {
	return strings.NewReplacer("=", "_", "/", "_").Replace(ticker)
}
