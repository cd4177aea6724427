package backtest

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe 回测使用的周期（内部 duration + 数据源 interval）。
// 商品期货按日线为主，周/月线用于粗粒度复盘。
type Timeframe struct {
	Key            string        `json:"key"`
	Duration       time.Duration `json:"duration"`
	SourceInterval string        `json:"source_interval"`
}

var supportedTimeframes = map[string]Timeframe{
	"1d":  {Key: "1d", Duration: 24 * time.Hour, SourceInterval: "1d"},
	"1wk": {Key: "1wk", Duration: 7 * 24 * time.Hour, SourceInterval: "1wk"},
	"1mo": {Key: "1mo", Duration: 30 * 24 * time.Hour, SourceInterval: "1mo"},
}

// ParseTimeframe 返回标准化周期定义。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "1w" {
		key = "1wk"
	}
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("不支持的周期: %s", input)
	}
	return tf, nil
}

// SupportedTimeframes 返回所有支持的 key（排序后）。
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (tf Timeframe) durationMillis() int64 {
	return tf.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange 将毫秒时间对齐到周期网格，保证 start<=end。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	step := tf.durationMillis()
	if end < start {
		start, end = end, start
	}
	alStart := alignDown(start, step)
	alEnd := alignDown(end, step)
	if alEnd < alStart {
		alEnd = alStart
	}
	return alStart, alEnd
}
