package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"commotrend/internal/market"
	"commotrend/internal/strategy"
)

// 中文说明：
// 回测可视化：资金曲线 + 每个标的的收盘价/三条 EMA/买卖标记。
// 输出 HTML 页面，可选用 headless Chrome 截成 PNG。

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#34d399"
	colorDrawdown      = "#f87171"
	colorPrice         = "#eceff4"
	colorEmaShort      = "#3b82f6"
	colorEmaMedium     = "#fbbf24"
	colorEmaLong       = "#f472b6"
	colorBuyMarker     = "#34d399"
	colorSellMarker    = "#f87171"

	chartWidthPx  = 1600
	chartHeightPx = 520
)

// EquityPoint 资金曲线一个点。
type EquityPoint struct {
	TS       int64
	Equity   float64
	Drawdown float64
}

// Marker 图上的一次成交标记。
type Marker struct {
	TS     int64
	Price  float64
	Side   string // buy / sell
	Detail string
}

// TickerChartInput 单个标的的作图物料。
type TickerChartInput struct {
	Ticker  string
	Points  []market.PricePoint
	EMA     strategy.Triple
	Spans   strategy.Spans
	Markers []Marker
}

// RunChartInput 整个回测的作图物料。
type RunChartInput struct {
	Title       string
	Subtitle    string
	InitialCash float64
	Equity      []EquityPoint
	Tickers     []TickerChartInput
}

// RenderRunHTML 渲染完整报告页面。
func RenderRunHTML(input RunChartInput) ([]byte, error) {
	if len(input.Equity) == 0 {
		return nil, fmt.Errorf("资金曲线为空")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEquityChart(input))
	for _, tc := range input.Tickers {
		if len(tc.Points) == 0 {
			continue
		}
		page.AddCharts(buildTickerChart(tc))
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildEquityChart(input RunChartInput) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         input.Title,
			Subtitle:      input.Subtitle,
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	xAxis := make([]string, len(input.Equity))
	equityData := make([]opts.LineData, len(input.Equity))
	drawdownData := make([]opts.LineData, len(input.Equity))
	for i, p := range input.Equity {
		xAxis[i] = time.UnixMilli(p.TS).UTC().Format("2006-01-02")
		equityData[i] = opts.LineData{Value: round(p.Equity, 2)}
		drawdownData[i] = opts.LineData{Value: round(-p.Drawdown, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", equityData,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("Drawdown %", drawdownData,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildTickerChart(tc TickerChartInput) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      strings.ToUpper(tc.Ticker),
			Subtitle:   fmt.Sprintf("EMA %d/%d/%d，标记 %d 笔成交", tc.Spans.Short, tc.Spans.Medium, tc.Spans.Long, len(tc.Markers)),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 16},
			SubtitleStyle: &opts.TextStyle{
				Color: colorTextSecondary,
			},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	xAxis := make([]string, len(tc.Points))
	priceData := make([]opts.LineData, len(tc.Points))
	markerByTS := make(map[int64]Marker, len(tc.Markers))
	for _, m := range tc.Markers {
		markerByTS[m.TS] = m
	}
	buyData := make([]opts.ScatterData, len(tc.Points))
	sellData := make([]opts.ScatterData, len(tc.Points))
	for i, p := range tc.Points {
		xAxis[i] = time.UnixMilli(p.TS).UTC().Format("2006-01-02")
		priceData[i] = opts.LineData{Value: round(p.Price, 4)}
		buyData[i] = opts.ScatterData{Value: nil}
		sellData[i] = opts.ScatterData{Value: nil}
		if m, ok := markerByTS[p.TS]; ok {
			point := opts.ScatterData{Value: round(m.Price, 4), Symbol: "triangle", SymbolSize: 12}
			if m.Side == "buy" {
				buyData[i] = point
			} else {
				point.SymbolRotate = 180
				sellData[i] = point
			}
		}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Close", priceData,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorPrice, Width: 1}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries(fmt.Sprintf("EMA%d", tc.Spans.Short), toLineData(tc.EMA.Short, len(tc.Points)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaShort, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries(fmt.Sprintf("EMA%d", tc.Spans.Medium), toLineData(tc.EMA.Medium, len(tc.Points)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaMedium, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries(fmt.Sprintf("EMA%d", tc.Spans.Long), toLineData(tc.EMA.Long, len(tc.Points)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaLong, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	buys := charts.NewScatter()
	buys.SetXAxis(xAxis)
	buys.AddSeries("Buy", buyData, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuyMarker}))
	line.Overlap(buys)
	sells := charts.NewScatter()
	sells.SetXAxis(xAxis)
	sells.AddSeries("Sell", sellData, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSellMarker}))
	line.Overlap(sells)
	return line
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 4)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 探测 headless Chrome 是否可用，只探测一次。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// SnapshotPNG 把 HTML 截成 PNG。chartSnapshot 关闭或无 Chrome 时不要调用。
func SnapshotPNG(ctx context.Context, html []byte, height int) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if height < 520 {
		height = 520
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()
	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(chartWidthPx), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
