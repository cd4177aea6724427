package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yahooChartBody = `{
  "chart": {
    "result": [{
      "timestamp": [1577923200, 1578009600, 1578096000],
      "indicators": {
        "quote": [{
          "open":   [1520.0, 1525.5, null],
          "high":   [1530.0, 1538.0, null],
          "low":    [1515.0, 1520.0, null],
          "close":  [1528.1, 1536.4, null],
          "volume": [120000, 98000, null]
        }]
      }
    }],
    "error": null
  }
}`

func TestYahooFetchParsesChart(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		fmt.Fprint(w, yahooChartBody)
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL)
	candles, err := src.Fetch(context.Background(), FetchRequest{
		Ticker: "GC=F", Interval: "1d", Start: 1577923200000, End: 1578096000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/GC=F", gotPath)

	// 第三条 close 为 null（假日空洞），应被跳过
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1577923200000), candles[0].CloseTime)
	assert.Equal(t, 1528.1, candles[0].Close)
	assert.Equal(t, 120000.0, candles[0].Volume)
	assert.Equal(t, 1536.4, candles[1].Close)
}

func TestYahooFetchSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL)
	_, err := src.Fetch(context.Background(), FetchRequest{Ticker: "XX=F", Interval: "1d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestYahooIntervalMapping(t *testing.T) {
	for in, want := range map[string]string{"1d": "1d", "1w": "1wk", "1wk": "1wk", "1mo": "1mo"} {
		got, err := yahooInterval(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := yahooInterval("5m")
	assert.Error(t, err)
}
