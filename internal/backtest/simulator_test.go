package backtest

import (
	"context"
	"math"
	"sync"
	"testing"

	"commotrend/internal/feed"
	"commotrend/internal/market"
	"commotrend/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waveSource 造一条正弦波动的日线，保证短中长 EMA 反复交叉。
type waveSource struct{}

func (waveSource) Name() string { return "wave" }

func (waveSource) Fetch(_ context.Context, req feed.FetchRequest) ([]market.Candle, error) {
	firstDay := (req.Start + dayMillis - 1) / dayMillis
	var out []market.Candle
	for day := firstDay; day*dayMillis <= req.End; day++ {
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
		ts := day * dayMillis
		price := 100 + 25*math.Sin(2*math.Pi*float64(day)/40)
		out = append(out, market.Candle{
			OpenTime: ts, CloseTime: ts,
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000,
		})
	}
	return out, nil
}

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *captureNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

type captureReporter struct {
	mu        sync.Mutex
	artifacts []RunArtifacts
}

func (r *captureReporter) WriteRunReport(_ context.Context, _ Run, artifacts RunArtifacts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, artifacts)
	return nil
}

func newTestSimulator(t *testing.T) (*Simulator, *ResultStore, *captureNotifier, *captureReporter) {
	t.Helper()
	store := newTestStore(t)
	results, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	svc, err := NewService(ServiceConfig{Store: store, Source: waveSource{}, RateLimitPerMin: 6000})
	require.NoError(t, err)

	notifier := &captureNotifier{}
	reporter := &captureReporter{}
	sim, err := NewSimulator(SimulatorConfig{
		CandleStore: store,
		ResultStore: results,
		Fetcher:     svc,
		Defaults: RunDefaults{
			Universe:    []string{"GC=F", "CL=F"},
			Policy:      "long_only",
			Spans:       strategy.Spans{Short: 2, Medium: 4, Long: 8},
			Timeframe:   "1d",
			InitialCash: 100_000,
		},
		Notifier:  notifier,
		Reporters: []Reporter{reporter},
	})
	require.NoError(t, err)
	return sim, results, notifier, reporter
}

func TestSimulatorRunLongOnly(t *testing.T) {
	sim, results, notifier, reporter := newTestSimulator(t)
	ctx := context.Background()

	run, err := sim.StartRun(RunRequest{Start: "2023-01-02", End: "2023-06-30"})
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.NotEmpty(t, run.Name)
	sim.Wait()

	got, err := results.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status, got.Message)
	assert.Positive(t, got.FinalValue)
	assert.Positive(t, got.Stats.Trades, "正弦行情下 EMA 必然交叉出信号")
	assert.Equal(t, got.Stats.Buys+got.Stats.Sells, got.Stats.Trades)

	txns, err := results.ListTransactions(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, txns, got.Stats.Trades)

	snaps, err := results.ListSnapshots(ctx, run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	assert.Equal(t, got.Stats.Snapshots, len(snaps))
	// 快照按时间升序
	for i := 1; i < len(snaps); i++ {
		assert.Less(t, snaps[i-1].TS, snaps[i].TS)
	}

	notifier.mu.Lock()
	assert.Len(t, notifier.texts, 1)
	notifier.mu.Unlock()

	reporter.mu.Lock()
	require.Len(t, reporter.artifacts, 1)
	assert.NotEmpty(t, reporter.artifacts[0].Snapshots)
	assert.NotEmpty(t, reporter.artifacts[0].Information.Signals)
	reporter.mu.Unlock()
}

func TestSimulatorRunLongShort(t *testing.T) {
	sim, results, _, _ := newTestSimulator(t)

	run, err := sim.StartRun(RunRequest{
		Policy: "long_short",
		Start:  "2023-01-02",
		End:    "2023-06-30",
	})
	require.NoError(t, err)
	sim.Wait()

	got, err := results.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status, got.Message)
	assert.Positive(t, got.Stats.Trades)
}

func TestSimulatorResolveConfigErrors(t *testing.T) {
	sim, _, _, _ := newTestSimulator(t)

	cases := []struct {
		name string
		req  RunRequest
	}{
		{"未知策略", RunRequest{Policy: "martingale", Start: "2023-01-02", End: "2023-02-01"}},
		{"start 格式错", RunRequest{Start: "02/01/2023", End: "2023-02-01"}},
		{"end 早于 start", RunRequest{Start: "2023-02-01", End: "2023-01-02"}},
		{"spans 非法", RunRequest{Start: "2023-01-02", End: "2023-02-01", SpanShort: 8, SpanMedium: 4, SpanLong: 2}},
		{"未启用 profile", RunRequest{Profile: "gold", Start: "2023-01-02", End: "2023-02-01"}},
		{"timeframe 不支持", RunRequest{Start: "2023-01-02", End: "2023-02-01", Timeframe: "4h"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sim.StartRun(tc.req)
			assert.Error(t, err)
		})
	}
}

func TestSimulatorRequestOverridesDefaults(t *testing.T) {
	sim, results, _, _ := newTestSimulator(t)

	run, err := sim.StartRun(RunRequest{
		Universe:    []string{"zs=f"},
		Start:       "2023-01-02",
		End:         "2023-03-01",
		InitialCash: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ZS=F"}, run.Config.Universe)
	assert.Equal(t, 5000.0, run.Config.InitialCash)
	sim.Wait()

	got, err := results.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status, got.Message)
}
