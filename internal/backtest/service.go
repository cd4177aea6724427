package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"commotrend/internal/feed"
	"commotrend/internal/logger"
	"commotrend/internal/market"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
	JobStatusPartial = "partial"
)

// FetchParams 描述一次历史行情同步请求。时间为 Unix 毫秒。
type FetchParams struct {
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
}

// FetchJob 一次同步任务的状态快照。
type FetchJob struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Params    FetchParams `json:"params"`
	Inserted  int64       `json:"inserted"`
	Message   string      `json:"message"`
	Warnings  []string    `json:"warnings,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (j *FetchJob) copy() FetchJob {
	out := *j
	if j.Warnings != nil {
		out.Warnings = append([]string{}, j.Warnings...)
	}
	return out
}

// ServiceConfig 配置 Service。
type ServiceConfig struct {
	Store           *Store
	Source          feed.HistorySource
	RateLimitPerMin int
	MaxBatch        int
	MaxConcurrent   int
}

// Service 负责管理同步任务、协调拉取与写库。
type Service struct {
	store    *Store
	source   feed.HistorySource
	maxBatch int

	limiter *rate.Limiter
	sem     chan struct{}

	mu   sync.RWMutex
	jobs map[string]*FetchJob

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("history source 不能为空")
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = 1
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		store:    cfg.Store,
		source:   cfg.Source,
		maxBatch: maxBatch,
		limiter:  rate.NewLimiter(ratePerSec, maxBatch),
		sem:      make(chan struct{}, maxConcurrent),
		jobs:     make(map[string]*FetchJob),
		baseCtx:  context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// SubmitFetch 提交异步同步任务；若区间已完整直接标记 done。
func (s *Service) SubmitFetch(params FetchParams) (FetchJob, error) {
	if strings.TrimSpace(params.Ticker) == "" {
		return FetchJob{}, fmt.Errorf("ticker 不能为空")
	}
	tf, err := ParseTimeframe(params.Timeframe)
	if err != nil {
		return FetchJob{}, err
	}
	start, end := tf.AlignRange(params.Start, params.End)
	if start == end {
		return FetchJob{}, fmt.Errorf("start 与 end 需要构成区间")
	}
	params.Start = start
	params.End = end
	params.Timeframe = tf.Key

	cov, err := s.store.CheckCoverage(s.ctx(), params.Ticker, tf.Key, start, end)
	if err != nil {
		return FetchJob{}, err
	}
	job := &FetchJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Params:    params,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	logger.Infof("[feed] 任务 %s 提交：%s %s [%d,%d] 已有=%d", job.ID, params.Ticker, tf.Key, start, end, cov.Present)

	if cov.Complete(tf) {
		s.setJobStatus(job.ID, JobStatusDone, "数据已完整，无需重新拉取")
		return job.copy(), nil
	}

	go s.runJob(job.ID, tf)
	return job.copy(), nil
}

// EnsureRange 同步等待某 ticker 在区间内的数据就绪。回测启动前调用。
func (s *Service) EnsureRange(ctx context.Context, ticker string, tf Timeframe, start, end int64) (Coverage, error) {
	start, end = tf.AlignRange(start, end)
	cov, err := s.store.CheckCoverage(ctx, ticker, tf.Key, start, end)
	if err != nil {
		return Coverage{}, err
	}
	if cov.Complete(tf) {
		return cov, nil
	}
	if err := s.fetchRange(ctx, ticker, tf, start, end, nil); err != nil {
		return Coverage{}, err
	}
	return s.store.CheckCoverage(ctx, ticker, tf.Key, start, end)
}

func (s *Service) runJob(jobID string, tf Timeframe) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.setJobStatus(jobID, JobStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	job := s.getJob(jobID)
	if job == nil {
		return
	}
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = JobStatusRunning
		j.Message = ""
	})

	params := job.Params
	ctx := s.ctx()
	err := s.fetchRange(ctx, params.Ticker, tf, params.Start, params.End, func(inserted int) {
		s.updateJob(jobID, func(j *FetchJob) {
			j.Inserted += int64(inserted)
			j.UpdatedAt = time.Now()
		})
	})
	if err != nil {
		s.setJobStatus(jobID, JobStatusFailed, err.Error())
		return
	}

	cov, err := s.store.CheckCoverage(ctx, params.Ticker, tf.Key, params.Start, params.End)
	if err != nil {
		s.setJobStatus(jobID, JobStatusFailed, "覆盖检查失败: "+err.Error())
		return
	}
	status, message := JobStatusDone, "拉取完成"
	if !cov.Complete(tf) {
		status, message = JobStatusPartial, "已完成，但区间仍未完全覆盖"
	}
	s.setJobStatus(jobID, status, message)
	logger.Infof("[feed] 任务 %s 完成，状态=%s，行情=%d 条", jobID, status, cov.Present)
}

// fetchRange 分批拉取并落库。日线有周末与假日空洞，以最后一条
// open_time 推进游标，空批或零写入即停止。
func (s *Service) fetchRange(ctx context.Context, ticker string, tf Timeframe, start, end int64, progress func(int)) error {
	step := tf.durationMillis()
	cursor := start
	for cursor <= end {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		remaining := int((end-cursor)/step) + 1
		if remaining < 1 {
			remaining = 1
		}
		if remaining > s.maxBatch {
			remaining = s.maxBatch
		}
		req := feed.FetchRequest{
			Ticker:   ticker,
			Interval: tf.SourceInterval,
			Start:    cursor,
			End:      end,
			Limit:    remaining,
		}
		data, err := s.source.Fetch(ctx, req)
		if err != nil {
			return fmt.Errorf("%s 拉取失败: %w", s.source.Name(), err)
		}
		if len(data) == 0 {
			return nil
		}
		inserted, err := s.store.InsertCandles(ctx, ticker, tf.Key, data)
		if err != nil {
			return fmt.Errorf("写入失败: %w", err)
		}
		if progress != nil {
			progress(inserted)
		}
		last := data[len(data)-1].OpenTime
		next := last + step
		if next <= cursor {
			return nil
		}
		cursor = next
		if inserted == 0 {
			return nil
		}
	}
	return nil
}

func (s *Service) setJobStatus(jobID, status, message string) {
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = status
		j.Message = message
		j.UpdatedAt = time.Now()
	})
}

func (s *Service) getJob(id string) *FetchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

func (s *Service) updateJob(id string, fn func(*FetchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && fn != nil {
		fn(job)
	}
}

// JobSnapshot 返回任务副本。
func (s *Service) JobSnapshot(id string) (FetchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return FetchJob{}, false
	}
	return job.copy(), true
}

// JobsSnapshot 返回所有任务的拷贝列表。
func (s *Service) JobsSnapshot() []FetchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FetchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.copy())
	}
	return out
}

// ManifestInfo 读取本地 manifest。
func (s *Service) ManifestInfo(ctx context.Context, ticker, timeframe string) (Manifest, error) {
	if ticker == "" || timeframe == "" {
		return Manifest{}, errors.New("ticker/timeframe 不能为空")
	}
	return s.store.Manifest(ctx, ticker, timeframe)
}

// QueryCandles 读取指定区间 K 线。
func (s *Service) QueryCandles(ctx context.Context, ticker, timeframe string, start, end int64) ([]market.Candle, error) {
	if ticker == "" || timeframe == "" {
		return nil, errors.New("ticker/timeframe 不能为空")
	}
	return s.store.RangeCandles(ctx, ticker, timeframe, start, end)
}
