package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"attendance-console/internal/dto"
	"attendance-console/internal/matrix"
	"attendance-console/pkg/debounce"
)

// SessionView 会话推送的一次视图
type SessionView struct {
	Period string
	Seq    uint64
	View   *matrix.View
}

// SessionListeners 会话回调，均在锁外调用
type SessionListeners struct {
	OnView   func(SessionView)
	OnError  func(period string, err error)
	OnSelect func(*dto.CellDetailResponse)
}

// CellResolver 单元格明细查询（由 ReportService 实现）
type CellResolver interface {
	GetCellDetail(ctx context.Context, q *dto.CellQuery) (*dto.CellDetailResponse, error)
}

// ReportSession 单个报表界面的交互状态
//
// 每次切换周期递增序号；加载完成时序号已变化的结果只写缓存，不推送。
// 筛选输入经防抖合并后重算，粒度切换立即重算；重算只读缓存索引，不触发拉取。
type ReportSession struct {
	loader   *PeriodLoader
	resolver CellResolver
	filters  *debounce.Debouncer
	on       SessionListeners
	logger   *zap.Logger

	mu          sync.Mutex
	seq         uint64
	period      string
	filter      matrix.Filters
	granularity matrix.Granularity
	raw         *matrix.PeriodIndex
	loading     bool
	closed      bool
}

// NewReportSession 创建会话
func NewReportSession(loader *PeriodLoader, resolver CellResolver, filterDebounce time.Duration, on SessionListeners, logger *zap.Logger) *ReportSession {
	return &ReportSession{
		loader:      loader,
		resolver:    resolver,
		filters:     debounce.New(filterDebounce),
		on:          on,
		logger:      logger,
		granularity: matrix.GranularityDay,
	}
}

// SetPeriod 切换周期并开始加载
func (s *ReportSession) SetPeriod(ctx context.Context, key string) {
	p, err := s.loader.Parse(key)
	if err != nil {
		s.emitError(key, err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.period = p.Key
	s.raw = nil
	s.loading = true
	s.mu.Unlock()

	s.filters.Cancel()
	s.loader.Load(ctx, p.Key, func(idx *matrix.PeriodIndex, err error) {
		s.onLoaded(seq, p.Key, idx, err)
	})
}

func (s *ReportSession) onLoaded(seq uint64, key string, idx *matrix.PeriodIndex, err error) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		s.logger.Debug("丢弃过期的周期加载结果", zap.String("period", key), zap.Uint64("seq", seq))
		return
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.emitError(key, err)
		return
	}
	s.raw = idx
	out, rerr := s.recomputeLocked()
	s.mu.Unlock()

	s.deliver(out, rerr)
}

// SetFilters 更新筛选条件，防抖窗口结束后重算
func (s *ReportSession) SetFilters(f matrix.Filters) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.filters.Call(s.refreshView)
}

// SetGranularity 切换粒度并立即重算
func (s *ReportSession) SetGranularity(g matrix.Granularity) {
	s.mu.Lock()
	s.granularity = g
	s.mu.Unlock()
	s.refreshView()
}

// Select 选中单元格，回调单元格与来源记录
func (s *ReportSession) Select(ctx context.Context, userID string, date matrix.DateKey, scheduleID string) {
	s.mu.Lock()
	period := s.period
	ready := s.raw != nil
	s.mu.Unlock()
	if !ready {
		return
	}

	detail, err := s.resolver.GetCellDetail(ctx, &dto.CellQuery{
		Period:     period,
		UserID:     userID,
		Date:       string(date),
		ScheduleID: scheduleID,
	})
	if err != nil {
		s.emitError(period, err)
		return
	}
	if s.on.OnSelect != nil {
		s.on.OnSelect(detail)
	}
}

// Loading 当前周期是否仍在加载
func (s *ReportSession) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Period 当前周期键
func (s *ReportSession) Period() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// Close 结束会话：取消挂起的重算并忽略进行中的加载
func (s *ReportSession) Close() {
	s.filters.Cancel()
	s.mu.Lock()
	s.closed = true
	s.seq++
	s.mu.Unlock()
}

func (s *ReportSession) refreshView() {
	s.mu.Lock()
	if s.raw == nil || s.closed {
		s.mu.Unlock()
		return
	}
	out, err := s.recomputeLocked()
	s.mu.Unlock()

	s.deliver(out, err)
}

func (s *ReportSession) recomputeLocked() (SessionView, error) {
	view, err := matrix.Recompute(s.raw, s.filter, s.granularity)
	return SessionView{Period: s.period, Seq: s.seq, View: view}, err
}

func (s *ReportSession) deliver(out SessionView, err error) {
	if err != nil {
		s.emitError(out.Period, err)
		return
	}
	if s.on.OnView != nil {
		s.on.OnView(out)
	}
}

func (s *ReportSession) emitError(period string, err error) {
	if s.on.OnError != nil {
		s.on.OnError(period, err)
	}
}
