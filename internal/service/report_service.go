package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"attendance-console/internal/dto"
	"attendance-console/internal/matrix"
	"attendance-console/internal/repository"
	"attendance-console/pkg/debounce"
)

// ── 报表模块业务错误 ──

var (
	ErrGranularityInvalid = errors.New("统计粒度只能是 day 或 week")
	ErrCellDateInvalid    = errors.New("日期格式应为 YYYY-MM-DD")
	ErrCellOutOfPeriod    = errors.New("日期不在统计周期内")
	ErrCellNotFound       = errors.New("该员工当日无对应排班记录")
)

// ReportService 考勤矩阵报表业务接口
type ReportService interface {
	// GetMatrix 按筛选条件与粒度返回矩阵视图
	GetMatrix(ctx context.Context, q *dto.MatrixQuery) (*dto.MatrixResponse, error)
	// GetView 返回未转换的视图，供导出使用
	GetView(ctx context.Context, period string, f matrix.Filters, granularity string) (string, *matrix.View, error)
	// GetCellDetail 选中单元格：返回单元格与其来源记录
	GetCellDetail(ctx context.Context, q *dto.CellQuery) (*dto.CellDetailResponse, error)
	// RequestRefresh 合并窗口内的刷新请求，窗口结束后后台重新拉取
	RequestRefresh(ctx context.Context, period string) (*dto.RefreshResponse, error)
	// GetStatus 周期加载状态
	GetStatus(ctx context.Context, period string) (*dto.PeriodStatusResponse, error)
	// Close 取消挂起的刷新
	Close()
}

type reportService struct {
	repo      *repository.Repository
	loader    *PeriodLoader
	refresher *debounce.Keyed
	window    time.Duration
	logger    *zap.Logger
}

// NewReportService 创建 ReportService 实例
func NewReportService(repo *repository.Repository, loader *PeriodLoader, refreshDebounce time.Duration, logger *zap.Logger) ReportService {
	return &reportService{
		repo:      repo,
		loader:    loader,
		refresher: debounce.NewKeyed(refreshDebounce),
		window:    refreshDebounce,
		logger:    logger,
	}
}

// ────────────────────── GetMatrix ──────────────────────

func (s *reportService) GetMatrix(ctx context.Context, q *dto.MatrixQuery) (*dto.MatrixResponse, error) {
	key, view, err := s.GetView(ctx, q.Period, q.Filters(), q.Granularity)
	if err != nil {
		return nil, err
	}
	return dto.NewMatrixResponse(key, view), nil
}

func (s *reportService) GetView(ctx context.Context, period string, f matrix.Filters, granularity string) (string, *matrix.View, error) {
	g, err := matrix.ParseGranularity(granularity)
	if err != nil {
		return "", nil, ErrGranularityInvalid
	}
	p, err := s.loader.Parse(period)
	if err != nil {
		return "", nil, err
	}
	idx, err := s.loader.Get(ctx, p.Key)
	if err != nil {
		return "", nil, err
	}
	view, err := matrix.Recompute(idx, f, g)
	if err != nil {
		return "", nil, ErrGranularityInvalid
	}
	return p.Key, view, nil
}

// ────────────────────── GetCellDetail ──────────────────────

func (s *reportService) GetCellDetail(ctx context.Context, q *dto.CellQuery) (*dto.CellDetailResponse, error) {
	p, err := s.loader.Parse(q.Period)
	if err != nil {
		return nil, err
	}
	date, err := matrix.ParseDateKey(q.Date)
	if err != nil {
		return nil, ErrCellDateInvalid
	}
	if !p.Contains(date) {
		return nil, ErrCellOutOfPeriod
	}

	idx, err := s.loader.Get(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	cell, ok := matrix.Select(idx, q.UserID, date, q.ScheduleID)
	if !ok {
		return nil, ErrCellNotFound
	}
	user, _ := idx.FindUser(q.UserID)

	resp := &dto.CellDetailResponse{
		Period: p.Key,
		Date:   date,
		User:   user,
		Cell:   dto.NewCellResponse(cell),
	}
	if cell.IsVirtual || cell.RecordID == "" {
		return resp, nil
	}

	record, err := s.repo.Attendance.GetByID(ctx, cell.RecordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 缓存中的记录已被上游删除，仍返回缓存内的单元格
			s.logger.Warn("单元格来源记录不存在", zap.String("record_id", cell.RecordID))
			return resp, nil
		}
		s.logger.Error("查询考勤记录失败", zap.String("record_id", cell.RecordID), zap.Error(err))
		return nil, err
	}
	resp.Record = &dto.RecordResponse{
		RecordID:       record.RecordID,
		WorkDate:       record.WorkDate.Format("2006-01-02"),
		ShiftStatus:    record.ShiftStatus,
		MinutesWorked:  record.MinutesWorked,
		CheckInDevice:  record.CheckIn.Device,
		CheckInMethod:  record.CheckIn.Method,
		CheckOutDevice: record.CheckOut.Device,
		CheckOutMethod: record.CheckOut.Method,
		UpdatedAt:      record.UpdatedAt.Format(time.RFC3339),
	}
	return resp, nil
}

// ────────────────────── RequestRefresh ──────────────────────

func (s *reportService) RequestRefresh(ctx context.Context, period string) (*dto.RefreshResponse, error) {
	p, err := s.loader.Parse(period)
	if err != nil {
		return nil, err
	}
	key := p.Key
	s.refresher.Call(key, func() {
		if _, err := s.loader.Refresh(context.Background(), key); err != nil {
			s.logger.Warn("周期刷新失败", zap.String("period", key), zap.Error(err))
			return
		}
		s.logger.Info("周期已刷新", zap.String("period", key))
	})
	return &dto.RefreshResponse{Period: key, DebounceMS: s.window.Milliseconds()}, nil
}

// ────────────────────── GetStatus ──────────────────────

func (s *reportService) GetStatus(ctx context.Context, period string) (*dto.PeriodStatusResponse, error) {
	p, err := s.loader.Parse(period)
	if err != nil {
		return nil, err
	}
	st := s.loader.State(ctx, p.Key)
	resp := &dto.PeriodStatusResponse{
		Period: p.Key,
		State:  string(st.State),
		Cached: s.loader.Cached(ctx, p.Key),
	}
	if st.Err != nil {
		resp.LastError = st.Err.Error()
	}
	if st.RefreshErr != nil {
		resp.LastRefreshError = st.RefreshErr.Error()
	}
	resp.RefreshPending = s.refresher.Pending(p.Key)
	return resp, nil
}

func (s *reportService) Close() {
	s.refresher.Stop()
}
