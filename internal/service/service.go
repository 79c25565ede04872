package service

import (
	"time"

	"go.uber.org/zap"

	"attendance-console/config"
	"attendance-console/internal/cache"
	"attendance-console/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Report ReportService
	Export ExportService
	Loader *PeriodLoader

	filterDebounce time.Duration
	logger         *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	periodCache cache.PeriodCache,
	logger *zap.Logger,
) (*Service, error) {
	loc, err := cfg.Report.Location()
	if err != nil {
		return nil, err
	}
	source := NewRecordSource(repo, cfg.Report.SynthesizeAbsences, logger)
	loader := NewPeriodLoader(periodCache, source, loc, cfg.Report.FetchTimeout, logger)
	report := NewReportService(repo, loader, cfg.Report.RefreshDebounce, logger)
	return &Service{
		Report: report,
		Export: NewExportService(report, loader, logger),
		Loader: loader,

		filterDebounce: cfg.Report.FilterDebounce,
		logger:         logger,
	}, nil
}

// NewSession 为一个推送连接创建报表会话，会话共享周期缓存与拉取
func (s *Service) NewSession(on SessionListeners) *ReportSession {
	return NewReportSession(s.Loader, s.Report, s.filterDebounce, on, s.logger)
}
