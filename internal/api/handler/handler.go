package handler

import "attendance-console/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Report *ReportHandler
	Stream *StreamHandler
	Export *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Report: NewReportHandler(svc.Report),
		Stream: NewStreamHandler(svc.NewSession),
		Export: NewExportHandler(svc.Export),
	}
}
