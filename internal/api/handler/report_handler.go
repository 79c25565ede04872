package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-console/internal/dto"
	"attendance-console/internal/service"
	pkgerrors "attendance-console/pkg/errors"
	"attendance-console/pkg/response"
)

// ReportHandler 考勤矩阵报表 HTTP 处理器
type ReportHandler struct {
	reportSvc service.ReportService
}

// NewReportHandler 创建 ReportHandler
func NewReportHandler(reportSvc service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

// GetMatrix 获取考勤矩阵
// GET /api/v1/reports/attendance-matrix?period=2025-12&search=&schedule_id=&status=&granularity=day
func (h *ReportHandler) GetMatrix(c *gin.Context) {
	var q dto.MatrixQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.reportSvc.GetMatrix(c.Request.Context(), &q)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.OK(c, result)
}

// GetCellDetail 获取单元格明细
// GET /api/v1/reports/attendance-matrix/cell?period=2025-12&user_id=xxx&date=2025-12-01&schedule_id=
func (h *ReportHandler) GetCellDetail(c *gin.Context) {
	var q dto.CellQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.reportSvc.GetCellDetail(c.Request.Context(), &q)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.OK(c, result)
}

// RequestRefresh 请求重新拉取周期数据（防抖合并，异步执行）
// POST /api/v1/reports/attendance-matrix/refresh
func (h *ReportHandler) RequestRefresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			return
		}
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.reportSvc.RequestRefresh(c.Request.Context(), req.Period)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.Accepted(c, result)
}

// GetStatus 获取周期加载状态
// GET /api/v1/reports/attendance-matrix/status?period=2025-12
func (h *ReportHandler) GetStatus(c *gin.Context) {
	period := c.Query("period")
	if period == "" {
		response.BadRequest(c, 10001, "period 不能为空")
		return
	}

	result, err := h.reportSvc.GetStatus(c.Request.Context(), period)
	if err != nil {
		handleReportError(c, err)
		return
	}

	response.OK(c, result)
}

// handleReportError 报表与导出共用的错误映射
func handleReportError(c *gin.Context, err error) {
	status, code, msg := reportError(err)
	response.Error(c, status, code, msg)
}

// reportError 报表错误对应的 HTTP 状态、业务码与提示
func reportError(err error) (int, int, string) {
	switch {
	case errors.Is(err, service.ErrPeriodInvalid):
		return http.StatusBadRequest, 17001, "统计周期格式应为 YYYY-MM"
	case errors.Is(err, service.ErrGranularityInvalid):
		return http.StatusBadRequest, 17002, "统计粒度只能是 day 或 week"
	case errors.Is(err, service.ErrCellDateInvalid):
		return http.StatusBadRequest, 17003, "日期格式应为 YYYY-MM-DD"
	case errors.Is(err, service.ErrCellOutOfPeriod):
		return http.StatusBadRequest, 17004, "日期不在统计周期内"
	case errors.Is(err, service.ErrCellNotFound):
		return http.StatusNotFound, 17005, "该员工当日无对应排班记录"
	case errors.Is(err, pkgerrors.ErrSourceUnavailable), errors.Is(err, service.ErrPeriodFetchFail):
		return http.StatusServiceUnavailable, 17006, "考勤数据加载失败，请稍后重试"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, 17007, "考勤数据加载超时"
	default:
		return http.StatusInternalServerError, 50000, "服务器内部错误"
	}
}
