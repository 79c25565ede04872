package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"attendance-console/internal/dto"
	"attendance-console/internal/service"
	"attendance-console/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportMatrix 导出考勤矩阵（参数与矩阵查询一致）
// GET /api/v1/export/attendance-matrix?period=2025-12&search=&schedule_id=&status=&granularity=
func (h *ExportHandler) ExportMatrix(c *gin.Context) {
	var q dto.MatrixQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	buf, filename, err := h.exportSvc.ExportMatrix(c.Request.Context(), &q)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	attachment(c, filename, contentTypeXLSX, buf.Bytes())
}

// ExportCalendar 导出个人考勤日历
// GET /api/v1/export/attendance-calendar?period=2025-12&user_id=xxx
// admin / supervisor 可导出任意员工，其他角色只能导出本人
func (h *ExportHandler) ExportCalendar(c *gin.Context) {
	var q dto.CalendarQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}
	if role != "admin" && role != "supervisor" && q.UserID != callerID {
		response.Forbidden(c, 16103, "只能导出本人的考勤日历")
		return
	}

	buf, filename, err := h.exportSvc.ExportCalendar(c.Request.Context(), &q)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	attachment(c, filename, contentTypeICS, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoUsers):
		response.NotFound(c, 16101, "当前筛选条件下无考勤数据")
	case errors.Is(err, service.ErrExportUserNotFound):
		response.NotFound(c, 16102, "该员工在此周期内无考勤记录")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		handleReportError(c, err)
	}
}

// attachment 设置下载响应头并写入文件内容
func attachment(c *gin.Context, filename, contentType string, data []byte) {
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, contentType, data)
}
