package handler

import (
	"github.com/gin-gonic/gin"

	"attendance-console/internal/dto"
	"attendance-console/internal/matrix"
	"attendance-console/internal/service"
	"attendance-console/pkg/response"
)

// SessionOpener 为一次推送连接创建报表会话
type SessionOpener func(on service.SessionListeners) *service.ReportSession

// StreamHandler 考勤矩阵推送处理器
type StreamHandler struct {
	open SessionOpener
}

// NewStreamHandler 创建 StreamHandler
func NewStreamHandler(open SessionOpener) *StreamHandler {
	return &StreamHandler{open: open}
}

// streamError SSE error 事件负载
type streamError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Period  string `json:"period"`
}

// Stream 以 SSE 推送考勤矩阵
// GET /api/v1/reports/attendance-matrix/stream?period=2025-12&search=&schedule_id=&status=&granularity=
//
// 先推送 status 事件告知是否仍在加载，周期就绪后推送 view 事件并结束；
// 加载失败推送 error 事件。客户端断开时会话关闭，进行中的拉取照常完成并写入缓存。
func (h *StreamHandler) Stream(c *gin.Context) {
	var q dto.MatrixQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	granularity, err := matrix.ParseGranularity(q.Granularity)
	if err != nil {
		handleReportError(c, service.ErrGranularityInvalid)
		return
	}

	// 每个连接只推送一个结果，多余的回调丢弃
	results := make(chan func(), 1)
	offer := func(fn func()) {
		select {
		case results <- fn:
		default:
		}
	}
	session := h.open(service.SessionListeners{
		OnView: func(v service.SessionView) {
			resp := dto.NewMatrixResponse(v.Period, v.View)
			offer(func() { c.SSEvent("view", resp) })
		},
		OnError: func(period string, err error) {
			_, code, msg := reportError(err)
			offer(func() { c.SSEvent("error", streamError{Code: code, Message: msg, Period: period}) })
		},
	})
	defer session.Close()

	session.SetGranularity(granularity)
	if f := q.Filters(); !f.IsEmpty() {
		session.SetFilters(f)
	}
	session.SetPeriod(c.Request.Context(), q.Period)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("status", gin.H{"period": session.Period(), "loading": session.Loading()})
	c.Writer.Flush()

	select {
	case write := <-results:
		write()
		c.Writer.Flush()
	case <-c.Request.Context().Done():
	}
}
