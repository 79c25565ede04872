package dto

import "attendance-console/internal/matrix"

// ── 考勤矩阵请求 ──

// MatrixQuery 矩阵查询参数
// status 不做枚举校验：未知状态按规则返回空视图
type MatrixQuery struct {
	Period      string `form:"period"      binding:"required"`
	Search      string `form:"search"      binding:"omitempty,max=100"`
	ScheduleID  string `form:"schedule_id" binding:"omitempty,max=64"`
	Status      string `form:"status"      binding:"omitempty,max=32"`
	Granularity string `form:"granularity" binding:"omitempty,oneof=day week"`
}

// Filters 转换为矩阵筛选条件
func (q *MatrixQuery) Filters() matrix.Filters {
	return matrix.Filters{
		Search:     q.Search,
		ScheduleID: q.ScheduleID,
		Status:     q.Status,
	}
}

// CellQuery 单元格明细查询参数
type CellQuery struct {
	Period     string `form:"period"      binding:"required"`
	UserID     string `form:"user_id"     binding:"required"`
	Date       string `form:"date"        binding:"required"`
	ScheduleID string `form:"schedule_id" binding:"omitempty,max=64"`
}

// RefreshRequest 周期刷新请求
type RefreshRequest struct {
	Period string `json:"period" binding:"required"`
}

// CalendarQuery 个人考勤日历导出参数
type CalendarQuery struct {
	Period string `form:"period"  binding:"required"`
	UserID string `form:"user_id" binding:"required"`
}

// ── 考勤矩阵响应 ──

// CellResponse 单元格（附展示状态）
type CellResponse struct {
	matrix.ShiftCell
	DisplayStatus matrix.ShiftStatus `json:"display_status"`
}

// NewCellResponse 由 ShiftCell 构造
func NewCellResponse(c matrix.ShiftCell) CellResponse {
	return CellResponse{ShiftCell: c, DisplayStatus: c.DisplayStatus()}
}

// MatrixResponse 考勤矩阵视图
type MatrixResponse struct {
	Period      string                               `json:"period"`
	Granularity matrix.Granularity                   `json:"granularity"`
	Filters     matrix.Filters                       `json:"filters"`
	Users       []matrix.User                        `json:"users"`
	Dates       []matrix.DateKey                     `json:"dates"`
	Columns     []matrix.Column                      `json:"columns"`
	Matrix      map[string]map[string][]CellResponse `json:"matrix"`
	Stats       matrix.Stats                         `json:"stats"`
}

// NewMatrixResponse 由视图构造响应
func NewMatrixResponse(period string, view *matrix.View) *MatrixResponse {
	cells := make(map[string]map[string][]CellResponse, len(view.Matrix))
	for userID, cols := range view.Matrix {
		row := make(map[string][]CellResponse, len(cols))
		for key, list := range cols {
			out := make([]CellResponse, len(list))
			for i, c := range list {
				out[i] = NewCellResponse(c)
			}
			row[key] = out
		}
		cells[userID] = row
	}
	return &MatrixResponse{
		Period:      period,
		Granularity: view.Granularity,
		Filters:     view.Filters,
		Users:       view.Users,
		Dates:       view.Dates,
		Columns:     view.Columns,
		Matrix:      cells,
		Stats:       view.Stats,
	}
}

// RecordResponse 单元格来源的原始记录
type RecordResponse struct {
	RecordID       string `json:"record_id"`
	WorkDate       string `json:"work_date"`
	ShiftStatus    string `json:"shift_status"`
	MinutesWorked  int    `json:"minutes_worked"`
	CheckInDevice  string `json:"check_in_device,omitempty"`
	CheckInMethod  string `json:"check_in_method,omitempty"`
	CheckOutDevice string `json:"check_out_device,omitempty"`
	CheckOutMethod string `json:"check_out_method,omitempty"`
	UpdatedAt      string `json:"updated_at"`
}

// CellDetailResponse 单元格明细（选中单元格时返回）
type CellDetailResponse struct {
	Period string          `json:"period"`
	Date   matrix.DateKey  `json:"date"`
	User   matrix.User     `json:"user"`
	Cell   CellResponse    `json:"cell"`
	Record *RecordResponse `json:"record,omitempty"` // 虚拟记录无来源
}

// RefreshResponse 刷新已受理
type RefreshResponse struct {
	Period     string `json:"period"`
	DebounceMS int64  `json:"debounce_ms"`
}

// PeriodStatusResponse 周期加载状态
type PeriodStatusResponse struct {
	Period           string `json:"period"`
	State            string `json:"state"` // idle | loading | ready | failed
	Cached           bool   `json:"cached"`
	RefreshPending   bool   `json:"refresh_pending"`
	LastError        string `json:"last_error,omitempty"`         // 加载失败且无缓存
	LastRefreshError string `json:"last_refresh_error,omitempty"` // 刷新失败，仍在使用旧索引
}
