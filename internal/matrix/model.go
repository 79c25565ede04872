package matrix

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedRecord    = errors.New("考勤记录缺少身份字段")
	ErrInvalidDate        = errors.New("无效的日期")
	ErrInvalidGranularity = errors.New("无效的统计粒度")
	ErrInvalidPeriod      = errors.New("无效的统计周期")
)

const dateLayout = "2006-01-02"

// DateKey ISO 日期（YYYY-MM-DD），字典序即时间序
type DateKey string

// NewDateKey 取 t 所在时区的日历日
func NewDateKey(t time.Time) DateKey {
	return DateKey(t.Format(dateLayout))
}

// ParseDateKey 接受 YYYY-MM-DD 或 RFC3339 时间戳（取其自身时区的日历日）
func ParseDateKey(s string) (DateKey, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return NewDateKey(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDateKey(t), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Time 解析为 UTC 零点
func (d DateKey) Time() (time.Time, error) {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, string(d))
	}
	return t, nil
}

// Record 上游报表服务返回的一条原始考勤记录
// IsVirtual 为 true 表示无真实打卡的占位记录（用于表达缺勤）
type Record struct {
	ID             string `json:"id,omitempty"`
	UserID         string `json:"user_id"`
	Names          string `json:"names"`
	Surnames       string `json:"surnames"`
	DocumentNumber string `json:"document_number"`
	ScheduleID     string `json:"schedule_id"`
	ScheduleName   string `json:"schedule_name"`
	Date           string `json:"date"`

	CheckIn       *Punch         `json:"check_in,omitempty"`
	CheckOut      *Punch         `json:"check_out,omitempty"`
	ShiftStatus   string         `json:"shift_status"`
	HoursWorked   int            `json:"hours_worked"`
	MinutesWorked int            `json:"minutes_worked"`
	Justification *Justification `json:"justification,omitempty"`
	IsVirtual     bool           `json:"is_virtual"`
}

// User 矩阵行
type User struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	DocumentNumber string `json:"document_number"`
}

// ShiftCell 某用户某日的一个排班分配
// 同一 (用户, 日期) 槽位可有多个（如上午班 + 下午班）
type ShiftCell struct {
	RecordID      string         `json:"record_id,omitempty"`
	ScheduleID    string         `json:"schedule_id"`
	ScheduleName  string         `json:"schedule_name"`
	Status        ShiftStatus    `json:"status"`
	CheckIn       *Punch         `json:"check_in,omitempty"`
	CheckOut      *Punch         `json:"check_out,omitempty"`
	WorkedMinutes int            `json:"worked_minutes"`
	Justification *Justification `json:"justification,omitempty"`
	IsVirtual     bool           `json:"is_virtual"`
}

// DisplayStatus 展示状态：说明已批准时显示为 justified
// 筛选与统计仍使用 Status
func (c ShiftCell) DisplayStatus() ShiftStatus {
	if c.Justification != nil && c.Justification.Approved {
		return StatusJustified
	}
	return c.Status
}

// PeriodIndex 一个统计周期的稀疏矩阵索引
//
// 不变量：
//   - Users 恰为输入记录中出现的用户，每人一次
//   - Dates 升序去重，且只包含输入中出现的日期
//   - Matrix[u][d] 存在当且仅当该槽位非空
//
// 构建后只读；Filter / Bucket 总是产生新结构。单元格中的 Punch/Justification 指针与缓存共享，同样只读。
type PeriodIndex struct {
	Users  []User                             `json:"users"`
	Dates  []DateKey                          `json:"dates"`
	Matrix map[string]map[DateKey][]ShiftCell `json:"matrix"`
}

func newPeriodIndex(capacity int) *PeriodIndex {
	return &PeriodIndex{
		Users:  make([]User, 0, capacity),
		Dates:  make([]DateKey, 0),
		Matrix: make(map[string]map[DateKey][]ShiftCell, capacity),
	}
}

// Cells 返回槽位内的单元格（不存在时为 nil）
func (p *PeriodIndex) Cells(userID string, date DateKey) []ShiftCell {
	if p == nil {
		return nil
	}
	return p.Matrix[userID][date]
}

// FindUser 按 ID 查找用户
func (p *PeriodIndex) FindUser(userID string) (User, bool) {
	if p == nil {
		return User{}, false
	}
	for _, u := range p.Users {
		if u.ID == userID {
			return u, true
		}
	}
	return User{}, false
}

// CellCount 单元格总数
func (p *PeriodIndex) CellCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, slots := range p.Matrix {
		for _, cells := range slots {
			n += len(cells)
		}
	}
	return n
}

// Select 定位一个单元格；scheduleID 为空时返回槽位中的第一个
func Select(p *PeriodIndex, userID string, date DateKey, scheduleID string) (ShiftCell, bool) {
	for _, c := range p.Cells(userID, date) {
		if scheduleID == "" || c.ScheduleID == scheduleID {
			return c, true
		}
	}
	return ShiftCell{}, false
}
