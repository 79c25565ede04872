package matrix

import "time"

// ShiftStatus 班次考勤状态（封闭枚举，筛选与统计均以此为键）
type ShiftStatus string

const (
	StatusOnTime     ShiftStatus = "on_time"
	StatusLate       ShiftStatus = "late"
	StatusEarlyExit  ShiftStatus = "early_exit"
	StatusAbsent     ShiftStatus = "absent"
	StatusIncomplete ShiftStatus = "incomplete"
	StatusJustified  ShiftStatus = "justified"
)

// AllStatuses 全部状态，顺序即统计输出顺序
var AllStatuses = []ShiftStatus{
	StatusOnTime,
	StatusLate,
	StatusEarlyExit,
	StatusAbsent,
	StatusIncomplete,
	StatusJustified,
}

// Valid 是否为枚举成员
func (s ShiftStatus) Valid() bool {
	switch s {
	case StatusOnTime, StatusLate, StatusEarlyExit, StatusAbsent, StatusIncomplete, StatusJustified:
		return true
	}
	return false
}

// ParseShiftStatus 将外部字符串解析为 ShiftStatus，非枚举值返回 false
func ParseShiftStatus(s string) (ShiftStatus, bool) {
	st := ShiftStatus(s)
	return st, st.Valid()
}

// ── 打卡子记录 ──

// 打卡到达状态（由上游考勤机/报表服务标记）
const (
	PunchOnTime = "on_time"
	PunchLate   = "late"
	PunchEarly  = "early"
)

// Punch 一次签到或签退
type Punch struct {
	At     time.Time `json:"at"`
	Status string    `json:"status"`           // on_time | late | early
	Device string    `json:"device,omitempty"` // 考勤设备描述
	Method string    `json:"method,omitempty"` // fingerprint | card | face | password | manual
}

// IsLate 签到是否被标记为迟到（nil 安全）
func (p *Punch) IsLate() bool { return p != nil && p.Status == PunchLate }

// IsEarly 签退是否被标记为早退（nil 安全）
func (p *Punch) IsEarly() bool { return p != nil && p.Status == PunchEarly }

// Justification 缺勤/异常说明
type Justification struct {
	Reason     string     `json:"reason"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Approved   bool       `json:"approved"`
}

// DeriveStatus 根据签到/签退推导班次状态
//
// 规则按顺序匹配：
//   - 均缺失 → absent
//   - 签到迟到 → late
//   - 签退早退 → early_exit
//   - 均存在且无标记 → on_time
//   - 仅有其一 → incomplete
func DeriveStatus(checkIn, checkOut *Punch) ShiftStatus {
	switch {
	case checkIn == nil && checkOut == nil:
		return StatusAbsent
	case checkIn.IsLate():
		return StatusLate
	case checkOut.IsEarly():
		return StatusEarlyExit
	case checkIn != nil && checkOut != nil:
		return StatusOnTime
	default:
		return StatusIncomplete
	}
}
