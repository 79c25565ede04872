package model

import "time"

// Punch 签到/签退列组（嵌入 attendance_records，全部可空）
type Punch struct {
	At     *time.Time `json:"at,omitempty"`
	Status string     `gorm:"type:varchar(20);not null;default:''" json:"status,omitempty"` // on_time | late | early
	Device string     `gorm:"type:varchar(100);not null;default:''" json:"device,omitempty"`
	Method string     `gorm:"type:varchar(20);not null;default:''" json:"method,omitempty"` // fingerprint | card | face | password | manual
}

// Present 是否有打卡
func (p Punch) Present() bool { return p.At != nil }

// AttendanceRecord 考勤记录 — 对应 attendance_records
// 一人一日一班次一条；状态与工时由考勤机同步服务派生后写入
type AttendanceRecord struct {
	RecordID      string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"record_id"`
	UserID        string    `gorm:"type:uuid;not null"                             json:"user_id"`
	ScheduleID    string    `gorm:"type:uuid;not null"                             json:"schedule_id"`
	WorkDate      time.Time `gorm:"type:date;not null"                             json:"work_date"`
	CheckIn       Punch     `gorm:"embedded;embeddedPrefix:check_in_"              json:"check_in"`
	CheckOut      Punch     `gorm:"embedded;embeddedPrefix:check_out_"             json:"check_out"`
	ShiftStatus   string    `gorm:"type:varchar(20);not null;default:''"           json:"shift_status"`
	MinutesWorked int       `gorm:"not null;default:0"                             json:"minutes_worked"`
	BaseModel

	// 关联
	User          *User          `gorm:"foreignKey:UserID;references:UserID"         json:"user,omitempty"`
	Schedule      *Schedule      `gorm:"foreignKey:ScheduleID;references:ScheduleID" json:"schedule,omitempty"`
	Justification *Justification `gorm:"foreignKey:RecordID;references:RecordID"     json:"justification,omitempty"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string { return "attendance_records" }

// Justification 考勤异常说明 — 对应 justifications
type Justification struct {
	JustificationID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"justification_id"`
	RecordID        string     `gorm:"type:uuid;not null;uniqueIndex"                 json:"record_id"`
	Reason          string     `gorm:"type:varchar(500);not null"                     json:"reason"`
	ApprovedBy      *string    `gorm:"type:varchar(100)"                              json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	Approved        bool       `gorm:"not null;default:false"                         json:"approved"`
	BaseModel
}

func (Justification) TableName() string { return "justifications" }
