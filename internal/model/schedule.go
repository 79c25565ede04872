package model

import "time"

// Schedule 班次（如 Matutino / Vespertino）— 对应 schedules
type Schedule struct {
	ScheduleID       string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"schedule_id"`
	Name             string `gorm:"type:varchar(100);not null"                     json:"name"`
	StartTime        string `gorm:"type:varchar(5);not null"                       json:"start_time"` // HH:MM
	EndTime          string `gorm:"type:varchar(5);not null"                       json:"end_time"`   // HH:MM
	ToleranceMinutes int    `gorm:"not null;default:0"                             json:"tolerance_minutes"`
	SoftDeleteModel
}

func (Schedule) TableName() string { return "schedules" }

// ScheduleAssignment 员工排班分配 — 对应 schedule_assignments
// 用于为无打卡的应到日补齐虚拟缺勤记录
type ScheduleAssignment struct {
	AssignmentID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"assignment_id"`
	UserID       string     `gorm:"type:uuid;not null"                             json:"user_id"`
	ScheduleID   string     `gorm:"type:uuid;not null"                             json:"schedule_id"`
	Weekdays     IntArray   `gorm:"type:smallint[];not null"                       json:"weekdays"` // 1=周一 … 7=周日
	ValidFrom    time.Time  `gorm:"type:date;not null"                             json:"valid_from"`
	ValidTo      *time.Time `gorm:"type:date"                                      json:"valid_to,omitempty"`
	BaseModel

	// 关联
	User     *User     `gorm:"foreignKey:UserID;references:UserID"         json:"user,omitempty"`
	Schedule *Schedule `gorm:"foreignKey:ScheduleID;references:ScheduleID" json:"schedule,omitempty"`
}

func (ScheduleAssignment) TableName() string { return "schedule_assignments" }
