package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"attendance-console/internal/model"
)

// AttendanceRepository 考勤记录数据访问接口（只读）
type AttendanceRepository interface {
	// ListByDateRange 返回 [from, to] 闭区间内的全部考勤记录，预加载员工、班次与说明
	ListByDateRange(ctx context.Context, from, to time.Time) ([]model.AttendanceRecord, error)
	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
}

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) ListByDateRange(ctx context.Context, from, to time.Time) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Schedule", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Justification").
		Where("work_date BETWEEN ? AND ?", from.Format("2006-01-02"), to.Format("2006-01-02")).
		Order("work_date ASC, user_id ASC, check_in_at ASC NULLS LAST, created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *attendanceRepo) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	var record model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Schedule", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Justification").
		Where("record_id = ?", id).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}
