package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"attendance-console/internal/model"
)

// ScheduleAssignmentRepository 排班分配数据访问接口
type ScheduleAssignmentRepository interface {
	// ListActive 返回与 [from, to] 有交集的分配，仅限在职员工与未删除班次
	ListActive(ctx context.Context, from, to time.Time) ([]model.ScheduleAssignment, error)
}

type scheduleAssignmentRepo struct {
	db *gorm.DB
}

func NewScheduleAssignmentRepo(db *gorm.DB) ScheduleAssignmentRepository {
	return &scheduleAssignmentRepo{db: db}
}

func (r *scheduleAssignmentRepo) ListActive(ctx context.Context, from, to time.Time) ([]model.ScheduleAssignment, error) {
	var assignments []model.ScheduleAssignment
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.user_id = schedule_assignments.user_id AND users.deleted_at IS NULL AND users.is_active").
		Joins("JOIN schedules ON schedules.schedule_id = schedule_assignments.schedule_id AND schedules.deleted_at IS NULL").
		Preload("User").
		Preload("Schedule").
		Where("schedule_assignments.valid_from <= ?", to.Format("2006-01-02")).
		Where("schedule_assignments.valid_to IS NULL OR schedule_assignments.valid_to >= ?", from.Format("2006-01-02")).
		Order("schedules.start_time ASC, schedule_assignments.user_id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}
