package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"attendance-console/internal/matrix"
	"attendance-console/internal/model"
	"attendance-console/internal/repository"
	pkgerrors "attendance-console/pkg/errors"
)

// RecordSource 按周期拉取原始考勤记录
type RecordSource interface {
	FetchPeriod(ctx context.Context, period matrix.Period) ([]matrix.Record, error)
}

type dbRecordSource struct {
	repo       *repository.Repository
	synthesize bool
	now        func() time.Time
	logger     *zap.Logger
}

// NewRecordSource 创建基于数据库的记录源
// synthesize 为 true 时，按排班分配为已过去且无记录的应到日补齐虚拟缺勤
func NewRecordSource(repo *repository.Repository, synthesize bool, logger *zap.Logger) RecordSource {
	return &dbRecordSource{repo: repo, synthesize: synthesize, now: time.Now, logger: logger}
}

func (s *dbRecordSource) FetchPeriod(ctx context.Context, period matrix.Period) ([]matrix.Record, error) {
	last := period.End.AddDate(0, 0, -1)

	rows, err := s.repo.Attendance.ListByDateRange(ctx, period.Start, last)
	if err != nil {
		s.logger.Error("查询考勤记录失败", zap.String("period", period.Key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrSourceUnavailable, err)
	}

	entries := make([]sourceEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, sourceEntry{
			record: toMatrixRecord(&rows[i]),
			start:  scheduleStart(rows[i].Schedule),
		})
	}

	if s.synthesize {
		assignments, err := s.repo.Assignment.ListActive(ctx, period.Start, last)
		if err != nil {
			s.logger.Error("查询排班分配失败", zap.String("period", period.Key), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrSourceUnavailable, err)
		}
		today := matrix.NewDateKey(s.now().In(period.Start.Location()))
		virtual := synthesizeAbsences(period, assignments, entries, today)
		if len(virtual) > 0 {
			s.logger.Debug("补齐虚拟缺勤记录",
				zap.String("period", period.Key),
				zap.Int("count", len(virtual)),
			)
		}
		entries = append(entries, virtual...)
	}

	// 同一天内按班次开始时间排列，保证槽位内上午班在前
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].record.Date != entries[j].record.Date {
			return entries[i].record.Date < entries[j].record.Date
		}
		return entries[i].start < entries[j].start
	})

	records := make([]matrix.Record, len(entries))
	for i, e := range entries {
		records[i] = e.record
	}
	return records, nil
}

type sourceEntry struct {
	record matrix.Record
	start  string
}

func scheduleStart(s *model.Schedule) string {
	if s == nil {
		return ""
	}
	return s.StartTime
}

// toMatrixRecord 数据库记录 → 矩阵原始记录
func toMatrixRecord(row *model.AttendanceRecord) matrix.Record {
	rec := matrix.Record{
		ID:            row.RecordID,
		UserID:        row.UserID,
		ScheduleID:    row.ScheduleID,
		Date:          row.WorkDate.Format("2006-01-02"),
		CheckIn:       toMatrixPunch(row.CheckIn),
		CheckOut:      toMatrixPunch(row.CheckOut),
		ShiftStatus:   row.ShiftStatus,
		HoursWorked:   row.MinutesWorked / 60,
		MinutesWorked: row.MinutesWorked % 60,
	}
	if row.User != nil {
		rec.Names = row.User.Names
		rec.Surnames = row.User.Surnames
		rec.DocumentNumber = row.User.DocumentNumber
	}
	if row.Schedule != nil {
		rec.ScheduleName = row.Schedule.Name
	}
	if j := row.Justification; j != nil {
		rec.Justification = &matrix.Justification{
			Reason:     j.Reason,
			ApprovedAt: j.ApprovedAt,
			Approved:   j.Approved,
		}
		if j.ApprovedBy != nil {
			rec.Justification.ApprovedBy = *j.ApprovedBy
		}
	}
	return rec
}

func toMatrixPunch(p model.Punch) *matrix.Punch {
	if !p.Present() {
		return nil
	}
	return &matrix.Punch{
		At:     *p.At,
		Status: p.Status,
		Device: p.Device,
		Method: p.Method,
	}
}

// synthesizeAbsences 为周期内 today 之前、分配生效且无任何记录的 (员工, 日期, 班次) 生成虚拟缺勤
func synthesizeAbsences(period matrix.Period, assignments []model.ScheduleAssignment, existing []sourceEntry, today matrix.DateKey) []sourceEntry {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[slotKey(e.record.UserID, e.record.Date, e.record.ScheduleID)] = struct{}{}
	}

	var out []sourceEntry
	for _, day := range period.Days() {
		if day >= today {
			break
		}
		t, err := day.Time()
		if err != nil {
			continue
		}
		for i := range assignments {
			a := &assignments[i]
			if !assignmentActiveOn(a, day, isoWeekday(t)) {
				continue
			}
			key := slotKey(a.UserID, string(day), a.ScheduleID)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			rec := matrix.Record{
				UserID:      a.UserID,
				ScheduleID:  a.ScheduleID,
				Date:        string(day),
				ShiftStatus: string(matrix.StatusAbsent),
				IsVirtual:   true,
			}
			if a.User != nil {
				rec.Names = a.User.Names
				rec.Surnames = a.User.Surnames
				rec.DocumentNumber = a.User.DocumentNumber
			}
			if a.Schedule != nil {
				rec.ScheduleName = a.Schedule.Name
			}
			out = append(out, sourceEntry{record: rec, start: scheduleStart(a.Schedule)})
		}
	}
	return out
}

func assignmentActiveOn(a *model.ScheduleAssignment, day matrix.DateKey, weekday int) bool {
	if !a.Weekdays.Contains(weekday) {
		return false
	}
	if day < matrix.NewDateKey(a.ValidFrom) {
		return false
	}
	if a.ValidTo != nil && day > matrix.NewDateKey(*a.ValidTo) {
		return false
	}
	return true
}

// isoWeekday 周一=1 … 周日=7
func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

func slotKey(userID, date, scheduleID string) string {
	return userID + "|" + date + "|" + scheduleID
}
