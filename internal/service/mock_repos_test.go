package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"attendance-console/internal/matrix"
	"attendance-console/internal/model"
	"attendance-console/internal/repository"
)

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	records map[string]*model.AttendanceRecord
	listErr error
	calls   int
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{records: make(map[string]*model.AttendanceRecord)}
}

func (m *mockAttendanceRepo) add(r *model.AttendanceRecord) {
	m.records[r.RecordID] = r
}

func (m *mockAttendanceRepo) ListByDateRange(_ context.Context, from, to time.Time) ([]model.AttendanceRecord, error) {
	m.calls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	lo, hi := from.Format("2006-01-02"), to.Format("2006-01-02")
	var result []model.AttendanceRecord
	for _, r := range m.records {
		d := r.WorkDate.Format("2006-01-02")
		if d >= lo && d <= hi {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockAttendanceRepo) GetByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	if r, ok := m.records[id]; ok {
		return r, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock ScheduleAssignmentRepository ──

type mockAssignmentRepo struct {
	assignments []model.ScheduleAssignment
	err         error
}

func (m *mockAssignmentRepo) ListActive(_ context.Context, _, _ time.Time) ([]model.ScheduleAssignment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.assignments, nil
}

func newMockRepository() (*repository.Repository, *mockAttendanceRepo, *mockAssignmentRepo) {
	att := newMockAttendanceRepo()
	asg := &mockAssignmentRepo{}
	return &repository.Repository{Attendance: att, Assignment: asg}, att, asg
}

// ── Stub RecordSource ──

// stubSource 按周期返回调用开始时的记录；gate 只拦截其后的第一次调用
type stubSource struct {
	mu      sync.Mutex
	records map[string][]matrix.Record
	errs    map[string]error
	gates   map[string]chan struct{}
	calls   map[string]int
}

func newStubSource() *stubSource {
	return &stubSource{
		records: make(map[string][]matrix.Record),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
	}
}

func (s *stubSource) set(period string, records ...matrix.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[period] = records
}

func (s *stubSource) fail(period string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[period] = err
}

func (s *stubSource) gate(period string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[period] = ch
	return ch
}

func (s *stubSource) callCount(period string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[period]
}

func (s *stubSource) FetchPeriod(ctx context.Context, p matrix.Period) ([]matrix.Record, error) {
	s.mu.Lock()
	s.calls[p.Key]++
	gate := s.gates[p.Key]
	delete(s.gates, p.Key)
	records, err := s.records[p.Key], s.errs[p.Key]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

var errUpstream = errors.New("upstream down")

// ── 记录构造 ──

func rec(id, userID, name, date, scheduleID, scheduleName string, status matrix.ShiftStatus) matrix.Record {
	return matrix.Record{
		ID:             id,
		UserID:         userID,
		Names:          name,
		DocumentNumber: "DOC-" + userID,
		ScheduleID:     scheduleID,
		ScheduleName:   scheduleName,
		Date:           date,
		ShiftStatus:    string(status),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
