package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"attendance-console/internal/dto"
	"attendance-console/internal/matrix"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoUsers      = errors.New("当前筛选条件下无考勤数据")
	ErrExportUserNotFound = errors.New("该员工在此周期内无考勤记录")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// statusLabels 状态的展示文字
var statusLabels = map[matrix.ShiftStatus]string{
	matrix.StatusOnTime:     "准时",
	matrix.StatusLate:       "迟到",
	matrix.StatusEarlyExit:  "早退",
	matrix.StatusAbsent:     "缺勤",
	matrix.StatusIncomplete: "打卡不完整",
	matrix.StatusJustified:  "已说明",
}

// calendarNamespace 日历事件 UID 的命名空间（UUIDv5）
var calendarNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("attendance-console/calendar"))

// ExportService 导出业务接口
//
//   - 导出与矩阵页使用同一份缓存索引和同一套筛选/分桶规则
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportMatrix 导出当前视图为 Excel：员工 × 列，另附统计 Sheet
	ExportMatrix(ctx context.Context, q *dto.MatrixQuery) (*bytes.Buffer, string, error)
	// ExportCalendar 导出单个员工本周期的打卡为 iCalendar
	ExportCalendar(ctx context.Context, q *dto.CalendarQuery) (*bytes.Buffer, string, error)
}

type exportService struct {
	report ReportService
	loader *PeriodLoader
	now    func() time.Time
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(report ReportService, loader *PeriodLoader, logger *zap.Logger) ExportService {
	return &exportService{report: report, loader: loader, now: time.Now, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportMatrix — 导出考勤矩阵为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "考勤矩阵"：行为员工（姓名、证件号），列为日期或周桶
//   - 单元格：每个班次一行 "班次: 状态"，多班次以换行分隔
//   - Sheet "统计"：各状态单元格数

func (s *exportService) ExportMatrix(ctx context.Context, q *dto.MatrixQuery) (*bytes.Buffer, string, error) {
	period, view, err := s.report.GetView(ctx, q.Period, q.Filters(), q.Granularity)
	if err != nil {
		return nil, "", err
	}
	if len(view.Users) == 0 {
		return nil, "", ErrExportNoUsers
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "考勤矩阵"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	// 删除默认 Sheet1
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 16)
	for i := range view.Columns {
		col := colName(2 + i)
		f.SetColWidth(sheetName, col, col, 18)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("考勤矩阵 %s (%s)", period, view.Granularity))
	f.MergeCell(sheetName, "A1", cell(colName(1+len(view.Columns)), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	f.SetCellValue(sheetName, cell("A", row), "员工")
	f.SetCellValue(sheetName, cell("B", row), "证件号")
	for i, c := range view.Columns {
		f.SetCellValue(sheetName, cell(colName(2+i), row), c.Label)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(1+len(view.Columns)), row), headerStyle)

	// 数据行
	row = 3
	for _, u := range view.Users {
		f.SetCellValue(sheetName, cell("A", row), u.FullName)
		f.SetCellValue(sheetName, cell("B", row), u.DocumentNumber)
		for i, c := range view.Columns {
			cells := view.Matrix[u.ID][c.Key]
			if len(cells) == 0 {
				f.SetCellValue(sheetName, cell(colName(2+i), row), "-")
				continue
			}
			f.SetCellValue(sheetName, cell(colName(2+i), row), cellText(cells))
		}
		row++
	}
	if len(view.Columns) > 0 {
		f.SetCellStyle(sheetName, "C3", cell(colName(1+len(view.Columns)), row-1), wrapStyle)
	}
	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      2,
		TopLeftCell: "C3",
		ActivePane:  "bottomRight",
	})

	// 统计 Sheet
	statsSheet := "统计"
	f.NewSheet(statsSheet)
	f.SetColWidth(statsSheet, "A", "A", 16)
	f.SetCellValue(statsSheet, "A1", "状态")
	f.SetCellValue(statsSheet, "B1", "单元格数")
	f.SetCellStyle(statsSheet, "A1", "B1", headerStyle)
	row = 2
	for _, st := range matrix.AllStatuses {
		f.SetCellValue(statsSheet, cell("A", row), statusLabels[st])
		f.SetCellValue(statsSheet, cell("B", row), view.Stats.ByStatus[st])
		row++
	}
	for _, kv := range []struct {
		label string
		value int
	}{
		{"员工数", view.Stats.Users},
		{"单元格总数", view.Stats.Cells},
		{"虚拟记录", view.Stats.Virtual},
		{"已批准说明", view.Stats.Justified},
	} {
		f.SetCellValue(statsSheet, cell("A", row), kv.label)
		f.SetCellValue(statsSheet, cell("B", row), kv.value)
		row++
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("考勤矩阵_%s.xlsx", period)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportCalendar — 导出个人考勤为 iCalendar
// ═══════════════════════════════════════════════════════════
//
// 每个有打卡的单元格生成一个 VEVENT：
//   - DTSTART/DTEND 取签到/签退时间，缺一方时为零时长事件
//   - 虚拟记录与无打卡的缺勤不生成事件
//   - UID 由 (员工, 日期, 班次) 派生，重复导出时保持稳定

func (s *exportService) ExportCalendar(ctx context.Context, q *dto.CalendarQuery) (*bytes.Buffer, string, error) {
	p, err := s.loader.Parse(q.Period)
	if err != nil {
		return nil, "", err
	}
	idx, err := s.loader.Get(ctx, p.Key)
	if err != nil {
		return nil, "", err
	}
	user, ok := idx.FindUser(q.UserID)
	if !ok {
		return nil, "", ErrExportUserNotFound
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//attendance-console//attendance matrix//ES")
	cal.SetXWRCalName(fmt.Sprintf("%s %s", user.FullName, p.Key))
	cal.SetXWRTimezone(p.Start.Location().String())

	stamp := s.now().UTC()
	events := 0
	for _, date := range idx.Dates {
		for _, c := range idx.Cells(user.ID, date) {
			start, end, ok := punchSpan(c)
			if !ok {
				continue
			}
			uid := uuid.NewSHA1(calendarNamespace, []byte(slotKey(user.ID, string(date), c.ScheduleID)))
			event := cal.AddEvent(uid.String() + "@attendance-console")
			event.SetDtStampTime(stamp)
			event.SetStartAt(start)
			event.SetEndAt(end)
			event.SetSummary(fmt.Sprintf("%s · %s", c.ScheduleName, statusLabels[c.DisplayStatus()]))
			event.SetDescription(eventDescription(c))
			events++
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())
	s.logger.Info("导出个人考勤日历",
		zap.String("period", p.Key),
		zap.String("user_id", user.ID),
		zap.Int("events", events),
	)

	filename := fmt.Sprintf("考勤日历_%s_%s.ics", user.DocumentNumber, p.Key)
	return buf, filename, nil
}

// ── 辅助函数 ──

func punchSpan(c matrix.ShiftCell) (time.Time, time.Time, bool) {
	if c.IsVirtual {
		return time.Time{}, time.Time{}, false
	}
	switch {
	case c.CheckIn != nil && c.CheckOut != nil:
		return c.CheckIn.At, c.CheckOut.At, true
	case c.CheckIn != nil:
		return c.CheckIn.At, c.CheckIn.At, true
	case c.CheckOut != nil:
		return c.CheckOut.At, c.CheckOut.At, true
	}
	return time.Time{}, time.Time{}, false
}

func eventDescription(c matrix.ShiftCell) string {
	lines := []string{fmt.Sprintf("工时: %d 分钟", c.WorkedMinutes)}
	if c.CheckIn != nil && c.CheckIn.Method != "" {
		lines = append(lines, "签到方式: "+c.CheckIn.Method)
	}
	if c.CheckOut != nil && c.CheckOut.Method != "" {
		lines = append(lines, "签退方式: "+c.CheckOut.Method)
	}
	if j := c.Justification; j != nil {
		lines = append(lines, "说明: "+j.Reason)
	}
	return strings.Join(lines, "\n")
}

func cellText(cells []matrix.ShiftCell) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		label := statusLabels[c.DisplayStatus()]
		if c.IsVirtual {
			label += "*"
		}
		parts[i] = fmt.Sprintf("%s: %s", c.ScheduleName, label)
	}
	return strings.Join(parts, "\n")
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
