package matrix

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
	"time"
)

// ── 测试辅助 ──

func rec(userID, name, doc, date, scheduleID, scheduleName string, status ShiftStatus) Record {
	return Record{
		ID:             userID + "/" + date + "/" + scheduleID,
		UserID:         userID,
		Names:          name,
		DocumentNumber: doc,
		ScheduleID:     scheduleID,
		ScheduleName:   scheduleName,
		Date:           date,
		ShiftStatus:    string(status),
	}
}

func virtualAbsence(userID, name, date, scheduleID string) Record {
	return Record{
		UserID:       userID,
		Names:        name,
		ScheduleID:   scheduleID,
		ScheduleName: "Matutino",
		Date:         date,
		ShiftStatus:  string(StatusAbsent),
		IsVirtual:    true,
	}
}

// sampleRecords 10 个用户、3 天、两种排班
func sampleRecords() []Record {
	statuses := []ShiftStatus{StatusOnTime, StatusLate, StatusEarlyExit, StatusIncomplete}
	names := []string{"Ana García", "Bruno Díaz", "Carla Pérez", "Diego Ruiz", "Elena Soto",
		"Fabián León", "Gabriela Mora", "Héctor Vega", "Irene Cruz", "Julio Reyes"}
	var records []Record
	for i, name := range names {
		uid := string(rune('A' + i))
		for d, date := range []string{"2025-12-01", "2025-12-02", "2025-12-08"} {
			st := statuses[(i+d)%len(statuses)]
			records = append(records, rec(uid, name, "DOC-10"+uid, date, "S1", "Matutino", st))
			if i%2 == 0 {
				records = append(records, rec(uid, name, "DOC-10"+uid, date, "S2", "Vespertino", StatusOnTime))
			}
		}
	}
	return records
}

func totalCells(idx *PeriodIndex) int { return idx.CellCount() }

func assertNoOrphans(t *testing.T, idx *PeriodIndex) {
	t.Helper()
	for _, u := range idx.Users {
		slots := idx.Matrix[u.ID]
		if len(slots) == 0 {
			t.Errorf("用户 %s 无任何槽位却保留在结果中", u.ID)
		}
		for d, cells := range slots {
			if len(cells) == 0 {
				t.Errorf("用户 %s 日期 %s 存在空槽位", u.ID, d)
			}
		}
	}
	if len(idx.Matrix) != len(idx.Users) {
		t.Errorf("Matrix 行数 %d 与 Users 数 %d 不一致", len(idx.Matrix), len(idx.Users))
	}
}

// ════════════════════════════════════════════
// Normalize / DeriveStatus
// ════════════════════════════════════════════

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2025, 12, 5, 8, 0, 0, 0, time.UTC)
	onTime := &Punch{At: now, Status: PunchOnTime}
	late := &Punch{At: now, Status: PunchLate}
	early := &Punch{At: now.Add(7 * time.Hour), Status: PunchEarly}
	out := &Punch{At: now.Add(8 * time.Hour), Status: PunchOnTime}

	cases := []struct {
		name     string
		in, out  *Punch
		expected ShiftStatus
	}{
		{"无打卡", nil, nil, StatusAbsent},
		{"迟到", late, out, StatusLate},
		{"迟到且未签退", late, nil, StatusLate},
		{"早退", onTime, early, StatusEarlyExit},
		{"正常", onTime, out, StatusOnTime},
		{"仅签到", onTime, nil, StatusIncomplete},
		{"仅签退", nil, out, StatusIncomplete},
	}
	for _, c := range cases {
		if got := DeriveStatus(c.in, c.out); got != c.expected {
			t.Errorf("%s: 期望 %s，实际 %s", c.name, c.expected, got)
		}
	}
}

func TestNormalize_MissingIdentity(t *testing.T) {
	for _, r := range []Record{
		{ScheduleID: "S1", Date: "2025-12-01"},
		{UserID: "u1", Date: "2025-12-01"},
		{UserID: "u1", ScheduleID: "S1", Date: "01/12/2025"},
		{UserID: "  ", ScheduleID: "S1", Date: "2025-12-01"},
	} {
		if _, _, _, err := Normalize(r); err == nil {
			t.Errorf("期望记录 %+v 被判定为格式错误", r)
		}
	}
}

func TestNormalize_DerivesUnknownStatus(t *testing.T) {
	in := time.Date(2025, 12, 5, 8, 0, 0, 0, time.UTC)
	r := Record{
		UserID:     "u1",
		Names:      "  María  José ",
		Surnames:   "López",
		ScheduleID: "S1",
		Date:       "2025-12-05T08:00:00Z",
		CheckIn:    &Punch{At: in, Status: PunchOnTime},
		CheckOut:   &Punch{At: in.Add(8*time.Hour + 30*time.Minute), Status: PunchOnTime},
	}
	user, date, cell, err := Normalize(r)
	if err != nil {
		t.Fatalf("Normalize 应成功: %v", err)
	}
	if user.FullName != "María José López" {
		t.Errorf("期望姓名折叠空白，实际 %q", user.FullName)
	}
	if date != "2025-12-05" {
		t.Errorf("期望日期 2025-12-05，实际 %s", date)
	}
	if cell.Status != StatusOnTime {
		t.Errorf("期望推导为 on_time，实际 %s", cell.Status)
	}
	if cell.WorkedMinutes != 510 {
		t.Errorf("期望工时 510 分钟，实际 %d", cell.WorkedMinutes)
	}

	r.ShiftStatus = "bogus"
	r.CheckOut = nil
	_, _, cell, _ = Normalize(r)
	if cell.Status != StatusIncomplete {
		t.Errorf("非枚举状态应重新推导为 incomplete，实际 %s", cell.Status)
	}
}

func TestNormalize_UpstreamWorkedDuration(t *testing.T) {
	r := rec("u1", "Ana", "1", "2025-12-05", "S1", "Matutino", StatusOnTime)
	r.HoursWorked = 7
	r.MinutesWorked = 45
	_, _, cell, err := Normalize(r)
	if err != nil {
		t.Fatalf("Normalize 应成功: %v", err)
	}
	if cell.WorkedMinutes != 465 {
		t.Errorf("期望 465，实际 %d", cell.WorkedMinutes)
	}
}

func TestShiftCell_DisplayStatus(t *testing.T) {
	c := ShiftCell{Status: StatusAbsent, Justification: &Justification{Reason: "cita médica", Approved: true}}
	if c.DisplayStatus() != StatusJustified {
		t.Errorf("已批准说明应展示为 justified，实际 %s", c.DisplayStatus())
	}
	if c.Status != StatusAbsent {
		t.Error("展示状态不应改写 Status")
	}
	c.Justification.Approved = false
	if c.DisplayStatus() != StatusAbsent {
		t.Errorf("未批准说明应展示原状态，实际 %s", c.DisplayStatus())
	}
}

// ════════════════════════════════════════════
// Build
// ════════════════════════════════════════════

func TestBuild_ScenarioA_MultipleSchedulesSameDay(t *testing.T) {
	records := []Record{
		rec("A", "Ana", "111", "2025-12-05", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana", "111", "2025-12-05", "S2", "Vespertino", StatusLate),
	}
	idx, stats := Build(records)
	if stats.Accepted != 2 || stats.Dropped != 0 {
		t.Fatalf("期望 2/0，实际 %+v", stats)
	}

	cells := idx.Cells("A", "2025-12-05")
	if len(cells) != 2 {
		t.Fatalf("期望槽位 2 个单元格，实际 %d", len(cells))
	}
	if cells[0].ScheduleName != "Matutino" || cells[1].ScheduleName != "Vespertino" {
		t.Errorf("单元格顺序应与记录顺序一致: %+v", cells)
	}

	filtered := Filter(idx, Filters{Status: "late"})
	got := filtered.Cells("A", "2025-12-05")
	if len(got) != 1 || got[0].ScheduleName != "Vespertino" {
		t.Fatalf("期望仅保留 Vespertino，实际 %+v", got)
	}
	if _, ok := filtered.FindUser("A"); !ok {
		t.Error("用户 A 应保留")
	}
	// 缓存索引不受影响
	if len(idx.Cells("A", "2025-12-05")) != 2 {
		t.Error("Filter 不应修改原索引")
	}
}

func TestBuild_DropsMalformedRecords(t *testing.T) {
	records := []Record{
		rec("A", "Ana", "1", "2025-12-01", "S1", "Matutino", StatusOnTime),
		{Names: "sin id", ScheduleID: "S1", Date: "2025-12-01"},
		{UserID: "B", ScheduleID: "S1", Date: "no-date"},
		rec("B", "Bruno", "2", "2025-12-03", "S1", "Matutino", StatusLate),
	}
	idx, stats := Build(records)
	if stats.Accepted != 2 || stats.Dropped != 2 {
		t.Fatalf("期望 2 条接受、2 条丢弃，实际 %+v", stats)
	}
	if len(idx.Users) != 2 {
		t.Errorf("期望 2 个用户，实际 %d", len(idx.Users))
	}
	if !reflect.DeepEqual(idx.Dates, []DateKey{"2025-12-01", "2025-12-03"}) {
		t.Errorf("日期集合不符: %v", idx.Dates)
	}
}

func TestBuild_UsersDeduplicatedFirstWins(t *testing.T) {
	records := []Record{
		rec("A", "Ana", "111", "2025-12-02", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana Renamed", "999", "2025-12-01", "S1", "Matutino", StatusOnTime),
	}
	idx, _ := Build(records)
	if len(idx.Users) != 1 {
		t.Fatalf("期望 1 个用户，实际 %d", len(idx.Users))
	}
	if idx.Users[0].FullName != "Ana" || idx.Users[0].DocumentNumber != "111" {
		t.Errorf("展示字段应以首次出现为准: %+v", idx.Users[0])
	}
	if idx.Dates[0] != "2025-12-01" {
		t.Errorf("日期应升序: %v", idx.Dates)
	}
}

func TestBuild_DoesNotSynthesizeMissingDays(t *testing.T) {
	idx, _ := Build([]Record{
		rec("A", "Ana", "1", "2025-12-01", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana", "1", "2025-12-31", "S1", "Matutino", StatusOnTime),
	})
	if len(idx.Dates) != 2 {
		t.Errorf("不应补齐无记录日期，实际 %d 个日期", len(idx.Dates))
	}
}

func TestBuild_Empty(t *testing.T) {
	idx, stats := Build(nil)
	if idx == nil || len(idx.Users) != 0 || len(idx.Dates) != 0 || len(idx.Matrix) != 0 {
		t.Fatalf("空输入应得到空索引: %+v", idx)
	}
	if stats.Accepted != 0 || stats.Dropped != 0 {
		t.Errorf("空输入统计应为 0: %+v", stats)
	}
}

func TestBuild_Determinism(t *testing.T) {
	records := sampleRecords()
	first, _ := Build(records)
	second, _ := Build(records)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("相同输入两次构建结果应完全一致")
	}

	shuffled := append([]Record(nil), records...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	third, _ := Build(shuffled)

	if !reflect.DeepEqual(first.Users, third.Users) {
		t.Errorf("用户集合应一致")
	}
	if !reflect.DeepEqual(first.Dates, third.Dates) {
		t.Errorf("日期集合应一致")
	}
	for uid, slots := range first.Matrix {
		for d, cells := range slots {
			if !sameCellSet(cells, third.Matrix[uid][d]) {
				t.Errorf("槽位 %s/%s 单元格集合不一致", uid, d)
			}
		}
	}
}

func sameCellSet(a, b []ShiftCell) bool {
	if len(a) != len(b) {
		return false
	}
	ids := func(cells []ShiftCell) []string {
		out := make([]string, len(cells))
		for i, c := range cells {
			out[i] = c.RecordID
		}
		sort.Strings(out)
		return out
	}
	return reflect.DeepEqual(ids(a), ids(b))
}

// ════════════════════════════════════════════
// Filter
// ════════════════════════════════════════════

func TestFilter_IdentityLaw(t *testing.T) {
	idx, _ := Build(sampleRecords())
	if got := Filter(idx, Filters{}); !reflect.DeepEqual(got, idx) {
		t.Fatal("空筛选应与输入完全相等")
	}
	if got := Filter(idx, Filters{Search: "   "}); !reflect.DeepEqual(got, idx) {
		t.Fatal("空白搜索应为恒等变换")
	}
}

func TestFilter_ScenarioB_NoSuchUser(t *testing.T) {
	idx, _ := Build(sampleRecords())
	if len(idx.Users) != 10 {
		t.Fatalf("样本应有 10 个用户，实际 %d", len(idx.Users))
	}
	got := Filter(idx, Filters{Search: "zzz-no-such-user"})
	if len(got.Users) != 0 || len(got.Matrix) != 0 {
		t.Errorf("期望空结果，实际 users=%d matrix=%d", len(got.Users), len(got.Matrix))
	}
	if got.Users == nil || got.Matrix == nil {
		t.Error("空结果应为空集合而非 nil")
	}
	if !reflect.DeepEqual(got.Dates, idx.Dates) {
		t.Error("Dates 不应被筛选改变")
	}
}

func TestFilter_ScenarioC_NoCellSatisfiesBoth(t *testing.T) {
	idx, _ := Build(sampleRecords())
	got := Filter(idx, Filters{ScheduleID: "S1", Status: "absent"})
	if len(got.Users) != 0 || len(got.Matrix) != 0 {
		t.Errorf("期望空结果，实际 users=%d", len(got.Users))
	}
	if !reflect.DeepEqual(got.Dates, idx.Dates) {
		t.Error("Dates 不应被筛选改变")
	}
}

func TestFilter_ScenarioD_VirtualAbsence(t *testing.T) {
	idx, _ := Build([]Record{
		virtualAbsence("U", "Úrsula", "2025-12-01", "S1"),
		rec("U", "Úrsula", "77", "2025-12-02", "S1", "Matutino", StatusOnTime),
	})

	absent := Filter(idx, Filters{Status: "absent"})
	if len(absent.Users) != 1 {
		t.Fatalf("期望保留用户 U，实际 %d", len(absent.Users))
	}
	if len(absent.Matrix["U"]) != 1 || len(absent.Cells("U", "2025-12-01")) != 1 {
		t.Errorf("absent 应只保留 D1 槽位: %+v", absent.Matrix["U"])
	}
	if !absent.Cells("U", "2025-12-01")[0].IsVirtual {
		t.Error("D1 单元格应为虚拟记录")
	}

	onTime := Filter(idx, Filters{Status: "on_time"})
	if len(onTime.Matrix["U"]) != 1 || len(onTime.Cells("U", "2025-12-02")) != 1 {
		t.Errorf("on_time 应只保留 D2 槽位: %+v", onTime.Matrix["U"])
	}
}

func TestFilter_SearchByNameAndDocument(t *testing.T) {
	idx, _ := Build(sampleRecords())

	byName := Filter(idx, Filters{Search: "GARCIA"})
	if len(byName.Users) != 1 || byName.Users[0].FullName != "Ana García" {
		t.Errorf("姓名搜索应忽略大小写与重音: %+v", byName.Users)
	}

	byDoc := Filter(idx, Filters{Search: "doc-10c"})
	if len(byDoc.Users) != 1 || byDoc.Users[0].ID != "C" {
		t.Errorf("证件号搜索失败: %+v", byDoc.Users)
	}

	exactDoc := Filter(idx, Filters{Search: "DOC-10J"})
	if len(exactDoc.Users) != 1 || exactDoc.Users[0].ID != "J" {
		t.Errorf("证件号精确匹配失败: %+v", exactDoc.Users)
	}

	// 搜索阶段保留用户的全部单元格
	if byName.CellCount() != len(idx.Matrix["A"]["2025-12-01"])*3 {
		t.Errorf("搜索不应收窄单元格，实际 %d", byName.CellCount())
	}
}

func TestFilter_StagesApplyInOrder(t *testing.T) {
	idx, _ := Build(sampleRecords())
	got := Filter(idx, Filters{Search: "ana", ScheduleID: "S2", Status: "on_time"})
	if len(got.Users) != 1 || got.Users[0].ID != "A" {
		t.Fatalf("期望仅保留 A: %+v", got.Users)
	}
	for d, cells := range got.Matrix["A"] {
		for _, c := range cells {
			if c.ScheduleID != "S2" || c.Status != StatusOnTime {
				t.Errorf("%s 存在不满足条件的单元格 %+v", d, c)
			}
		}
	}
}

func TestFilter_UnknownStatusYieldsEmpty(t *testing.T) {
	idx, _ := Build(sampleRecords())
	got := Filter(idx, Filters{Status: "vacation"})
	if len(got.Users) != 0 || len(got.Matrix) != 0 {
		t.Errorf("未知状态应不匹配任何单元格，实际 %d 个用户", len(got.Users))
	}
}

func TestFilter_JustifiedMatchesStatusOnly(t *testing.T) {
	annotated := rec("A", "Ana", "1", "2025-12-01", "S1", "Matutino", StatusAbsent)
	annotated.Justification = &Justification{Reason: "permiso", Approved: true}
	idx, _ := Build([]Record{
		annotated,
		rec("B", "Bruno", "2", "2025-12-01", "S1", "Matutino", StatusJustified),
	})
	got := Filter(idx, Filters{Status: "justified"})
	if len(got.Users) != 1 || got.Users[0].ID != "B" {
		t.Errorf("justified 筛选应只匹配 Status 字段: %+v", got.Users)
	}
}

func TestFilter_MonotonicNarrowingAndNoOrphans(t *testing.T) {
	idx, _ := Build(sampleRecords())
	chain := []Filters{
		{},
		{Search: "e"},
		{Search: "e", ScheduleID: "S1"},
		{Search: "e", ScheduleID: "S1", Status: "late"},
	}

	prev := idx
	for _, f := range chain {
		got := Filter(idx, f)
		assertNoOrphans(t, got)
		if len(got.Users) > len(prev.Users) {
			t.Errorf("%+v: 用户数不应增加 (%d > %d)", f, len(got.Users), len(prev.Users))
		}
		if totalCells(got) > totalCells(prev) {
			t.Errorf("%+v: 单元格数不应增加", f)
		}
		for uid, slots := range got.Matrix {
			for d, cells := range slots {
				if len(cells) > len(idx.Matrix[uid][d]) {
					t.Errorf("%+v: 槽位 %s/%s 单元格数增加", f, uid, d)
				}
			}
		}
		if !reflect.DeepEqual(got.Dates, idx.Dates) {
			t.Errorf("%+v: Dates 被改变", f)
		}
		prev = got
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	idx, _ := Build(sampleRecords())
	before, _ := Build(sampleRecords())

	_ = Filter(idx, Filters{Search: "a", ScheduleID: "S1"})
	_ = Filter(idx, Filters{Status: "late"})

	if !reflect.DeepEqual(idx, before) {
		t.Fatal("Filter 修改了缓存索引")
	}
}

// ════════════════════════════════════════════
// Bucket
// ════════════════════════════════════════════

func TestBucket_DayIsIdentity(t *testing.T) {
	idx, _ := Build(sampleRecords())
	view, err := Bucket(idx, GranularityDay)
	if err != nil {
		t.Fatalf("Bucket 应成功: %v", err)
	}
	if len(view.Columns) != len(idx.Dates) {
		t.Fatalf("期望 %d 列，实际 %d", len(idx.Dates), len(view.Columns))
	}
	for uid, slots := range idx.Matrix {
		for d, cells := range slots {
			if !reflect.DeepEqual(view.Matrix[uid][string(d)], cells) {
				t.Errorf("day 粒度下 %s/%s 内容应原样保留", uid, d)
			}
		}
	}
}

func TestBucket_WeekConservation(t *testing.T) {
	idx, _ := Build(sampleRecords())
	view, err := Bucket(idx, GranularityWeek)
	if err != nil {
		t.Fatalf("Bucket 应成功: %v", err)
	}

	// 2025-12-01/02 属于 W49，2025-12-08 属于 W50
	if len(view.Columns) != 2 {
		t.Fatalf("期望 2 个周桶，实际 %d: %+v", len(view.Columns), view.Columns)
	}
	if len(view.Columns[0].Dates) != 2 || view.Columns[1].Dates[0] != "2025-12-08" {
		t.Errorf("周桶成员不符: %+v", view.Columns)
	}

	for _, u := range idx.Users {
		for _, col := range view.Columns {
			var expected []ShiftCell
			for _, d := range col.Dates {
				expected = append(expected, idx.Matrix[u.ID][d]...)
			}
			got := view.Matrix[u.ID][col.Key]
			if len(expected) == 0 {
				if _, ok := view.Matrix[u.ID][col.Key]; ok {
					t.Errorf("%s/%s 无单元格时不应存在键", u.ID, col.Key)
				}
				continue
			}
			if !reflect.DeepEqual(got, expected) {
				t.Errorf("%s/%s 应为各日单元格按日期顺序的拼接", u.ID, col.Key)
			}
		}
	}
}

func TestBucket_WeekSplitsAcrossMonths(t *testing.T) {
	// 2025-12-29 (周一) 至 2026-01-02 同属 ISO 2026-W01，但月份不同
	idx, _ := Build([]Record{
		rec("A", "Ana", "1", "2025-12-30", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana", "1", "2025-12-31", "S1", "Matutino", StatusLate),
		rec("A", "Ana", "1", "2026-01-02", "S1", "Matutino", StatusOnTime),
	})
	view, err := Bucket(idx, GranularityWeek)
	if err != nil {
		t.Fatalf("Bucket 应成功: %v", err)
	}
	if len(view.Columns) != 2 {
		t.Fatalf("跨月自然周应拆为 2 列，实际 %d", len(view.Columns))
	}
	if len(view.Matrix["A"][view.Columns[0].Key]) != 2 {
		t.Errorf("12 月桶应含 2 个单元格")
	}
}

func TestBucket_WeekAcrossISOYearBoundary(t *testing.T) {
	// 2025-12-29..31 属于 ISO 2026-W01，仍排在 12 月其余周之后
	idx, _ := Build([]Record{
		rec("A", "Ana", "1", "2025-12-31", "S1", "Matutino", StatusLate),
		rec("A", "Ana", "1", "2025-12-01", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana", "1", "2025-12-29", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana", "1", "2025-12-22", "S1", "Matutino", StatusAbsent),
	})
	view, err := Bucket(idx, GranularityWeek)
	if err != nil {
		t.Fatalf("Bucket 应成功: %v", err)
	}

	want := []struct {
		key   string
		label string
		dates []DateKey
	}{
		{"2025-W49@2025-12", "W49 2025-12", []DateKey{"2025-12-01"}},
		{"2025-W52@2025-12", "W52 2025-12", []DateKey{"2025-12-22"}},
		{"2026-W01@2025-12", "W01 2025-12", []DateKey{"2025-12-29", "2025-12-31"}},
	}
	if len(view.Columns) != len(want) {
		t.Fatalf("期望 %d 列，实际 %d: %+v", len(want), len(view.Columns), view.Columns)
	}
	for i, w := range want {
		c := view.Columns[i]
		if c.Key != w.key || c.Label != w.label {
			t.Errorf("第 %d 列期望 %s/%s，实际 %s/%s", i, w.key, w.label, c.Key, c.Label)
		}
		if !reflect.DeepEqual(c.Dates, w.dates) {
			t.Errorf("第 %d 列日期期望 %v，实际 %v", i, w.dates, c.Dates)
		}
	}

	cells := view.Matrix["A"]["2026-W01@2025-12"]
	if len(cells) != 2 || cells[0].Status != StatusOnTime || cells[1].Status != StatusLate {
		t.Errorf("跨年周桶应按日期顺序拼接 12-29 与 12-31 的单元格: %+v", cells)
	}
}

func TestBucket_SparseUserBucketsOmitted(t *testing.T) {
	idx, _ := Build([]Record{
		rec("A", "Ana", "1", "2025-12-01", "S1", "Matutino", StatusOnTime),
		rec("B", "Bruno", "2", "2025-12-15", "S1", "Matutino", StatusOnTime),
	})
	view, _ := Bucket(idx, GranularityWeek)
	if len(view.Matrix["A"]) != 1 || len(view.Matrix["B"]) != 1 {
		t.Errorf("空的 (用户, 桶) 不应出现: %+v", view.Matrix)
	}
}

func TestBucket_InvalidGranularity(t *testing.T) {
	idx, _ := Build(sampleRecords())
	if _, err := Bucket(idx, "month"); err == nil {
		t.Error("未知粒度应返回错误")
	}
	if _, err := ParseGranularity("hour"); err == nil {
		t.Error("ParseGranularity 应拒绝 hour")
	}
	if g, err := ParseGranularity(""); err != nil || g != GranularityDay {
		t.Errorf("空粒度应默认 day，实际 %q %v", g, err)
	}
}

// ════════════════════════════════════════════
// Recompute / Stats / Period
// ════════════════════════════════════════════

func TestRecompute_StatsReflectFilteredView(t *testing.T) {
	annotated := virtualAbsence("A", "Ana", "2025-12-03", "S1")
	annotated.Justification = &Justification{Reason: "licencia", Approved: true}
	records := append(sampleRecords(), annotated)
	idx, _ := Build(records)

	view, err := Recompute(idx, Filters{Status: "absent"}, GranularityWeek)
	if err != nil {
		t.Fatalf("Recompute 应成功: %v", err)
	}
	if view.Stats.Cells != 1 || view.Stats.ByStatus[StatusAbsent] != 1 {
		t.Errorf("统计应基于筛选后视图: %+v", view.Stats)
	}
	if view.Stats.Virtual != 1 || view.Stats.Justified != 1 {
		t.Errorf("虚拟/说明计数不符: %+v", view.Stats)
	}
	for _, s := range AllStatuses {
		if _, ok := view.Stats.ByStatus[s]; !ok {
			t.Errorf("ByStatus 缺少键 %s", s)
		}
	}

	full, _ := Recompute(idx, Filters{}, GranularityDay)
	if full.Stats.Cells != idx.CellCount() {
		t.Errorf("无筛选时统计应覆盖全部单元格")
	}
}

func TestParsePeriod(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	p, err := ParsePeriod("2025-02", loc)
	if err != nil {
		t.Fatalf("ParsePeriod 应成功: %v", err)
	}
	if len(p.Days()) != 28 {
		t.Errorf("2025-02 应有 28 天，实际 %d", len(p.Days()))
	}
	if !p.Contains("2025-02-28") || p.Contains("2025-03-01") {
		t.Error("Contains 边界错误")
	}
	if _, err := ParsePeriod("2025-13", loc); err == nil {
		t.Error("非法月份应返回错误")
	}
	if PeriodKeyOf(p.Start) != "2025-02" {
		t.Errorf("PeriodKeyOf 不符: %s", PeriodKeyOf(p.Start))
	}
}

func TestSelect(t *testing.T) {
	idx, _ := Build([]Record{
		rec("A", "Ana", "1", "2025-12-05", "S1", "Matutino", StatusOnTime),
		rec("A", "Ana", "1", "2025-12-05", "S2", "Vespertino", StatusLate),
	})
	if c, ok := Select(idx, "A", "2025-12-05", "S2"); !ok || c.Status != StatusLate {
		t.Errorf("应选中 S2 单元格: %+v", c)
	}
	if c, ok := Select(idx, "A", "2025-12-05", ""); !ok || c.ScheduleID != "S1" {
		t.Errorf("未指定排班时应选中首个单元格: %+v", c)
	}
	if _, ok := Select(idx, "B", "2025-12-05", ""); ok {
		t.Error("不存在的槽位应返回 false")
	}
}
