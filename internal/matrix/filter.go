package matrix

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Filters 筛选条件，空字符串表示该维度不限
type Filters struct {
	Search     string `json:"search"      form:"search"`
	ScheduleID string `json:"schedule_id" form:"schedule_id"`
	Status     string `json:"status"      form:"status"`
}

// IsEmpty 所有维度均不限
func (f Filters) IsEmpty() bool {
	return strings.TrimSpace(f.Search) == "" &&
		strings.TrimSpace(f.ScheduleID) == "" &&
		strings.TrimSpace(f.Status) == ""
}

// Filter 从只读索引派生收窄后的视图
//
// 三个阶段依次作用于上一阶段的输出：
//  1. 搜索：姓名（忽略大小写与重音）或证件号子串匹配，不匹配的用户整行移除
//  2. 排班：仅保留 ScheduleID 相等的单元格
//  3. 状态：仅保留 Status 相等的单元格；非枚举值不匹配任何单元格
//
// 阶段 2、3 清空的槽位被移除，无槽位的用户被移除。Dates 始终原样保留。
// 条件全空时直接返回 idx。
func Filter(idx *PeriodIndex, f Filters) *PeriodIndex {
	if idx == nil || f.IsEmpty() {
		return idx
	}

	users, m := idx.Users, idx.Matrix

	if search := strings.TrimSpace(f.Search); search != "" {
		users, m = filterBySearch(users, m, search)
	}
	if scheduleID := strings.TrimSpace(f.ScheduleID); scheduleID != "" {
		users, m = narrowCells(users, m, func(c ShiftCell) bool {
			return c.ScheduleID == scheduleID
		})
	}
	if status := strings.TrimSpace(f.Status); status != "" {
		want := ShiftStatus(status)
		users, m = narrowCells(users, m, func(c ShiftCell) bool {
			return c.Status == want
		})
	}

	return &PeriodIndex{Users: users, Dates: idx.Dates, Matrix: m}
}

func filterBySearch(users []User, m map[string]map[DateKey][]ShiftCell, search string) ([]User, map[string]map[DateKey][]ShiftCell) {
	needle := foldText(search)
	docNeedle := strings.ToLower(search)

	outUsers := make([]User, 0)
	outMatrix := make(map[string]map[DateKey][]ShiftCell)
	for _, u := range users {
		if !strings.Contains(foldText(u.FullName), needle) &&
			!strings.Contains(strings.ToLower(u.DocumentNumber), docNeedle) {
			continue
		}
		outUsers = append(outUsers, u)
		// 槽位内容不变，直接共享只读的内层 map
		if slots, ok := m[u.ID]; ok {
			outMatrix[u.ID] = slots
		}
	}
	return outUsers, outMatrix
}

func narrowCells(users []User, m map[string]map[DateKey][]ShiftCell, keep func(ShiftCell) bool) ([]User, map[string]map[DateKey][]ShiftCell) {
	outUsers := make([]User, 0)
	outMatrix := make(map[string]map[DateKey][]ShiftCell)
	for _, u := range users {
		narrowed := make(map[DateKey][]ShiftCell)
		for date, cells := range m[u.ID] {
			var kept []ShiftCell
			for _, c := range cells {
				if keep(c) {
					kept = append(kept, c)
				}
			}
			if len(kept) > 0 {
				narrowed[date] = kept
			}
		}
		if len(narrowed) == 0 {
			continue
		}
		outUsers = append(outUsers, u)
		outMatrix[u.ID] = narrowed
	}
	return outUsers, outMatrix
}

// foldText 去除重音并做 Unicode 大小写折叠，"José" 与 "jose" 视为相同
func foldText(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return cases.Fold().String(b.String())
}
