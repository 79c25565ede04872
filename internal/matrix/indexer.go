package matrix

import "sort"

// BuildStats 构建统计，Dropped 供调用方记录日志
type BuildStats struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// Build 单次遍历构建周期索引
//
//   - 用户按 ID 去重，展示字段以首次出现为准
//   - 日期去重后升序排列，不补齐无记录的日期
//   - 单元格按记录到达顺序追加到 Matrix[user][date]
//   - 格式错误的记录被跳过，不中断构建
func Build(records []Record) (*PeriodIndex, BuildStats) {
	idx := newPeriodIndex(len(records) / 8)
	var stats BuildStats

	seenDates := make(map[DateKey]struct{})

	for _, r := range records {
		user, date, cell, err := Normalize(r)
		if err != nil {
			stats.Dropped++
			continue
		}
		stats.Accepted++

		slots, ok := idx.Matrix[user.ID]
		if !ok {
			slots = make(map[DateKey][]ShiftCell)
			idx.Matrix[user.ID] = slots
			idx.Users = append(idx.Users, user)
		}
		slots[date] = append(slots[date], cell)

		if _, ok := seenDates[date]; !ok {
			seenDates[date] = struct{}{}
			idx.Dates = append(idx.Dates, date)
		}
	}

	sort.Slice(idx.Dates, func(i, j int) bool { return idx.Dates[i] < idx.Dates[j] })

	// 行顺序与输入顺序无关：按姓名、ID 排序
	sort.SliceStable(idx.Users, func(i, j int) bool {
		if idx.Users[i].FullName != idx.Users[j].FullName {
			return idx.Users[i].FullName < idx.Users[j].FullName
		}
		return idx.Users[i].ID < idx.Users[j].ID
	})

	return idx, stats
}
