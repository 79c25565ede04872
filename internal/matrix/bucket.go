package matrix

import (
	"fmt"
	"strings"
)

// Granularity 时间分桶粒度
type Granularity string

const (
	GranularityDay  Granularity = "day"
	GranularityWeek Granularity = "week"
)

// ParseGranularity 解析粒度，空字符串视为 day
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.TrimSpace(s)); g {
	case "":
		return GranularityDay, nil
	case GranularityDay, GranularityWeek:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// Column 视图中的一列（一个日期或一个周桶）
type Column struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Dates []DateKey `json:"dates"`
}

// BucketedView 分桶后的视图
// Matrix: userID → Column.Key → 单元格列表
type BucketedView struct {
	Granularity Granularity                       `json:"granularity"`
	Users       []User                            `json:"users"`
	Dates       []DateKey                         `json:"dates"`
	Columns     []Column                          `json:"columns"`
	Matrix      map[string]map[string][]ShiftCell `json:"matrix"`
}

// Bucket 按粒度重新分桶
//
// day 为恒等变换：每个日期一列，单元格原样保留。
// week 以 (ISO 周, 月份) 为键分组，跨月的自然周拆为两列；
// 每个用户在某列的单元格为其各成员日期单元格按日期顺序的拼接（不去重），
// 拼接结果为空的 (用户, 列) 不出现。不重新计算任何派生字段。
func Bucket(idx *PeriodIndex, g Granularity) (*BucketedView, error) {
	if idx == nil {
		idx = newPeriodIndex(0)
	}

	var columns []Column
	switch g {
	case GranularityDay:
		columns = dayColumns(idx.Dates)
	case GranularityWeek:
		var err error
		if columns, err = weekColumns(idx.Dates); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
	}

	view := &BucketedView{
		Granularity: g,
		Users:       idx.Users,
		Dates:       idx.Dates,
		Columns:     columns,
		Matrix:      make(map[string]map[string][]ShiftCell, len(idx.Matrix)),
	}

	for _, u := range idx.Users {
		slots := idx.Matrix[u.ID]
		if len(slots) == 0 {
			continue
		}
		row := make(map[string][]ShiftCell)
		for _, col := range columns {
			var cells []ShiftCell
			if len(col.Dates) == 1 {
				// 单日列直接复用槽位切片
				cells = slots[col.Dates[0]]
			} else {
				for _, d := range col.Dates {
					cells = append(cells, slots[d]...)
				}
			}
			if len(cells) > 0 {
				row[col.Key] = cells
			}
		}
		if len(row) > 0 {
			view.Matrix[u.ID] = row
		}
	}

	return view, nil
}

func dayColumns(dates []DateKey) []Column {
	columns := make([]Column, 0, len(dates))
	for _, d := range dates {
		columns = append(columns, Column{
			Key:   string(d),
			Label: string(d),
			Dates: []DateKey{d},
		})
	}
	return columns
}

// weekColumns 输入日期已升序，列按首次出现顺序即时间顺序
func weekColumns(dates []DateKey) ([]Column, error) {
	columns := make([]Column, 0)
	position := make(map[string]int)

	for _, d := range dates {
		t, err := d.Time()
		if err != nil {
			return nil, err
		}
		year, week := t.ISOWeek()
		month := t.Format("2006-01")
		key := fmt.Sprintf("%04d-W%02d@%s", year, week, month)

		i, ok := position[key]
		if !ok {
			i = len(columns)
			position[key] = i
			columns = append(columns, Column{
				Key:   key,
				Label: fmt.Sprintf("W%02d %s", week, month),
			})
		}
		columns[i].Dates = append(columns[i].Dates, d)
	}
	return columns, nil
}
