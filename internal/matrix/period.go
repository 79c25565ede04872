package matrix

import (
	"fmt"
	"strings"
	"time"
)

const periodLayout = "2006-01"

// Period 统计周期（自然月），End 不含
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// ParsePeriod 解析 YYYY-MM 周期键
func ParsePeriod(key string, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	key = strings.TrimSpace(key)
	start, err := time.ParseInLocation(periodLayout, key, loc)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	return Period{
		Key:   start.Format(periodLayout),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}, nil
}

// PeriodKeyOf t 所在自然月的周期键
func PeriodKeyOf(t time.Time) string {
	return t.Format(periodLayout)
}

// Days 周期内全部日历日
func (p Period) Days() []DateKey {
	var days []DateKey
	for d := p.Start; d.Before(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, NewDateKey(d))
	}
	return days
}

// Contains 日期是否落在周期内
func (p Period) Contains(d DateKey) bool {
	return string(d) >= p.Start.Format(dateLayout) && string(d) < p.End.Format(dateLayout)
}
