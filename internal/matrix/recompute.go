package matrix

// Stats 视图内单元格的状态统计
type Stats struct {
	Users     int                 `json:"users"`
	Cells     int                 `json:"cells"`
	Virtual   int                 `json:"virtual"`
	Justified int                 `json:"justified"` // 已批准说明的单元格（展示为 justified）
	ByStatus  map[ShiftStatus]int `json:"by_status"`
}

// ComputeStats 按 Status 统计；ByStatus 总是包含全部枚举键
func ComputeStats(idx *PeriodIndex) Stats {
	stats := Stats{ByStatus: make(map[ShiftStatus]int, len(AllStatuses))}
	for _, s := range AllStatuses {
		stats.ByStatus[s] = 0
	}
	if idx == nil {
		return stats
	}

	stats.Users = len(idx.Users)
	for _, slots := range idx.Matrix {
		for _, cells := range slots {
			for _, c := range cells {
				stats.Cells++
				stats.ByStatus[c.Status]++
				if c.IsVirtual {
					stats.Virtual++
				}
				if c.Justification != nil && c.Justification.Approved {
					stats.Justified++
				}
			}
		}
	}
	return stats
}

// View 渲染层消费的完整视图
type View struct {
	*BucketedView
	Filters Filters `json:"filters"`
	Stats   Stats   `json:"stats"`
}

// Recompute 从缓存的原始索引派生视图：筛选 → 统计 → 分桶
// 纯函数，任一输入变化时由调用方重新调用
func Recompute(raw *PeriodIndex, f Filters, g Granularity) (*View, error) {
	filtered := Filter(raw, f)
	bucketed, err := Bucket(filtered, g)
	if err != nil {
		return nil, err
	}
	return &View{
		BucketedView: bucketed,
		Filters:      f,
		Stats:        ComputeStats(filtered),
	}, nil
}
