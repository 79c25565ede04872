package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"attendance-console/internal/matrix"
)

// PeriodCache 周期索引缓存
//
// 只缓存未筛选的原始索引；筛选、分桶视图总在读取时派生。
// 同一键只由成功的构建写入（首次加载或显式刷新），实现须支持并发访问。
type PeriodCache interface {
	Get(ctx context.Context, periodKey string) (*matrix.PeriodIndex, bool)
	Set(ctx context.Context, periodKey string, idx *matrix.PeriodIndex)
	Has(ctx context.Context, periodKey string) bool
}

// DefaultSize 默认保留最近访问的周期数
const DefaultSize = 12

// LRU 进程内有界缓存，保留最近访问的 N 个周期
type LRU struct {
	entries *lru.Cache[string, *matrix.PeriodIndex]
}

// NewLRU 创建容量为 size 的 LRU 缓存
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, *matrix.PeriodIndex](size)
	if err != nil {
		return nil, fmt.Errorf("创建周期缓存失败: %w", err)
	}
	return &LRU{entries: entries}, nil
}

// Get 命中时刷新该键的最近访问时间
func (c *LRU) Get(_ context.Context, periodKey string) (*matrix.PeriodIndex, bool) {
	return c.entries.Get(periodKey)
}

// Set 写入或覆盖；超出容量时淘汰最久未访问的周期
func (c *LRU) Set(_ context.Context, periodKey string, idx *matrix.PeriodIndex) {
	if idx == nil {
		return
	}
	c.entries.Add(periodKey, idx)
}

// Has 不影响访问顺序
func (c *LRU) Has(_ context.Context, periodKey string) bool {
	return c.entries.Contains(periodKey)
}

// Keys 当前缓存的周期键（由旧到新）
func (c *LRU) Keys() []string {
	return c.entries.Keys()
}

// Len 当前缓存的周期数
func (c *LRU) Len() int {
	return c.entries.Len()
}
