package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"attendance-console/internal/cache"
	"attendance-console/internal/matrix"
)

// ── 周期加载错误 ──

var (
	ErrPeriodInvalid   = errors.New("统计周期格式应为 YYYY-MM")
	ErrPeriodFetchFail = errors.New("考勤数据加载失败")
)

// LoadState 周期加载状态
type LoadState string

const (
	LoadIdle    LoadState = "idle"
	LoadLoading LoadState = "loading"
	LoadReady   LoadState = "ready"
	LoadFailed  LoadState = "failed"
)

// maxTrackedPeriods 加载记录表的上限，超出时淘汰最久未更新且无进行中拉取的周期
const maxTrackedPeriods = 64

// LoadStatus 周期加载状态快照
type LoadStatus struct {
	State      LoadState
	Err        error // 最近一次加载失败（周期未缓存时）
	RefreshErr error // 最近一次刷新失败，旧索引仍在使用
}

// periodEntry 单个周期的加载记录
type periodEntry struct {
	state      LoadState
	err        error
	refreshErr error
	inflight   int    // 进行中的拉取数（未命中拉取与刷新可并存）
	written    uint64 // 最近一次写入缓存的拉取代次
	updated    time.Time
}

// PeriodLoader 周期索引加载器
//
// 缓存命中直接返回；未命中时拉取原始记录并构建索引，同一周期的未命中共享一次拉取。
// 拉取失败不写缓存，下次请求重新拉取。刷新会覆盖已缓存的索引。
// 每次拉取开始时领取递增代次，只有代次不低于已写入代次的结果才会写缓存，
// 先开始的慢拉取不会覆盖后开始的刷新结果。
type PeriodLoader struct {
	cache   cache.PeriodCache
	source  RecordSource
	loc     *time.Location
	timeout time.Duration
	logger  *zap.Logger

	group singleflight.Group

	writeMu sync.Mutex // 串行化代次检查与缓存写入

	mu      sync.Mutex
	gen     uint64
	entries map[string]*periodEntry
}

// NewPeriodLoader 创建 PeriodLoader
func NewPeriodLoader(c cache.PeriodCache, source RecordSource, loc *time.Location, timeout time.Duration, logger *zap.Logger) *PeriodLoader {
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodLoader{
		cache:   c,
		source:  source,
		loc:     loc,
		timeout: timeout,
		logger:  logger,
		entries: make(map[string]*periodEntry),
	}
}

// Parse 解析并规范化周期键
func (l *PeriodLoader) Parse(key string) (matrix.Period, error) {
	p, err := matrix.ParsePeriod(key, l.loc)
	if err != nil {
		return matrix.Period{}, fmt.Errorf("%w: %v", ErrPeriodInvalid, err)
	}
	return p, nil
}

// Get 阻塞获取周期索引
func (l *PeriodLoader) Get(ctx context.Context, key string) (*matrix.PeriodIndex, error) {
	period, err := l.Parse(key)
	if err != nil {
		return nil, err
	}
	if idx, ok := l.cache.Get(ctx, period.Key); ok {
		traceLoad(ctx, period.Key, true)
		return idx, nil
	}
	traceLoad(ctx, period.Key, false)
	l.logger.Debug("周期缓存未命中", zap.String("period", period.Key))
	return l.fetch(ctx, period, false)
}

// Refresh 忽略缓存重新拉取，成功后覆盖缓存
func (l *PeriodLoader) Refresh(ctx context.Context, key string) (*matrix.PeriodIndex, error) {
	period, err := l.Parse(key)
	if err != nil {
		return nil, err
	}
	return l.fetch(ctx, period, true)
}

// Load 非阻塞加载：缓存命中时同步回调，否则在后台拉取完成后回调
func (l *PeriodLoader) Load(ctx context.Context, key string, done func(*matrix.PeriodIndex, error)) {
	period, err := l.Parse(key)
	if err != nil {
		done(nil, err)
		return
	}
	if idx, ok := l.cache.Get(ctx, period.Key); ok {
		traceLoad(ctx, period.Key, true)
		done(idx, nil)
		return
	}
	traceLoad(ctx, period.Key, false)
	l.markLoading(period.Key)
	go func() {
		idx, err := l.fetch(ctx, period, false)
		l.settleWaiter(period.Key, err)
		done(idx, err)
	}()
}

// State 返回周期加载状态
//
// 是否就绪总以缓存为准：被淘汰的周期回到 idle。
func (l *PeriodLoader) State(ctx context.Context, key string) LoadStatus {
	l.mu.Lock()
	var snap periodEntry
	e, tracked := l.entries[key]
	if tracked {
		snap = *e
	}
	l.mu.Unlock()

	if tracked && snap.state == LoadLoading {
		return LoadStatus{State: LoadLoading, RefreshErr: snap.refreshErr}
	}
	if l.cache.Has(ctx, key) {
		return LoadStatus{State: LoadReady, RefreshErr: snap.refreshErr}
	}
	if tracked && snap.state == LoadFailed {
		return LoadStatus{State: LoadFailed, Err: snap.err}
	}
	if tracked {
		l.forget(key)
	}
	return LoadStatus{State: LoadIdle}
}

// Cached 周期是否已缓存
func (l *PeriodLoader) Cached(ctx context.Context, key string) bool {
	return l.cache.Has(ctx, key)
}

func (l *PeriodLoader) fetch(ctx context.Context, period matrix.Period, refresh bool) (*matrix.PeriodIndex, error) {
	flightKey := period.Key
	if refresh {
		// 刷新不并入已在进行的未命中拉取，那次拉取可能读到刷新前的数据
		flightKey = "refresh:" + period.Key
	}
	ch := l.group.DoChan(flightKey, func() (interface{}, error) {
		return l.run(ctx, period, refresh)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*matrix.PeriodIndex), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *PeriodLoader) run(ctx context.Context, period matrix.Period, refresh bool) (*matrix.PeriodIndex, error) {
	gen := l.begin(period.Key, refresh)

	// 共享拉取不随单个调用方取消
	fetchCtx := context.WithoutCancel(ctx)
	if l.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, l.timeout)
		defer cancel()
	}

	started := time.Now()
	records, err := l.source.FetchPeriod(fetchCtx, period)
	if err != nil {
		l.logger.Error("周期数据拉取失败",
			zap.String("period", period.Key),
			zap.Bool("refresh", refresh),
			zap.Error(err),
		)
		err = fmt.Errorf("%w: %w", ErrPeriodFetchFail, err)
		l.fail(context.WithoutCancel(ctx), period.Key, refresh, err)
		return nil, err
	}

	idx, stats := matrix.Build(records)
	if stats.Dropped > 0 {
		l.logger.Warn("丢弃缺少身份字段的考勤记录",
			zap.String("period", period.Key),
			zap.Int("dropped", stats.Dropped),
		)
	}

	current, stored := l.commit(context.WithoutCancel(ctx), period.Key, gen, idx)
	if !stored {
		l.logger.Info("较新的拉取已写入缓存，丢弃本次结果",
			zap.String("period", period.Key),
			zap.Uint64("generation", gen),
		)
		return current, nil
	}

	l.logger.Info("周期索引已构建",
		zap.String("period", period.Key),
		zap.Bool("refresh", refresh),
		zap.Uint64("generation", gen),
		zap.Int("records", stats.Accepted),
		zap.Int("users", len(idx.Users)),
		zap.Int("dates", len(idx.Dates)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return idx, nil
}

// begin 登记一次拉取并领取代次
func (l *PeriodLoader) begin(key string, refresh bool) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	e := l.entryLocked(key)
	e.inflight++
	// 刷新期间旧索引仍可用，保持 ready
	if !refresh || e.state != LoadReady {
		e.state = LoadLoading
	}
	l.pruneLocked()
	return l.gen
}

// commit 代次不低于已写入代次时写缓存；否则返回缓存中较新的索引
func (l *PeriodLoader) commit(ctx context.Context, key string, gen uint64, idx *matrix.PeriodIndex) (*matrix.PeriodIndex, bool) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	e := l.entryLocked(key)
	stale := gen < e.written
	if !stale {
		e.written = gen
	}
	l.mu.Unlock()

	current := idx
	if stale {
		if cached, ok := l.cache.Get(ctx, key); ok {
			current = cached
		}
	} else {
		l.cache.Set(ctx, key, idx)
	}

	l.mu.Lock()
	e.inflight--
	e.state = LoadReady
	e.err = nil
	if !stale {
		e.refreshErr = nil
	}
	e.updated = time.Now()
	l.mu.Unlock()
	return current, !stale
}

// fail 记录拉取失败；周期仍有缓存时保持 ready，仅记录刷新错误
func (l *PeriodLoader) fail(ctx context.Context, key string, refresh bool, err error) {
	cached := l.cache.Has(ctx, key)

	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryLocked(key)
	e.inflight--
	e.updated = time.Now()
	switch {
	case cached:
		e.state = LoadReady
		if refresh {
			e.refreshErr = err
		}
	case e.inflight > 0:
		e.err = err
	default:
		e.state = LoadFailed
		e.err = err
	}
}

// markLoading 异步加载开始前标记 loading，使调用方立即可见
func (l *PeriodLoader) markLoading(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entryLocked(key)
	e.state = LoadLoading
	e.updated = time.Now()
	l.pruneLocked()
}

// settleWaiter 异步加载结束后，若没有拉取再更新该周期，则按结果收敛状态
func (l *PeriodLoader) settleWaiter(key string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok || e.inflight > 0 || e.state != LoadLoading {
		return
	}
	if err != nil {
		e.state, e.err = LoadFailed, err
	} else {
		e.state, e.err = LoadReady, nil
	}
	e.updated = time.Now()
}

func (l *PeriodLoader) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok && e.inflight == 0 && e.state != LoadLoading {
		delete(l.entries, key)
	}
}

func (l *PeriodLoader) entryLocked(key string) *periodEntry {
	e, ok := l.entries[key]
	if !ok {
		e = &periodEntry{state: LoadIdle, updated: time.Now()}
		l.entries[key] = e
	}
	return e
}

// pruneLocked 记录数超过上限时淘汰最久未更新的空闲记录
func (l *PeriodLoader) pruneLocked() {
	if len(l.entries) <= maxTrackedPeriods {
		return
	}
	idle := make([]string, 0, len(l.entries))
	for k, e := range l.entries {
		if e.inflight == 0 && e.state != LoadLoading {
			idle = append(idle, k)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return l.entries[idle[i]].updated.Before(l.entries[idle[j]].updated)
	})
	for _, k := range idle {
		if len(l.entries) <= maxTrackedPeriods {
			return
		}
		delete(l.entries, k)
	}
}
