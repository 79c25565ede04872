package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"attendance-console/internal/cache"
	"attendance-console/internal/matrix"
)

// ── 测试辅助 ──

func newTestLoader(t *testing.T, src RecordSource) *PeriodLoader {
	t.Helper()
	lru, err := cache.NewLRU(4)
	if err != nil {
		t.Fatalf("NewLRU 失败: %v", err)
	}
	return NewPeriodLoader(lru, src, time.UTC, time.Second, zap.NewNop())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// ── Get 测试 ──

func TestPeriodLoader_Get_CachesAfterFirstFetch(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	loader := newTestLoader(t, src)
	ctx := context.Background()

	first, err := loader.Get(ctx, "2025-12")
	if err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	second, err := loader.Get(ctx, " 2025-12 ")
	if err != nil {
		t.Fatalf("第二次 Get 应成功: %v", err)
	}
	if first != second {
		t.Error("缓存命中应返回同一索引")
	}
	if n := src.callCount("2025-12"); n != 1 {
		t.Errorf("期望只拉取 1 次，实际 %d", n)
	}
	if st := loader.State(ctx, "2025-12"); st.State != LoadReady {
		t.Errorf("期望 ready，实际 %s", st.State)
	}
}

func TestPeriodLoader_Get_RecordsLoadTrace(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	loader := newTestLoader(t, src)

	missCtx, miss := WithLoadTrace(context.Background())
	if _, err := loader.Get(missCtx, "2025-12"); err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if miss.Period != "2025-12" || miss.CacheHit {
		t.Errorf("首次请求应记录未命中，实际 %+v", miss)
	}

	hitCtx, hit := WithLoadTrace(context.Background())
	if _, err := loader.Get(hitCtx, "2025-12"); err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if hit.Period != "2025-12" || !hit.CacheHit {
		t.Errorf("第二次请求应记录命中，实际 %+v", hit)
	}

	if LoadTraceFrom(context.Background()) != nil {
		t.Error("未挂载轨迹时应返回 nil")
	}
}

func TestPeriodLoader_Get_ConcurrentMissesShareOneFetch(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	gate := src.gate("2025-12")
	loader := newTestLoader(t, src)

	var wg sync.WaitGroup
	results := make([]*matrix.PeriodIndex, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := loader.Get(context.Background(), "2025-12")
			if err != nil {
				t.Errorf("Get 应成功: %v", err)
			}
			results[i] = idx
		}(i)
	}

	waitFor(t, func() bool { return src.callCount("2025-12") == 1 }, "拉取未开始")
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := src.callCount("2025-12"); n != 1 {
		t.Errorf("并发未命中应只拉取 1 次，实际 %d", n)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("并发调用方应得到同一索引")
		}
	}
}

func TestPeriodLoader_Get_FailureNotCached(t *testing.T) {
	src := newStubSource()
	src.fail("2025-12", errUpstream)
	loader := newTestLoader(t, src)
	ctx := context.Background()

	_, err := loader.Get(ctx, "2025-12")
	if !errors.Is(err, ErrPeriodFetchFail) || !errors.Is(err, errUpstream) {
		t.Fatalf("期望 ErrPeriodFetchFail 且包装上游错误，实际 %v", err)
	}
	if loader.Cached(ctx, "2025-12") {
		t.Fatal("失败的拉取不应写缓存")
	}
	st := loader.State(ctx, "2025-12")
	if st.State != LoadFailed || st.Err == nil {
		t.Errorf("期望 failed 状态与错误，实际 %s %v", st.State, st.Err)
	}

	src.fail("2025-12", nil)
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	idx, err := loader.Get(ctx, "2025-12")
	if err != nil {
		t.Fatalf("重试应成功: %v", err)
	}
	if len(idx.Users) != 1 {
		t.Errorf("重试结果不符: %+v", idx.Users)
	}
	if n := src.callCount("2025-12"); n != 2 {
		t.Errorf("重试应重新拉取，实际拉取 %d 次", n)
	}
}

func TestPeriodLoader_Get_InvalidPeriod(t *testing.T) {
	loader := newTestLoader(t, newStubSource())
	for _, key := range []string{"", "2025-13", "12-2025", "2025/12"} {
		if _, err := loader.Get(context.Background(), key); !errors.Is(err, ErrPeriodInvalid) {
			t.Errorf("%q: 期望 ErrPeriodInvalid，实际 %v", key, err)
		}
	}
}

func TestPeriodLoader_Get_DropsMalformedRecords(t *testing.T) {
	src := newStubSource()
	bad := rec("r2", "", "Nadie", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime)
	src.set("2025-12",
		rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime),
		bad,
	)
	loader := newTestLoader(t, src)

	idx, err := loader.Get(context.Background(), "2025-12")
	if err != nil {
		t.Fatalf("格式错误的记录不应导致失败: %v", err)
	}
	if idx.CellCount() != 1 {
		t.Errorf("期望 1 个单元格，实际 %d", idx.CellCount())
	}
}

func TestPeriodLoader_CallerCancelDoesNotAbortSharedFetch(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	gate := src.gate("2025-12")
	loader := newTestLoader(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := loader.Get(ctx, "2025-12")
		errc <- err
	}()
	waitFor(t, func() bool { return src.callCount("2025-12") == 1 }, "拉取未开始")
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
	close(gate)
	waitFor(t, func() bool { return loader.Cached(context.Background(), "2025-12") }, "取消后拉取仍应完成并写缓存")
}

// ── Refresh / Load 测试 ──

func TestPeriodLoader_RefreshReplacesCachedIndex(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	loader := newTestLoader(t, src)
	ctx := context.Background()

	if _, err := loader.Get(ctx, "2025-12"); err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	src.set("2025-12",
		rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime),
		rec("r2", "u2", "Luis", "2025-12-02", "S1", "Matutino", matrix.StatusLate),
	)
	if _, err := loader.Refresh(ctx, "2025-12"); err != nil {
		t.Fatalf("Refresh 应成功: %v", err)
	}
	idx, _ := loader.Get(ctx, "2025-12")
	if len(idx.Users) != 2 {
		t.Errorf("刷新后应读到新数据，实际 %d 个用户", len(idx.Users))
	}
}

func TestPeriodLoader_RefreshFailureKeepsCache(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	loader := newTestLoader(t, src)
	ctx := context.Background()

	before, _ := loader.Get(ctx, "2025-12")
	src.fail("2025-12", errUpstream)
	if _, err := loader.Refresh(ctx, "2025-12"); err == nil {
		t.Fatal("刷新失败应返回错误")
	}
	after, err := loader.Get(ctx, "2025-12")
	if err != nil || after != before {
		t.Error("刷新失败时应保留原缓存")
	}

	st := loader.State(ctx, "2025-12")
	if st.State != LoadReady || st.Err != nil || !errors.Is(st.RefreshErr, errUpstream) {
		t.Errorf("刷新失败但仍有缓存时应为 ready 并记录刷新错误，实际 %+v", st)
	}

	src.fail("2025-12", nil)
	if _, err := loader.Refresh(ctx, "2025-12"); err != nil {
		t.Fatalf("再次刷新应成功: %v", err)
	}
	if st := loader.State(ctx, "2025-12"); st.RefreshErr != nil {
		t.Errorf("刷新成功后应清除刷新错误，实际 %v", st.RefreshErr)
	}
}

func TestPeriodLoader_SlowMissDoesNotOverwriteRefresh(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	gate := src.gate("2025-12")
	loader := newTestLoader(t, src)
	ctx := context.Background()

	missDone := make(chan *matrix.PeriodIndex, 1)
	go func() {
		idx, err := loader.Get(ctx, "2025-12")
		if err != nil {
			t.Errorf("未命中拉取应成功: %v", err)
		}
		missDone <- idx
	}()
	waitFor(t, func() bool { return src.callCount("2025-12") == 1 }, "未命中拉取未开始")

	// 未命中拉取读到的是旧数据；刷新在其之后开始并先完成
	src.set("2025-12",
		rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime),
		rec("r2", "u2", "Luis", "2025-12-02", "S1", "Matutino", matrix.StatusLate),
	)
	refreshed, err := loader.Refresh(ctx, "2025-12")
	if err != nil {
		t.Fatalf("Refresh 应成功: %v", err)
	}
	if len(refreshed.Users) != 2 {
		t.Fatalf("刷新结果应有 2 个用户，实际 %d", len(refreshed.Users))
	}

	close(gate)
	select {
	case idx := <-missDone:
		if idx == nil || len(idx.Users) != 2 {
			t.Errorf("较早开始的拉取应返回较新的缓存索引，实际 %+v", idx)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("未命中拉取未返回")
	}

	idx, err := loader.Get(ctx, "2025-12")
	if err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if len(idx.Users) != 2 {
		t.Errorf("刷新结果不应被较早开始的拉取覆盖，实际 %d 个用户", len(idx.Users))
	}
	if n := src.callCount("2025-12"); n != 2 {
		t.Errorf("期望拉取 2 次，实际 %d", n)
	}
}

func TestPeriodLoader_Load(t *testing.T) {
	src := newStubSource()
	src.set("2025-12", rec("r1", "u1", "Ana", "2025-12-01", "S1", "Matutino", matrix.StatusOnTime))
	gate := src.gate("2025-12")
	loader := newTestLoader(t, src)
	ctx := context.Background()

	done := make(chan *matrix.PeriodIndex, 1)
	loader.Load(ctx, "2025-12", func(idx *matrix.PeriodIndex, err error) {
		if err != nil {
			t.Errorf("Load 应成功: %v", err)
		}
		done <- idx
	})
	if st := loader.State(ctx, "2025-12"); st.State != LoadLoading {
		t.Errorf("拉取中应为 loading，实际 %s", st.State)
	}
	close(gate)
	select {
	case idx := <-done:
		if idx == nil || len(idx.Users) != 1 {
			t.Errorf("Load 结果不符: %+v", idx)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Load 未回调")
	}

	// 命中缓存时同步回调
	var hit bool
	loader.Load(ctx, "2025-12", func(idx *matrix.PeriodIndex, err error) { hit = idx != nil && err == nil })
	if !hit {
		t.Error("缓存命中时应同步回调")
	}

	var gotErr error
	loader.Load(ctx, "bad", func(_ *matrix.PeriodIndex, err error) { gotErr = err })
	if !errors.Is(gotErr, ErrPeriodInvalid) {
		t.Errorf("非法周期应同步返回 ErrPeriodInvalid，实际 %v", gotErr)
	}
}

func TestPeriodLoader_StateIdle(t *testing.T) {
	loader := newTestLoader(t, newStubSource())
	if st := loader.State(context.Background(), "2025-12"); st.State != LoadIdle || st.Err != nil {
		t.Errorf("未请求过的周期应为 idle，实际 %s %v", st.State, st.Err)
	}
}

func TestPeriodLoader_StateFollowsEviction(t *testing.T) {
	src := newStubSource()
	keys := []string{"2025-01", "2025-02", "2025-03"}
	for _, k := range keys {
		src.set(k, rec("r-"+k, "u1", "Ana", k+"-05", "S1", "Matutino", matrix.StatusOnTime))
	}
	lru, err := cache.NewLRU(2)
	if err != nil {
		t.Fatalf("NewLRU 失败: %v", err)
	}
	loader := NewPeriodLoader(lru, src, time.UTC, time.Second, zap.NewNop())
	ctx := context.Background()

	for _, k := range keys {
		if _, err := loader.Get(ctx, k); err != nil {
			t.Fatalf("Get %s 应成功: %v", k, err)
		}
	}

	if loader.Cached(ctx, "2025-01") {
		t.Fatal("2025-01 应已被淘汰")
	}
	if st := loader.State(ctx, "2025-01"); st.State != LoadIdle {
		t.Errorf("被淘汰的周期应回到 idle，实际 %s", st.State)
	}
	if st := loader.State(ctx, "2025-03"); st.State != LoadReady {
		t.Errorf("缓存中的周期应为 ready，实际 %s", st.State)
	}

	if _, err := loader.Get(ctx, "2025-01"); err != nil {
		t.Fatalf("重新加载应成功: %v", err)
	}
	if n := src.callCount("2025-01"); n != 2 {
		t.Errorf("被淘汰的周期应重新拉取，实际拉取 %d 次", n)
	}
}

func TestPeriodLoader_TrackedPeriodsBounded(t *testing.T) {
	src := newStubSource()
	loader := newTestLoader(t, src)
	ctx := context.Background()

	var last string
	for i := 0; i < maxTrackedPeriods+20; i++ {
		last = time.Date(2000, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
		src.fail(last, errUpstream)
		if _, err := loader.Get(ctx, last); err == nil {
			t.Fatalf("%s: 期望拉取失败", last)
		}
	}

	loader.mu.Lock()
	n := len(loader.entries)
	loader.mu.Unlock()
	if n > maxTrackedPeriods {
		t.Errorf("加载记录应不超过 %d，实际 %d", maxTrackedPeriods, n)
	}
	if st := loader.State(ctx, last); st.State != LoadFailed {
		t.Errorf("最近失败的周期应保留 failed，实际 %s", st.State)
	}
}
