package service

import "context"

// LoadTrace 单次请求中周期索引的取用情况，由请求日志读取
type LoadTrace struct {
	Period   string
	CacheHit bool
}

type loadTraceKey struct{}

// WithLoadTrace 在 ctx 上挂载一份空的加载轨迹
func WithLoadTrace(ctx context.Context) (context.Context, *LoadTrace) {
	tr := &LoadTrace{}
	return context.WithValue(ctx, loadTraceKey{}, tr), tr
}

// LoadTraceFrom 取出 ctx 上的加载轨迹，未挂载时返回 nil
func LoadTraceFrom(ctx context.Context) *LoadTrace {
	tr, _ := ctx.Value(loadTraceKey{}).(*LoadTrace)
	return tr
}

func traceLoad(ctx context.Context, period string, hit bool) {
	if tr := LoadTraceFrom(ctx); tr != nil {
		tr.Period = period
		tr.CacheHit = hit
	}
}
