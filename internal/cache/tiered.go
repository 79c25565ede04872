package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendance-console/internal/matrix"
)

const (
	keyPrefix     = "attendance:matrix:period:"
	versionPrefix = "attendance:matrix:version:"
)

// RemoteStore 共享缓存后端（pkg/redis.Client 实现）
type RemoteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// envelope Redis 中保存的索引及其版本
type envelope struct {
	Version string              `json:"version"`
	Index   *matrix.PeriodIndex `json:"index"`
}

// Tiered 两级缓存：进程内 LRU + Redis
//
// Redis 中的索引以 JSON 存储，供多个实例共享；每次写入生成新版本号，单独存一个小键。
// 本地命中时先比对共享版本，其他实例刷新过的周期会重新从 Redis 读取。
// Redis 出错时降级为仅本地缓存，错误只记录日志，不向调用方传播。
type Tiered struct {
	local  *LRU
	remote RemoteStore
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	versions map[string]string // 本地副本对应的共享版本
}

// NewTiered 创建两级缓存；ttl<=0 表示 Redis 中不过期
func NewTiered(local *LRU, remote RemoteStore, ttl time.Duration, logger *zap.Logger) *Tiered {
	return &Tiered{
		local:    local,
		remote:   remote,
		ttl:      ttl,
		logger:   logger,
		versions: make(map[string]string),
	}
}

func (c *Tiered) Get(ctx context.Context, periodKey string) (*matrix.PeriodIndex, bool) {
	if idx, ok := c.local.Get(ctx, periodKey); ok {
		if c.localCurrent(ctx, periodKey) {
			return idx, true
		}
		c.logger.Debug("共享周期缓存已更新，重新读取", zap.String("period", periodKey))
		if fresh, ok := c.loadRemote(ctx, periodKey); ok {
			return fresh, true
		}
		return idx, true
	}
	return c.loadRemote(ctx, periodKey)
}

func (c *Tiered) Set(ctx context.Context, periodKey string, idx *matrix.PeriodIndex) {
	if idx == nil {
		return
	}
	c.local.Set(ctx, periodKey, idx)
	version := uuid.NewString()
	c.remember(periodKey, version)

	raw, err := json.Marshal(envelope{Version: version, Index: idx})
	if err != nil {
		c.logger.Error("序列化周期索引失败", zap.String("period", periodKey), zap.Error(err))
		return
	}
	// 先写内容再写版本：读到新版本号时内容一定已更新
	if err := c.remote.SetBytes(ctx, keyPrefix+periodKey, raw, c.ttl); err != nil {
		c.logger.Warn("写入共享周期缓存失败", zap.String("period", periodKey), zap.Error(err))
		return
	}
	if err := c.remote.SetBytes(ctx, versionPrefix+periodKey, []byte(version), c.ttl); err != nil {
		c.logger.Warn("写入共享周期缓存版本失败", zap.String("period", periodKey), zap.Error(err))
	}
}

func (c *Tiered) Has(ctx context.Context, periodKey string) bool {
	if c.local.Has(ctx, periodKey) {
		return true
	}
	ok, err := c.remote.Exists(ctx, keyPrefix+periodKey)
	if err != nil {
		c.logger.Warn("查询共享周期缓存失败", zap.String("period", periodKey), zap.Error(err))
		return false
	}
	return ok
}

// localCurrent 本地副本是否仍是共享层的最新版本
// 共享层不可用或无版本记录时沿用本地副本
func (c *Tiered) localCurrent(ctx context.Context, periodKey string) bool {
	remoteVersion, found, err := c.remote.GetBytes(ctx, versionPrefix+periodKey)
	if err != nil {
		c.logger.Warn("读取共享周期缓存版本失败", zap.String("period", periodKey), zap.Error(err))
		return true
	}
	if !found {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[periodKey] == string(remoteVersion)
}

func (c *Tiered) loadRemote(ctx context.Context, periodKey string) (*matrix.PeriodIndex, bool) {
	raw, found, err := c.remote.GetBytes(ctx, keyPrefix+periodKey)
	if err != nil {
		c.logger.Warn("读取共享周期缓存失败", zap.String("period", periodKey), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Index == nil {
		c.logger.Warn("共享周期缓存内容无法解析", zap.String("period", periodKey), zap.Error(err))
		return nil, false
	}
	normalizeDecoded(env.Index)

	c.local.Set(ctx, periodKey, env.Index)
	c.remember(periodKey, env.Version)
	return env.Index, true
}

// remember 记录本地副本版本，并清理已被本地淘汰的周期
func (c *Tiered) remember(periodKey, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[periodKey] = version
	if len(c.versions) <= c.local.Len() {
		return
	}
	live := make(map[string]struct{}, c.local.Len())
	for _, k := range c.local.Keys() {
		live[k] = struct{}{}
	}
	for k := range c.versions {
		if _, ok := live[k]; !ok {
			delete(c.versions, k)
		}
	}
}

// normalizeDecoded JSON 中的 null 集合还原为空集合，与 matrix.Build 输出保持一致
func normalizeDecoded(idx *matrix.PeriodIndex) {
	if idx.Users == nil {
		idx.Users = []matrix.User{}
	}
	if idx.Dates == nil {
		idx.Dates = []matrix.DateKey{}
	}
	if idx.Matrix == nil {
		idx.Matrix = map[string]map[matrix.DateKey][]matrix.ShiftCell{}
	}
}
