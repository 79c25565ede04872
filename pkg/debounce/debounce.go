package debounce

import (
	"sync"
	"time"
)

// Handle 一次已调度的调用
type Handle struct {
	mu       sync.Mutex
	timer    *time.Timer
	canceled bool
	fired    bool
}

// Schedule 在 delay 后执行 fn，返回可取消的句柄
func Schedule(fn func(), delay time.Duration) *Handle {
	h := &Handle{}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		if h.canceled {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		fn()
	})
	return h
}

// Cancel 取消尚未触发的调用；返回 true 表示本次取消生效
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled || h.fired {
		return false
	}
	h.canceled = true
	h.timer.Stop()
	return true
}

// Fired 是否已经执行
func (h *Handle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Debouncer 合并窗口内的多次调用，只有最后一次会执行
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending *Handle
}

// New 创建窗口为 delay 的 Debouncer
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Call 取消上一次尚未触发的调用并重新调度 fn
func (d *Debouncer) Call(fn func()) *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending.Cancel()
	d.pending = Schedule(fn, d.delay)
	return d.pending
}

// Cancel 取消挂起的调用
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Cancel()
}

// Keyed 按键独立防抖，不同键互不取消
type Keyed struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*Handle
}

// NewKeyed 创建按键防抖器
func NewKeyed(delay time.Duration) *Keyed {
	return &Keyed{delay: delay, pending: make(map[string]*Handle)}
}

// Call 取消同键挂起调用并重新调度；执行后自动清理该键
func (k *Keyed) Call(key string, fn func()) *Handle {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.pending[key].Cancel()

	var h *Handle
	h = Schedule(func() {
		k.mu.Lock()
		if k.pending[key] == h {
			delete(k.pending, key)
		}
		k.mu.Unlock()
		fn()
	}, k.delay)
	k.pending[key] = h
	return h
}

// Pending 该键是否有挂起调用
func (k *Keyed) Pending(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.pending[key]
	return ok
}

// Stop 取消全部挂起调用
func (k *Keyed) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, h := range k.pending {
		h.Cancel()
		delete(k.pending, key)
	}
}
