package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry 活动连接的只读投影
// 只有 Supervisor 的调谐循环写入；其他组件（函数执行、通知）只读
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry 创建连接注册表
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Put 登记某个 Bot 的活动连接
func (r *Registry) Put(botID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[botID] = conn
}

// Remove 注销某个 Bot 的连接
func (r *Registry) Remove(botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, botID)
}

// Get 获取某个 Bot 的活动连接，不在线返回 nil
func (r *Registry) Get(botID string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[botID]
}

// NotifyOwner 通过活动连接给 Bot 运营者发通知
func (r *Registry) NotifyOwner(ctx context.Context, botID, text string) error {
	conn := r.Get(botID)
	if conn == nil {
		return fmt.Errorf("bot %s has no active connection", botID)
	}
	return conn.NotifyOwner(ctx, text)
}

// Snapshot 返回在线 Bot ID 的快照（排序后）
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
