// Package reconciler 维护由实时事件派生的系统运行/连接状态.
//
// 状态按 systemId 聚合: 任一设备最后一次上报运行则系统视为运行中,
// 上报停止时移除. 实例不是并发安全的, 只能在编排循环中使用.
package reconciler

import (
	"github.com/wisersense-io/mate-service/model"
)

type Reconciler struct {
	alive     map[string]struct{}
	connected map[string]struct{}
}

func New() *Reconciler {
	return &Reconciler{
		alive:     make(map[string]struct{}),
		connected: make(map[string]struct{}),
	}
}

// Apply 应用一条推送事件, 返回派生状态是否发生变化
func (r *Reconciler) Apply(e model.InboundEvent) bool {
	if e.SystemID == "" {
		return false
	}
	switch e.Kind {
	case model.RunningStateChanged:
		return set(r.alive, e.SystemID, e.Value)
	case model.ConnectionStateChanged:
		return set(r.connected, e.SystemID, e.Value)
	default:
		return false
	}
}

// Reset 通道断开时清空全部状态
func (r *Reconciler) Reset() {
	r.alive = make(map[string]struct{})
	r.connected = make(map[string]struct{})
}

func (r *Reconciler) IsAlive(systemID string) bool {
	_, ok := r.alive[systemID]
	return ok
}

func (r *Reconciler) IsConnected(systemID string) bool {
	_, ok := r.connected[systemID]
	return ok
}

// Snapshot 复制当前状态, 供只读快照使用
func (r *Reconciler) Snapshot() (alive, connected map[string]bool) {
	alive = make(map[string]bool, len(r.alive))
	for k := range r.alive {
		alive[k] = true
	}
	connected = make(map[string]bool, len(r.connected))
	for k := range r.connected {
		connected[k] = true
	}
	return alive, connected
}

func set(m map[string]struct{}, key string, on bool) bool {
	_, had := m[key]
	if on {
		m[key] = struct{}{}
	} else {
		delete(m, key)
	}
	return had != on
}
