package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "WalletBridge/internal/errors"
)

type memoryEntry struct {
	inv *Invocation
	seq uint64
}

// MemoryStore 以内存方式保存调用记录，适用于单机运行与测试。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	seq     uint64
	now     func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, inv *Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := prepareCreate(inv, m.now().Unix()); err != nil {
		return err
	}
	if _, ok := m.entries[inv.ID]; ok {
		return ErrInvocationConflict
	}
	m.seq++
	m.entries[inv.ID] = &memoryEntry{inv: inv.clone(), seq: m.seq}
	return nil
}

// Get 返回调用记录的副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Invocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrInvocationNotFound
	}
	return entry.inv.clone(), nil
}

// Update 覆盖调用记录中可变的字段。
func (m *MemoryStore) Update(_ context.Context, inv *Invocation) error {
	if inv == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[inv.ID]
	if !ok {
		return ErrInvocationNotFound
	}
	inv.UpdatedAt = m.now().Unix()
	if inv.UpdatedAt < entry.inv.UpdatedAt {
		inv.UpdatedAt = entry.inv.UpdatedAt
	}
	inv.CreatedAt = entry.inv.CreatedAt
	m.seq++
	entry.inv = inv.clone()
	entry.seq = m.seq
	return nil
}

// ListLatest 按最近更新时间倒序返回调用记录。
func (m *MemoryStore) ListLatest(_ context.Context, opts ListOptions) ([]*Invocation, error) {
	opts.applyDefaults()
	m.mu.RLock()
	matched := make([]memoryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		if opts.match(entry.inv) {
			matched = append(matched, memoryEntry{inv: entry.inv.clone(), seq: entry.seq})
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].inv.UpdatedAt != matched[j].inv.UpdatedAt {
			return matched[i].inv.UpdatedAt > matched[j].inv.UpdatedAt
		}
		return matched[i].seq > matched[j].seq
	})
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	out := make([]*Invocation, len(matched))
	for i, entry := range matched {
		out[i] = entry.inv
	}
	return out, nil
}

// Stats 统计符合过滤条件的调用数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, entry := range m.entries {
		if opts.match(entry.inv) {
			stats.add(entry.inv)
		}
	}
	return stats, nil
}

// Close 对内存存储无操作。
func (m *MemoryStore) Close() error { return nil }
