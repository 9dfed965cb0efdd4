package journal

// Stats 汇总调用记录的状态分布，用于仪表盘或健康检查。
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	Reverted        int   `json:"reverted"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

func (s *Stats) add(inv *Invocation) {
	s.Total++
	switch inv.Status {
	case StatusPending:
		s.Pending++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusReverted:
		s.Reverted++
	}
	if s.OldestUpdatedAt == 0 || inv.UpdatedAt < s.OldestUpdatedAt {
		s.OldestUpdatedAt = inv.UpdatedAt
	}
	if inv.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = inv.UpdatedAt
	}
}
