package usage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryMeter is an in-process usage meter for tests.
type MemoryMeter struct {
	mu     sync.Mutex
	events map[string]Event
}

// NewMemoryMeter creates an empty in-process usage meter.
func NewMemoryMeter() *MemoryMeter {
	return &MemoryMeter{events: make(map[string]Event)}
}

func (m *MemoryMeter) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.events[event.RequestID]; exists {
		return nil
	}
	m.events[event.RequestID] = event
	return nil
}

func (m *MemoryMeter) SummarizeTenantMonth(_ context.Context, tenantID, month string) (Summary, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return Summary{}, fmt.Errorf("parsing month: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{TenantID: tenantID}
	for _, e := range m.events {
		if e.TenantID != tenantID {
			continue
		}
		if e.CreatedAt.Before(start) || !e.CreatedAt.Before(end) {
			continue
		}
		s.MessagesUsed++
		s.TokensUsed += e.TokensIn + e.TokensOut
		s.CostEstimate += e.CostEstimate
	}
	return s, nil
}

func (m *MemoryMeter) SummarizeAllTenantsMonth(_ context.Context, month string) ([]Summary, error) {
	start, end, err := MonthBounds(month)
	if err != nil {
		return nil, fmt.Errorf("parsing month: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byTenant := make(map[string]*Summary)
	for _, e := range m.events {
		if e.CreatedAt.Before(start) || !e.CreatedAt.Before(end) {
			continue
		}
		s, ok := byTenant[e.TenantID]
		if !ok {
			s = &Summary{TenantID: e.TenantID}
			byTenant[e.TenantID] = s
		}
		s.MessagesUsed++
		s.TokensUsed += e.TokensIn + e.TokensOut
		s.CostEstimate += e.CostEstimate
	}

	out := make([]Summary, 0, len(byTenant))
	for _, s := range byTenant {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}
