package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hamed0406/healthwatch/internal/domain"
	"github.com/hamed0406/healthwatch/internal/repo"
)

var _ repo.ResultStore = (*Store)(nil)

const DefaultCapacity = 1000

// ring is a fixed-capacity buffer; once full, each append overwrites the oldest entry.
type ring struct {
	buf   []domain.ProbeResult
	start int
	n     int
}

func (r *ring) push(p domain.ProbeResult) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) at(i int) domain.ProbeResult {
	return r.buf[(r.start+i)%len(r.buf)]
}

// Store keeps a bounded ring of results per check.
type Store struct {
	mu       sync.RWMutex
	capacity int
	rings    map[domain.CheckID]*ring
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[domain.CheckID]*ring),
	}
}

func (m *Store) Append(ctx context.Context, r domain.ProbeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rg := m.rings[r.CheckID]
	if rg == nil {
		rg = &ring{buf: make([]domain.ProbeResult, m.capacity)}
		m.rings[r.CheckID] = rg
	}
	rg.push(r)
	return nil
}

func (m *Store) Since(ctx context.Context, id domain.CheckID, since time.Time) ([]domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.rings[id]
	if rg == nil {
		return nil, nil
	}
	out := make([]domain.ProbeResult, 0, rg.n)
	for i := 0; i < rg.n; i++ {
		if p := rg.at(i); !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Store) Latest(ctx context.Context, id domain.CheckID, limit int) ([]domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.rings[id]
	if rg == nil {
		return nil, nil
	}
	if limit <= 0 || limit > rg.n {
		limit = rg.n
	}
	out := make([]domain.ProbeResult, 0, limit)
	for i := rg.n - 1; i >= rg.n-limit; i-- {
		out = append(out, rg.at(i))
	}
	return out, nil
}

func (m *Store) Purge(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, rg := range m.rings {
		kept := &ring{buf: make([]domain.ProbeResult, m.capacity)}
		for i := 0; i < rg.n; i++ {
			if p := rg.at(i); p.Timestamp.Before(before) {
				purged++
			} else {
				kept.push(p)
			}
		}
		if kept.n == 0 {
			delete(m.rings, id)
			continue
		}
		m.rings[id] = kept
	}
	return purged, nil
}

func (m *Store) Drop(ctx context.Context, id domain.CheckID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rings, id)
	return nil
}

// Len reports how many results are held for id.
func (m *Store) Len(id domain.CheckID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rg := m.rings[id]; rg != nil {
		return rg.n
	}
	return 0
}
