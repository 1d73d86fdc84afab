package clock

import (
	"sync"
	"time"
)

var _ Clock = &Mock{}

// Mock implements a virtual Clock. Deferred calls only fire from Add, on the
// caller's goroutine, in deadline order.
type Mock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*mockTimer
}

type mockTimer struct {
	m    *Mock
	when time.Duration
	seq  int
	f    func()
}

// NewMock creates a virtual clock at time zero.
func NewMock() *Mock {
	return &Mock{}
}

// AfterFunc implements Clock
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &mockTimer{m: m, when: m.now + d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Add advances virtual time by d and runs every call that falls due, including
// calls scheduled by the calls themselves.
func (m *Mock) Add(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		next := m.next(target)
		if next == nil {
			break
		}
		m.remove(next)
		m.now = next.when
		m.mu.Unlock()
		next.f()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Elapsed returns the virtual time passed since creation.
func (m *Mock) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of calls waiting to fire.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// NextIn returns how far away the earliest pending call is, or false if
// nothing is pending.
func (m *Mock) NextIn() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.next(-1)
	if next == nil {
		return 0, false
	}
	return next.when - m.now, true
}

// next returns the earliest timer due at or before limit. A negative limit
// means no limit.
func (m *Mock) next(limit time.Duration) (found *mockTimer) {
	for _, t := range m.timers {
		if limit >= 0 && t.when > limit {
			continue
		}
		if found == nil || t.when < found.when || (t.when == found.when && t.seq < found.seq) {
			found = t
		}
	}
	return
}

func (m *Mock) remove(t *mockTimer) bool {
	for i, x := range m.timers {
		if x == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (t *mockTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.remove(t)
}
