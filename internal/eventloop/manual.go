package eventloop

import (
	"context"
	"sort"
	"time"
)

// Manual is a deterministic Loop driven by a virtual clock. Nothing runs until
// Drain or Advance is called, which makes it suitable for tests.
type Manual struct {
	now    time.Time
	queue  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	due     time.Time
	seq     int
	task    func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// NewManual creates a manual loop starting at the given time
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Post implements Loop
func (m *Manual) Post(task func()) {
	m.queue = append(m.queue, task)
}

// AfterFunc implements Loop
func (m *Manual) AfterFunc(d time.Duration, task func()) Timer {
	m.seq++
	t := &manualTimer{due: m.now.Add(d), seq: m.seq, task: task}
	m.timers = append(m.timers, t)
	return t
}

// Async implements Loop. The work runs synchronously, its continuation is queued.
func (m *Manual) Async(work func(ctx context.Context), then func()) {
	work(context.Background())
	if then != nil {
		m.Post(then)
	}
}

// Now implements Loop
func (m *Manual) Now() time.Time {
	return m.now
}

// Drain runs queued tasks, including tasks they post, until the queue is empty
func (m *Manual) Drain() {
	for len(m.queue) > 0 {
		task := m.queue[0]
		m.queue = m.queue[1:]
		task()
	}
}

// Advance moves the clock forward by d, firing due timers in order
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.Drain()
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		next.fired = true
		m.Post(next.task)
		m.Drain()
	}
	m.now = target
	m.Drain()
}

// Pending returns the number of timers that have not fired or been stopped
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) nextDue(limit time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	if len(m.timers) == 0 || m.timers[0].due.After(limit) {
		return nil
	}
	return m.timers[0]
}
