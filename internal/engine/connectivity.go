package engine

import (
	"log/slog"
	"sync"
	"time"
)

// ConnectivityMonitor observes network reachability transitions and
// exposes a debounced online/offline signal.
//
// Raw transitions arrive via Report (from whatever platform source watches
// the network). A transition only becomes visible to subscribers after it
// has held steady for the debounce window, so a single rapid
// offline→online→offline flap cannot trigger two overlapping drain runs.
//
// The monitor is a process-scoped instance with an explicit Start/Stop
// lifecycle, injected into the sync engine - never ambient global state.
// Transitioning to online is the sole automatic drain trigger;
// transitioning to offline never clears or alters the queue.
type ConnectivityMonitor struct {
	mu       sync.Mutex
	online   bool // settled state
	raw      bool // last reported state
	debounce time.Duration
	timer    *time.Timer
	subs     map[int]func(online bool)
	nextSub  int
	stopped  bool
}

// NewConnectivityMonitor creates a monitor with the given debounce window.
// The initial settled state is offline until a source reports otherwise.
func NewConnectivityMonitor(debounce time.Duration) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		debounce: debounce,
		subs:     make(map[int]func(bool)),
	}
}

// Start marks the monitor active with the given initial state. No
// debounce applies to the initial state - it is an observation, not a
// transition.
func (m *ConnectivityMonitor) Start(online bool) {
	m.mu.Lock()
	m.online = online
	m.raw = online
	m.stopped = false
	m.mu.Unlock()

	slog.Info("connectivity monitor started", "online", online)
}

// Stop deactivates the monitor. Pending debounce timers are cancelled and
// further reports are ignored. Subscribers are retained for a later Start.
func (m *ConnectivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// IsOnline returns the settled connectivity state.
func (m *ConnectivityMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a callback for settled transitions and returns an
// unsubscribe function. Callbacks run on the debounce timer's goroutine;
// they must not block.
func (m *ConnectivityMonitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Report feeds a raw reachability observation into the monitor. A change
// from the settled state arms the debounce timer; reverting before the
// timer fires cancels the pending transition entirely.
func (m *ConnectivityMonitor) Report(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.raw = online

	if online == m.online {
		// Flapped back to the settled state before the window elapsed.
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		return
	}

	if m.timer != nil {
		// A transition is already pending; the raw value it will settle
		// to is re-read when the timer fires.
		return
	}

	m.timer = time.AfterFunc(m.debounce, m.settle)
}

// settle commits the pending transition if the raw state still differs
// from the settled one, then notifies subscribers.
func (m *ConnectivityMonitor) settle() {
	m.mu.Lock()
	m.timer = nil
	if m.stopped || m.raw == m.online {
		m.mu.Unlock()
		return
	}
	m.online = m.raw
	online := m.online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	slog.Info("connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}
