package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const debounce = 10 * time.Millisecond

func TestConnectivityMonitor_StartsWithInitialState(t *testing.T) {
	m := NewConnectivityMonitor(debounce)
	assert.False(t, m.IsOnline())

	m.Start(true)
	defer m.Stop()
	assert.True(t, m.IsOnline())
}

func TestConnectivityMonitor_DebouncedTransition(t *testing.T) {
	m := NewConnectivityMonitor(debounce)
	m.Start(false)
	defer m.Stop()

	var mu sync.Mutex
	var transitions []bool
	unsub := m.Subscribe(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})
	defer unsub()

	m.Report(true)
	// Not settled yet.
	assert.False(t, m.IsOnline())

	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []bool{true}, transitions)
	mu.Unlock()
}

func TestConnectivityMonitor_FlapSuppressed(t *testing.T) {
	m := NewConnectivityMonitor(50 * time.Millisecond)
	m.Start(true)
	defer m.Stop()

	var mu sync.Mutex
	fired := 0
	unsub := m.Subscribe(func(bool) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	defer unsub()

	// offline then back online within the window: no transition settles.
	m.Report(false)
	m.Report(true)

	time.Sleep(120 * time.Millisecond)
	assert.True(t, m.IsOnline())
	mu.Lock()
	assert.Zero(t, fired)
	mu.Unlock()
}

func TestConnectivityMonitor_StopCancelsPending(t *testing.T) {
	m := NewConnectivityMonitor(10 * time.Millisecond)
	m.Start(false)

	m.Report(true)
	m.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, m.IsOnline())

	// Reports after Stop are ignored.
	m.Report(true)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, m.IsOnline())
}

func TestConnectivityMonitor_Unsubscribe(t *testing.T) {
	m := NewConnectivityMonitor(time.Millisecond)
	m.Start(false)
	defer m.Stop()

	var mu sync.Mutex
	fired := 0
	unsub := m.Subscribe(func(bool) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	unsub()

	m.Report(true)
	require.Eventually(t, m.IsOnline, time.Second, time.Millisecond)

	mu.Lock()
	assert.Zero(t, fired)
	mu.Unlock()
}
