package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/lloyd/internal/cluster"
)

func twoNodes() []cluster.NodeInfo {
	return []cluster.NodeInfo{
		{ID: "node-1", Addr: "http://localhost:8081"},
		{ID: "node-2", Addr: "http://localhost:8082"},
	}
}

// TestNewHealthMonitor verifies the default configuration.
func TestNewHealthMonitor(t *testing.T) {
	monitor := NewHealthMonitor(5*time.Second, nil)
	defer monitor.Stop()

	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 2*time.Second, monitor.httpClient.Timeout)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.NotNil(t, monitor.checkFunc)
	assert.Empty(t, monitor.nodes)
}

// TestHealthMonitorStart verifies that the loop checks every node on
// start and on every tick.
func TestHealthMonitorStart(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil)
	defer monitor.Stop()

	var calls atomic.Int64
	monitor.SetCheckFunction(func(addr string) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, twoNodes)

	assert.Eventually(t, func() bool { return calls.Load() >= 6 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, monitor.IsHealthy("node-1"))
	assert.True(t, monitor.IsHealthy("node-2"))
	assert.Len(t, monitor.GetAllNodeHealth(), 2)
}

// TestHealthMonitorNodeFailure walks a node through three failed checks
// and verifies the callback fires once on the transition.
func TestHealthMonitorNodeFailure(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour, nil)

	var mu sync.Mutex
	down := map[string]bool{}
	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if down[addr] {
			return errors.New("node is down")
		}
		return nil
	})

	unhealthy := make(chan string, 4)
	monitor.SetOnUnhealthy(func(nodeID string) { unhealthy <- nodeID })

	monitor.CheckAll(twoNodes())
	assert.True(t, monitor.IsHealthy("node-1"))

	mu.Lock()
	down["http://localhost:8081"] = true
	mu.Unlock()

	for i := 1; i <= 2; i++ {
		monitor.CheckAll(twoNodes())
		health := monitor.GetNodeHealth("node-1")
		require.NotNil(t, health)
		assert.Equal(t, i, health.ConsecutiveFails)
		assert.Equal(t, StatusHealthy, health.Status, "still healthy after %d failures", i)
	}

	monitor.CheckAll(twoNodes())
	assert.False(t, monitor.IsHealthy("node-1"))
	assert.False(t, monitor.Eligible("node-1"))
	assert.True(t, monitor.IsHealthy("node-2"))

	select {
	case id := <-unhealthy:
		assert.Equal(t, "node-1", id)
	case <-time.After(time.Second):
		t.Fatal("unhealthy callback not invoked")
	}

	// Further failures do not fire the callback again.
	monitor.CheckAll(twoNodes())
	select {
	case id := <-unhealthy:
		t.Fatalf("unexpected second callback for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHealthMonitorNodeRecovery verifies an unhealthy node becomes
// healthy again and its failure count is reset.
func TestHealthMonitorNodeRecovery(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour, nil)

	var failing atomic.Bool
	failing.Store(true)
	monitor.SetCheckFunction(func(addr string) error {
		if failing.Load() {
			return fmt.Errorf("down")
		}
		return nil
	})

	nodes := twoNodes()[:1]
	for i := 0; i < 3; i++ {
		monitor.CheckAll(nodes)
	}
	require.Equal(t, StatusUnhealthy, monitor.GetNodeHealth("node-1").Status)

	failing.Store(false)
	monitor.CheckAll(nodes)

	health := monitor.GetNodeHealth("node-1")
	require.NotNil(t, health)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 0, health.ConsecutiveFails)
	assert.True(t, monitor.Eligible("node-1"))
}

// TestHealthMonitorNodeRemoval verifies that nodes missing from the
// provider are dropped.
func TestHealthMonitorNodeRemoval(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour, nil)
	monitor.SetCheckFunction(func(string) error { return nil })

	monitor.CheckAll(twoNodes())
	assert.Len(t, monitor.GetAllNodeHealth(), 2)

	monitor.CheckAll(twoNodes()[:1])
	all := monitor.GetAllNodeHealth()
	assert.Len(t, all, 1)
	assert.Contains(t, all, "node-1")
}

// TestHealthMonitorStop ensures no checks happen after Stop returns.
func TestHealthMonitorStop(t *testing.T) {
	monitor := NewHealthMonitor(20*time.Millisecond, nil)

	var calls atomic.Int64
	monitor.SetCheckFunction(func(string) error {
		calls.Add(1)
		return nil
	})

	go monitor.Start(nil, twoNodes)
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	monitor.Stop()
	before := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, calls.Load())
}

// TestHealthMonitorConcurrency exercises reads while the loop runs.
func TestHealthMonitorConcurrency(t *testing.T) {
	monitor := NewHealthMonitor(5*time.Millisecond, nil)
	defer monitor.Stop()
	monitor.SetCheckFunction(func(string) error { return nil })

	const nodeCount = 5
	provider := func() []cluster.NodeInfo {
		nodes := make([]cluster.NodeInfo, nodeCount)
		for i := range nodes {
			nodes[i] = cluster.NodeInfo{ID: fmt.Sprintf("node-%d", i), Addr: fmt.Sprintf("http://localhost:808%d", i)}
		}
		return nodes
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, provider)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				monitor.IsHealthy(fmt.Sprintf("node-%d", id%nodeCount))
				monitor.Eligible(fmt.Sprintf("node-%d", id%nodeCount))
				monitor.GetNodeHealth(fmt.Sprintf("node-%d", id%nodeCount))
				monitor.GetAllNodeHealth()
				time.Sleep(time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return len(monitor.GetAllNodeHealth()) == nodeCount }, time.Second, 5*time.Millisecond)
}

func TestHealthMonitorUnknownNodeIsEligible(t *testing.T) {
	monitor := NewHealthMonitor(time.Hour, nil)
	assert.Nil(t, monitor.GetNodeHealth("node-999"))
	assert.False(t, monitor.IsHealthy("node-999"))
	assert.True(t, monitor.Eligible("node-999"))
}

// TestDefaultHealthCheck checks real endpoints.
func TestDefaultHealthCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	monitor := NewHealthMonitor(time.Hour, nil)
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"healthy", ok.URL, false},
		{"healthy with suffix", ok.URL + "/health", false},
		{"healthy without scheme", ok.Listener.Addr().String(), false},
		{"bad status", broken.URL, true},
		{"unreachable", "http://127.0.0.1:1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := monitor.defaultHealthCheck(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
