package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/dreamware/lloyd/internal/cluster"
	"github.com/dreamware/lloyd/internal/config"
	"github.com/dreamware/lloyd/internal/kmeans"
	"github.com/dreamware/lloyd/internal/logging"
)

func TestGetenv(t *testing.T) {
	t.Setenv("LLOYD_TEST_SET", "value")
	if got := getenv("LLOYD_TEST_SET", "def"); got != "value" {
		t.Errorf("getenv = %q, want value", got)
	}
	if got := getenv("LLOYD_TEST_UNSET", "def"); got != "def" {
		t.Errorf("getenv = %q, want def", got)
	}
}

func TestNewServerUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Coordinator.PublicAddr = "http://coordinator:8080"
	s := newServer(cfg, logging.Nop())
	if got := s.PublicAddr(); got != "http://coordinator:8080" {
		t.Errorf("PublicAddr = %q", got)
	}
}

// TestRunLifecycle serves the API, runs a local job through it and shuts
// down on cancel.
func TestRunLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	base := "http://" + ln.Addr().String()
	cfg := config.Default()
	cfg.Coordinator.PublicAddr = base

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, ln, cfg, logging.Nop()) }()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	req := cluster.JobRequest{
		Points:     []kmeans.Point{kmeans.NewPoint(0, 0), kmeans.NewPoint(1, 0), kmeans.NewPoint(9, 9)},
		K:          2,
		Iterations: 3,
		Strategy:   "serial",
		Initial:    []kmeans.Centroid{{X: 0, Y: 0}, {X: 9, Y: 9}},
	}
	var out cluster.JobResponse
	if err := cluster.PostJSON(context.Background(), base+"/jobs", req, &out); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := []int{0, 0, 1}
	for i, l := range out.Result.Labels {
		if l != want[i] {
			t.Errorf("label[%d] = %d, want %d", i, l, want[i])
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
