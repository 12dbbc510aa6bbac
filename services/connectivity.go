package services

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// ConnectivityMonitor polls the upstream health endpoint and triggers a sync
// pass on the offline-to-online edge. The probe result also feeds the sync
// engine's offline short-circuit.
type ConnectivityMonitor struct {
	healthURL string
	interval  time.Duration
	client    *http.Client
	logger    *log.Logger
	online    atomic.Bool
	onOnline  func()
}

// NewConnectivityMonitor reads UPSTREAM_HEALTH_URL from the environment.
// onOnline runs whenever connectivity comes back after an outage.
func NewConnectivityMonitor(interval time.Duration, onOnline func(), logger *log.Logger) *ConnectivityMonitor {
	if logger == nil {
		logger = log.Default()
	}
	m := &ConnectivityMonitor{
		healthURL: os.Getenv("UPSTREAM_HEALTH_URL"),
		interval:  interval,
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    logger,
		onOnline:  onOnline,
	}
	// Assume reachable until the first probe says otherwise.
	m.online.Store(true)
	return m
}

// Online reports the last probed connectivity state. With no health URL
// configured the gateway is treated as always online.
func (m *ConnectivityMonitor) Online() bool {
	if m.healthURL == "" {
		return true
	}
	return m.online.Load()
}

// Start polls until ctx is cancelled.
func (m *ConnectivityMonitor) Start(ctx context.Context) {
	if m.healthURL == "" {
		m.logger.Println("[connectivity] no UPSTREAM_HEALTH_URL configured, probe disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

func (m *ConnectivityMonitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		return
	}
	resp, err := m.client.Do(req)
	up := err == nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	was := m.online.Swap(up)
	if up && !was {
		m.logger.Println("[connectivity] upstream reachable again, triggering sync")
		if m.onOnline != nil {
			m.onOnline()
		}
	}
	if !up && was {
		m.logger.Printf("[connectivity] upstream unreachable: %v", err)
	}
}
