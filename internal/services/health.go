package services

import (
	"context"
	"mentor-marketplace/internal/logger"
	"sort"
	"sync"
	"time"
)

type DependencyStatus struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
}

// HealthChecker probes external dependencies and caches the latest result.
type HealthChecker struct {
	mu       sync.RWMutex
	checks   map[string]func(context.Context) error
	statuses []DependencyStatus
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: map[string]func(context.Context) error{}}
}

func (h *HealthChecker) Register(name string, check func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) Statuses() []DependencyStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DependencyStatus, len(h.statuses))
	copy(out, h.statuses)
	return out
}

// Healthy reports whether the last probe found every dependency up.
func (h *HealthChecker) Healthy() bool {
	for _, s := range h.Statuses() {
		if s.Status != "up" {
			return false
		}
	}
	return true
}

// UpdateAll probes every dependency and alerts the admin on transitions to down.
func (h *HealthChecker) UpdateAll(ctx context.Context) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	previous := map[string]string{}
	for _, s := range h.statuses {
		previous[s.Name] = s.Status
	}
	h.mu.RUnlock()
	sort.Strings(names)

	statuses := make([]DependencyStatus, 0, len(names))
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		status := DependencyStatus{Name: name, Status: "up", LastChecked: time.Now()}
		if err != nil {
			status.Status = "down"
			status.Error = err.Error()
			if previous[name] != "down" {
				logger.NotifyAdmin("Dependency " + name + " is down: " + err.Error())
			}
		}
		statuses = append(statuses, status)
	}
	h.mu.Lock()
	h.statuses = statuses
	h.mu.Unlock()
}
