// Package metrics keeps lightweight in-process counters for a chat
// session, rendered on demand for the /status view. No exposition
// endpoint: this is a client, not a server.
package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

type metric interface {
	render() string
}

func (c *Counter) render() string { return fmt.Sprintf("%-24s %d", c.name, c.Value()) }
func (g *Gauge) render() string   { return fmt.Sprintf("%-24s %d", g.name, g.Value()) }

// Registry holds one session's metrics in registration order.
type Registry struct {
	mu        sync.Mutex
	ordered   []metric
	byName    map[string]metric
	startTime time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]metric),
		startTime: time.Now(),
	}
}

// Uptime returns how long the registry has been running.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Counter returns or creates the named counter.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byName[name]; ok {
		return m.(*Counter)
	}
	c := &Counter{name: name, help: help}
	r.byName[name] = c
	r.ordered = append(r.ordered, c)
	return c
}

// Gauge returns or creates the named gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byName[name]; ok {
		return m.(*Gauge)
	}
	g := &Gauge{name: name, help: help}
	r.byName[name] = g
	r.ordered = append(r.ordered, g)
	return g
}

// Render returns one line per metric, in registration order, preceded by
// the uptime.
func (r *Registry) Render() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := make([]string, 0, len(r.ordered)+1)
	lines = append(lines, fmt.Sprintf("%-24s %s", "uptime", r.Uptime().Round(time.Second)))
	for _, m := range r.ordered {
		lines = append(lines, m.render())
	}
	return lines
}
