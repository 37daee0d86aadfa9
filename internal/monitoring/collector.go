package monitoring

import (
	"context"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rotisserie/eris"
)

// Place outcome labels recorded in food_access_places_total.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// Snapshot holds place outcomes over a window.
type Snapshot struct {
	Successful int     `json:"successful"` // includes Empty
	Empty      int     `json:"empty"`
	Failed     int     `json:"failed"`
	Retries    int     `json:"retries"`
	FailRate   float64 `json:"fail_rate"`
	EmptyRate  float64 `json:"empty_rate"`

	WindowStart time.Time `json:"window_start"`
	CollectedAt time.Time `json:"collected_at"`
}

// Total returns the number of finished places.
func (s *Snapshot) Total() int { return s.Successful + s.Failed }

// NewSnapshot builds a snapshot from outcome counts, e.g. a batch summary.
func NewSnapshot(successful, empty, failed, retries int, since time.Time) *Snapshot {
	snap := &Snapshot{
		Successful:  successful,
		Empty:       empty,
		Failed:      failed,
		Retries:     retries,
		WindowStart: since,
		CollectedAt: time.Now().UTC(),
	}
	snap.rates()
	return snap
}

func (s *Snapshot) rates() {
	if total := s.Total(); total > 0 {
		s.FailRate = float64(s.Failed) / float64(total)
		s.EmptyRate = float64(s.Empty) / float64(total)
	}
}

// Collector turns registry counters into windowed snapshots. Each Collect
// covers the outcomes recorded since the previous call.
type Collector struct {
	reg *Registry

	mu    sync.Mutex
	last  counts
	since time.Time
}

type counts struct {
	success, empty, failed, retries float64
}

// NewCollector creates a collector whose first window starts now.
func NewCollector(reg *Registry) *Collector {
	c := &Collector{reg: reg, since: time.Now().UTC()}
	if cur, err := c.read(); err == nil {
		c.last = cur
	}
	return c
}

// Collect returns the outcomes recorded since the previous call.
func (c *Collector) Collect(_ context.Context) (*Snapshot, error) {
	cur, err := c.read()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	snap := &Snapshot{
		Successful:  int(cur.success-c.last.success) + int(cur.empty-c.last.empty),
		Empty:       int(cur.empty - c.last.empty),
		Failed:      int(cur.failed - c.last.failed),
		Retries:     int(cur.retries - c.last.retries),
		WindowStart: c.since,
		CollectedAt: now,
	}
	snap.rates()
	c.last = cur
	c.since = now
	return snap, nil
}

func (c *Collector) read() (counts, error) {
	families, err := c.reg.Prometheus().Gather()
	if err != nil {
		return counts{}, eris.Wrap(err, "monitoring: gather metrics")
	}
	var out counts
	for _, mf := range families {
		switch mf.GetName() {
		case "food_access_places_total":
			for _, m := range mf.GetMetric() {
				switch label(m, "status") {
				case StatusSuccess:
					out.success += m.GetCounter().GetValue()
				case StatusEmpty:
					out.empty += m.GetCounter().GetValue()
				case StatusFailed:
					out.failed += m.GetCounter().GetValue()
				}
			}
		case "food_access_retries_total":
			for _, m := range mf.GetMetric() {
				out.retries += m.GetCounter().GetValue()
			}
		}
	}
	return out, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
