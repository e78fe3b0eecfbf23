package pipeline

import "github.com/couchcryptid/pyroguard-risk-service/internal/domain"

// Snapshot is what the pipeline has seen most recently.
type Snapshot struct {
	RecentLines []string              `json:"recent_lines"`
	Latest      *domain.SensorReading `json:"latest,omitempty"`
	LastWindow  *WindowResult         `json:"last_window,omitempty"`
}

// Snapshot returns a copy of the recent raw lines, the latest parsed reading and the
// result of the last completed window.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{RecentLines: append([]string{}, p.recent...)}
	if p.latest != nil {
		latest := *p.latest
		s.Latest = &latest
	}
	if p.last != nil {
		last := *p.last
		s.LastWindow = &last
	}
	return s
}

func (p *Pipeline) remember(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recent = append(p.recent, line)
	if len(p.recent) > recentLinesCap {
		p.recent = append(p.recent[:0:0], p.recent[len(p.recent)-recentLinesCap:]...)
	}
}

func (p *Pipeline) setLatest(r domain.SensorReading) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = &r
}
