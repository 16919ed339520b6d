package metrics

import (
	"sync"
)

// Monitor accumulates the time (milliseconds) spent in each phase of an oracle run.
type Monitor struct {
	m               sync.Mutex
	FetchTime       float64
	RewardTime      float64
	AggregateTime   float64
	ReportTime      float64
	ValidatorLength int
}

func NewMonitorMetrics(valLength int) *Monitor {
	return &Monitor{
		ValidatorLength: valLength,
	}
}

func (p *Monitor) AddFetch(executionTime float64) {
	p.m.Lock()
	p.FetchTime += executionTime

	p.m.Unlock()
}

func (p *Monitor) AddReward(executionTime float64) {
	p.m.Lock()
	p.RewardTime += executionTime

	p.m.Unlock()
}

func (p *Monitor) AddAggregate(executionTime float64) {
	p.m.Lock()
	p.AggregateTime += executionTime

	p.m.Unlock()
}

func (p *Monitor) AddReport(executionTime float64) {
	p.m.Lock()
	p.ReportTime += executionTime

	p.m.Unlock()
}

// Snapshot returns the phase timings keyed by phase name.
func (p *Monitor) Snapshot() map[string]float64 {
	p.m.Lock()
	defer p.m.Unlock()
	return map[string]float64{
		"fetch":     p.FetchTime,
		"reward":    p.RewardTime,
		"aggregate": p.AggregateTime,
		"report":    p.ReportTime,
	}
}
