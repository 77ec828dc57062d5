package orchestrator

import (
	"time"

	"github.com/c360/percept/breaker"
	"github.com/c360/percept/health"
)

// PipelineStats summarizes one pipeline's call history.
type PipelineStats struct {
	Processed  int64         `json:"processed"`
	Failed     int64         `json:"failed"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// Stats summarizes orchestrator activity since startup or the last Cleanup.
type Stats struct {
	Pipelines  int                      `json:"pipelines"`
	Processed  int64                    `json:"processed"`
	Failed     int64                    `json:"failed"`
	AvgLatency time.Duration            `json:"avg_latency"`
	PerPipe    map[string]PipelineStats `json:"per_pipeline"`
}

// CircuitBreakerStates returns a point-in-time snapshot of every tracked
// breaker, keyed by pipeline name. Read-only; no side effects beyond the
// lazy open-to-half_open timeout transition.
func (o *Orchestrator) CircuitBreakerStates() map[string]breaker.Snapshot {
	return o.breakers.Snapshots()
}

// HealthStatus returns the aggregated health of the orchestrator and every
// registered pipeline.
func (o *Orchestrator) HealthStatus() health.Status {
	return o.monitor.AggregateHealth("orchestrator")
}

// GetStats returns call counts and latency aggregates. Read-only.
func (o *Orchestrator) GetStats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	out := Stats{
		Pipelines: o.registry.Len(),
		PerPipe:   make(map[string]PipelineStats, len(o.stats)),
	}
	var totalTime time.Duration
	for name, st := range o.stats {
		ps := PipelineStats{
			Processed: st.processed,
			Failed:    st.failed,
		}
		if st.processed > 0 {
			ps.AvgLatency = st.totalTime / time.Duration(st.processed)
		}
		out.PerPipe[name] = ps
		out.Processed += st.processed
		out.Failed += st.failed
		totalTime += st.totalTime
	}
	if out.Processed > 0 {
		out.AvgLatency = totalTime / time.Duration(out.Processed)
	}
	return out
}
