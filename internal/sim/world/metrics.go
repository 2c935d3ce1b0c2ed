package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Machines         int `json:"machines"`
	FinishedMachines int `json:"finished_machines"`
	Observers        int `json:"observers"`
	LoadedChunks     int `json:"loaded_chunks"`
	ColdChunks       int `json:"cold_chunks"`

	PlacedTotal uint64 `json:"placed_total"`
	ResetTotal  uint64 `json:"reset_total"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Commands  int `json:"commands"`
	Subscribe int `json:"subscribe"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) updateMetrics(stepDur time.Duration) {
	finished := 0
	for _, m := range w.machines {
		if m.Engine().Finished() {
			finished++
		}
	}
	w.metrics.Store(WorldMetrics{
		Tick:             w.tick.Load(),
		Machines:         len(w.machines),
		FinishedMachines: finished,
		Observers:        len(w.observers),
		LoadedChunks:     len(w.chunks.loaded),
		ColdChunks:       len(w.chunks.cold),
		PlacedTotal:      w.placedTotal,
		ResetTotal:       w.resetTotal,
		QueueDepths: QueueDepths{
			Commands:  len(w.cmds),
			Subscribe: len(w.subscribe),
		},
		StepMS: float64(stepDur.Microseconds()) / 1000,
	})
}
