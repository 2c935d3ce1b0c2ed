package world

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/plenish"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCmds []Command
	var pendingAdmin []adminSnapshotReq
	var pendingAdminReset []adminResetReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.subscribe:
			w.handleSubscribe(req)
		case id := <-w.unsubscribe:
			delete(w.observers, id)
		case cmd := <-w.cmds:
			pendingCmds = append(pendingCmds, cmd)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case req := <-w.adminReset:
			pendingAdminReset = append(pendingAdminReset, req)
		case <-ticker.C:
			w.handleAdminResetRequests(pendingAdminReset)
			w.step(pendingCmds)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingCmds = pendingCmds[:0]
			pendingAdmin = pendingAdmin[:0]
			pendingAdminReset = pendingAdminReset[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering as
// Run. It is intended for tests and offline tools.
func (w *World) StepOnce(cmds []Command) TickLogEntry {
	return w.step(cmds)
}

func (w *World) step(cmds []Command) TickLogEntry {
	start := time.Now()
	tick := w.tick.Load()
	entry := TickLogEntry{Tick: tick}

	// Admin resets handled ahead of this step are logged first so a replay
	// applies them in the same order.
	entry.Commands = append(entry.Commands, w.recorded...)
	w.recorded = w.recorded[:0]

	for _, cmd := range cmds {
		res := w.applyCommand(tick, cmd)
		entry.Commands = append(entry.Commands, recordCommand(cmd, res))
	}

	for _, pos := range w.sortedMachinePositions() {
		m := w.machines[pos]
		w.stepping = pos
		rep := m.Tick(tick)
		if !rep.Ran {
			continue
		}
		entry.Steps = append(entry.Steps, RecordedStep{
			Machine:  pos.ToArray(),
			Step:     rep.Result.Step.String(),
			Pos:      rep.Result.Pos.ToArray(),
			Refilled: rep.Refilled,
			Finished: rep.Result.Finished,
		})
		if rep.Result.Step.Terminal() {
			w.log.WithFields(logrus.Fields{
				"machine": pos.String(),
				"step":    rep.Result.Step.String(),
				"visited": m.Engine().VisitedLen(),
			}).Info("fill calculation finished")
		}
	}
	w.stepping = plenish.Coord{}

	entry.Digest = w.stateDigest(tick)
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.WithError(err).Warn("tick log write failed")
		}
	}

	w.broadcastStates(tick)

	if n := w.cfg.SnapshotEveryTicks; n > 0 && tick > 0 && tick%n == 0 && w.snapshotSink != nil {
		select {
		case w.snapshotSink <- w.ExportSnapshot(tick):
		default:
			w.log.WithField("tick", tick).Warn("snapshot sink backpressure")
		}
	}

	w.tick.Add(1)
	w.updateMetrics(time.Since(start))
	return entry
}

// broadcastStates pushes MACHINE_STATE for every machine whose state changed
// since it was last sent.
func (w *World) broadcastStates(tick uint64) {
	for _, pos := range w.sortedMachinePositions() {
		msg := w.machines[pos].SyncState(w.cfg.ID, tick)
		if prev, ok := w.lastSync[pos]; ok && sameState(prev, msg) {
			continue
		}
		w.lastSync[pos] = msg

		if w.stateLogger != nil {
			if err := w.stateLogger.WriteMachineState(msg); err != nil {
				w.log.WithError(err).Warn("state log write failed")
			}
		}
		if len(w.observers) == 0 {
			continue
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		for _, out := range w.observers {
			sendLatest(out, b)
		}
	}
}

// sameState compares two states ignoring the tick.
func sameState(a, b protocol.MachineStateMsg) bool {
	fa, fb := a.Fluid, b.Fluid
	a.Tick, b.Tick = 0, 0
	a.Fluid, b.Fluid = nil, nil
	if a != b {
		return false
	}
	if fa == nil || fb == nil {
		return fa == fb
	}
	return *fa == *fb
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (w *World) stateDigest(tick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	putU64(tick)
	for _, k := range w.chunks.LoadedChunkKeys() {
		d := w.chunks.loaded[k].Digest()
		h.Write(d[:])
	}
	for _, pos := range w.sortedMachinePositions() {
		m := w.machines[pos]
		st := m.Tank()
		h.Write([]byte(pos.String()))
		h.Write([]byte(st.Fluid))
		putU64(uint64(st.Amount))
		putU64(uint64(m.Engine().FrontierLen()))
		putU64(uint64(m.Engine().VisitedLen()))
		if m.Engine().Finished() {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MachineStates returns the current state of every machine. Loop goroutine
// only; other goroutines receive states through Subscribe.
func (w *World) MachineStates() []protocol.MachineStateMsg {
	tick := w.tick.Load()
	out := make([]protocol.MachineStateMsg, 0, len(w.machines))
	for _, pos := range w.sortedMachinePositions() {
		out = append(out, w.machines[pos].SyncState(w.cfg.ID, tick))
	}
	return out
}
