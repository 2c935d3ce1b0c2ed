package world

import (
	"context"
	"errors"

	"plenisher.ai/internal/sim/machine"
	"plenisher.ai/internal/sim/plenish"
)

type adminResetReq struct {
	Pos  plenish.Coord
	Resp chan adminResetResp
}

type adminResetResp struct {
	Tick   uint64
	Notice string
	Err    error
}

// RequestReset asks the world loop goroutine to clear the fill calculation of
// the machine at pos. It is safe to call from other goroutines (e.g. admin
// HTTP handlers).
func (w *World) RequestReset(ctx context.Context, pos plenish.Coord) (tick uint64, notice string, err error) {
	if w == nil || w.adminReset == nil {
		return 0, "", errors.New("admin reset not available")
	}
	resp := make(chan adminResetResp, 1)
	req := adminResetReq{Pos: pos, Resp: resp}

	select {
	case w.adminReset <- req:
	case <-ctx.Done():
		return 0, "", ctx.Err()
	}

	select {
	case r := <-resp:
		return r.Tick, r.Notice, r.Err
	case <-ctx.Done():
		return 0, "", ctx.Err()
	}
}

func (w *World) handleAdminResetRequests(reqs []adminResetReq) {
	if w == nil || len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	for _, r := range reqs {
		resp := adminResetResp{Tick: cur}
		if m, ok := w.machines[r.Pos]; ok {
			resp.Notice = w.resetByAdmin(cur, r.Pos, m)
			w.recorded = append(w.recorded, RecordedCommand{Kind: CmdAdminReset, Actor: "ADMIN", Pos: r.Pos.ToArray()})
		} else {
			resp.Err = ErrNoMachine
		}
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}

func (w *World) resetByAdmin(tick uint64, pos plenish.Coord, m *machine.Plenisher) string {
	notice := m.Reset()
	w.resetTotal++
	w.auditEvent(tick, "ADMIN", "RESET", pos, 0, 0, "ADMIN_RESET")
	w.log.WithField("pos", pos.String()).Info("admin reset")
	return notice
}
