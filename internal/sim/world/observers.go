package world

import (
	"context"
	"encoding/json"
	"errors"

	"plenisher.ai/internal/protocol"
)

type subscribeReq struct {
	SessionID string
	Out       chan []byte
	Resp      chan protocol.WelcomeMsg
}

// Subscribe registers out as an observer of machine state changes and
// returns the WELCOME for the session. Every current machine state is queued
// on out immediately. It is safe to call from other goroutines.
func (w *World) Subscribe(ctx context.Context, sessionID string, out chan []byte) (protocol.WelcomeMsg, error) {
	if w == nil || out == nil {
		return protocol.WelcomeMsg{}, errors.New("subscribe not available")
	}
	resp := make(chan protocol.WelcomeMsg, 1)
	req := subscribeReq{SessionID: sessionID, Out: out, Resp: resp}

	select {
	case w.subscribe <- req:
	case <-ctx.Done():
		return protocol.WelcomeMsg{}, ctx.Err()
	}

	select {
	case welcome := <-resp:
		return welcome, nil
	case <-ctx.Done():
		return protocol.WelcomeMsg{}, ctx.Err()
	}
}

// Unsubscribe drops the observer. It never blocks the caller for long.
func (w *World) Unsubscribe(sessionID string) {
	select {
	case w.unsubscribe <- sessionID:
	case <-w.stop:
	}
}

func (w *World) handleSubscribe(req subscribeReq) {
	w.observers[req.SessionID] = req.Out

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       req.SessionID,
		WorldID:         w.cfg.ID,
		Tick:            w.tick.Load(),
		TickRateHz:      w.cfg.TickRateHz,
		Machines:        w.machinePositions(),
	}
	if req.Resp != nil {
		req.Resp <- welcome
	}

	for _, msg := range w.MachineStates() {
		if b, err := json.Marshal(msg); err == nil {
			sendLatest(req.Out, b)
		}
	}
}
