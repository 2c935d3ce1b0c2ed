package world

import (
	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/plenish"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type StateLogger interface {
	WriteMachineState(msg protocol.MachineStateMsg) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Steps    []RecordedStep    `json:"steps,omitempty"`
	Digest   string            `json:"digest"`
}

// RecordedCommand carries the full command payload so a tick log can be
// replayed against a snapshot.
type RecordedCommand struct {
	Kind  string `json:"kind"`
	Actor string `json:"actor,omitempty"`
	Pos   [3]int `json:"pos"`

	Face   plenish.Dir `json:"face,omitempty"`
	Fluid  string      `json:"fluid,omitempty"`
	Amount int         `json:"amount,omitempty"`
	Energy float64     `json:"energy,omitempty"`
	Item   string      `json:"item,omitempty"`
	Count  int         `json:"count,omitempty"`
	Method string      `json:"method,omitempty"`

	Code string `json:"code,omitempty"`
}

func recordCommand(cmd Command, res CommandResult) RecordedCommand {
	return RecordedCommand{
		Kind:   cmd.Kind,
		Actor:  cmd.Actor,
		Pos:    cmd.Pos.ToArray(),
		Face:   cmd.Face,
		Fluid:  cmd.Fluid,
		Amount: cmd.Amount,
		Energy: cmd.Energy,
		Item:   cmd.Item,
		Count:  cmd.Count,
		Method: cmd.Method,
		Code:   res.Code,
	}
}

// Command rebuilds the command for dimension dim.
func (c RecordedCommand) Command(dim string) Command {
	return Command{
		Kind:   c.Kind,
		Actor:  c.Actor,
		Pos:    plenish.CoordFromArray(dim, c.Pos),
		Face:   c.Face,
		Fluid:  c.Fluid,
		Amount: c.Amount,
		Energy: c.Energy,
		Item:   c.Item,
		Count:  c.Count,
		Method: c.Method,
	}
}

// RecordedStep is one machine operation that passed the tick gate.
type RecordedStep struct {
	Machine  [3]int `json:"machine"`
	Step     string `json:"step"`
	Pos      [3]int `json:"pos"`
	Refilled bool   `json:"refilled,omitempty"`
	Finished bool   `json:"finished"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "PLACE_FLUID"
	Pos    [3]int `json:"pos"`
	From   uint16 `json:"from"`
	To     uint16 `json:"to"`
	Reason string `json:"reason,omitempty"`
}

func (w *World) auditEvent(tick uint64, actor, action string, pos plenish.Coord, from, to uint16, reason string) {
	if w.auditLogger == nil {
		return
	}
	err := w.auditLogger.WriteAudit(AuditEntry{
		Tick:   tick,
		Actor:  actor,
		Action: action,
		Pos:    pos.ToArray(),
		From:   from,
		To:     to,
		Reason: reason,
	})
	if err != nil {
		w.log.WithError(err).WithField("action", action).Warn("audit write failed")
	}
}
