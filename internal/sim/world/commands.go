package world

import (
	"context"
	"errors"
	"fmt"

	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/machine"
	"plenisher.ai/internal/sim/plenish"
	"plenisher.ai/internal/sim/tank"
)

// Operator commands. They are not part of the client protocol.
const (
	CmdLoadChunk   = "LOAD_CHUNK"
	CmdUnloadChunk = "UNLOAD_CHUNK"
	// CmdAdminReset is how admin resets appear in the tick log.
	CmdAdminReset = "ADMIN_RESET"
)

// Command is a mutation applied at the start of the next tick.
type Command struct {
	Kind  string
	Actor string
	Pos   plenish.Coord

	// FILL
	Face   plenish.Dir
	Fluid  string
	Amount int
	// CHARGE
	Energy float64
	// INSERT_ITEM
	Item  string
	Count int
	// INVOKE
	Method string

	Resp chan CommandResult
}

type CommandResult struct {
	Tick    uint64
	Code    string
	Message string
}

func (r CommandResult) OK() bool { return r.Code == "" }

// Submit queues cmd and waits for its result. It is safe to call from other
// goroutines.
func (w *World) Submit(ctx context.Context, cmd Command) (CommandResult, error) {
	if w == nil {
		return CommandResult{}, errors.New("world not available")
	}
	resp := make(chan CommandResult, 1)
	cmd.Resp = resp

	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}

	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

func (w *World) applyCommand(tick uint64, cmd Command) CommandResult {
	res := w.execCommand(tick, cmd)
	res.Tick = tick
	if cmd.Resp != nil {
		select {
		case cmd.Resp <- res:
		default:
		}
	}
	return res
}

func (w *World) execCommand(tick uint64, cmd Command) CommandResult {
	pos := cmd.Pos
	switch cmd.Kind {
	case protocol.CmdPlaceMachine:
		if _, err := w.placeMachine(pos); err != nil {
			return errResult(err)
		}
		w.auditEvent(tick, cmd.Actor, "PLACE_MACHINE", pos, w.airBlock, w.plenisherBlock, "")
		w.log.WithField("pos", pos.String()).Info("machine placed")
		return CommandResult{Message: "placed"}

	case protocol.CmdRemoveMachine:
		if err := w.removeMachine(pos); err != nil {
			return errResult(err)
		}
		w.auditEvent(tick, cmd.Actor, "REMOVE_MACHINE", pos, w.plenisherBlock, w.airBlock, "")
		return CommandResult{Message: "removed"}

	case CmdLoadChunk:
		if !w.chunks.inBounds(pos) {
			return errResult(ErrNotAddressable)
		}
		w.chunks.Load(ChunkKeyOf(pos))
		return CommandResult{Message: "loaded"}

	case CmdUnloadChunk:
		if !w.chunks.Unload(ChunkKeyOf(pos)) {
			return CommandResult{Code: protocol.ErrNotFound, Message: "chunk not loaded"}
		}
		return CommandResult{Message: "unloaded"}
	}

	m, ok := w.machines[pos]
	if !ok {
		return errResult(ErrNoMachine)
	}
	switch cmd.Kind {
	case protocol.CmdReset:
		notice := m.Reset()
		w.resetTotal++
		w.auditEvent(tick, cmd.Actor, "RESET", pos, 0, 0, "USER")
		return CommandResult{Message: notice}

	case CmdAdminReset:
		return CommandResult{Message: w.resetByAdmin(tick, pos, m)}

	case protocol.CmdFill:
		n := m.Fill(cmd.Face, tank.FluidStack{Fluid: cmd.Fluid, Amount: cmd.Amount}, true)
		if n == 0 {
			return CommandResult{Code: protocol.ErrInvalidTarget, Message: "fill rejected"}
		}
		return CommandResult{Message: fmt.Sprintf("filled %d", n)}

	case protocol.CmdCharge:
		if cmd.Energy <= 0 {
			return CommandResult{Code: protocol.ErrBadRequest, Message: "energy must be positive"}
		}
		got := m.ChargeEnergy(cmd.Energy)
		return CommandResult{Message: fmt.Sprintf("charged %g", got)}

	case protocol.CmdInsertItem:
		n, err := m.InsertItem(cmd.Item, cmd.Count)
		if err != nil {
			return CommandResult{Code: protocol.ErrBadRequest, Message: err.Error()}
		}
		return CommandResult{Message: fmt.Sprintf("inserted %d", n)}

	case protocol.CmdInvoke:
		out, err := m.Invoke(cmd.Method)
		if err != nil {
			return errResult(err)
		}
		if cmd.Method == "reset" {
			w.resetTotal++
			w.auditEvent(tick, cmd.Actor, "RESET", pos, 0, 0, "COMPUTER")
		}
		return CommandResult{Message: out}

	default:
		return CommandResult{Code: protocol.ErrBadRequest, Message: "unknown command: " + cmd.Kind}
	}
}

func errResult(err error) CommandResult {
	return CommandResult{Code: ErrorCode(err), Message: err.Error()}
}

// ErrorCode maps world errors onto protocol error codes.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoMachine):
		return protocol.ErrNotFound
	case errors.Is(err, ErrMachineExists):
		return protocol.ErrConflict
	case errors.Is(err, ErrNotAddressable):
		return protocol.ErrInvalidTarget
	case errors.Is(err, machine.ErrNoSuchMethod):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}
