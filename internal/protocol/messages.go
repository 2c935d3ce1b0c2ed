package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	WorldID         string   `json:"world_id"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Machines        [][3]int `json:"machines"`
}

// MACHINE_STATE (server -> client): the per-machine state mirrored to
// observers after every tick in which it changed.
type MachineStateMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	WorldID         string  `json:"world_id"`
	Pos             [3]int  `json:"pos"`
	Finished        bool    `json:"finished"`
	Fluid           *Fluid  `json:"fluid,omitempty"`
	TankCapacity    int     `json:"tank_capacity"`
	Energy          float64 `json:"energy"`
	EnergyCapacity  float64 `json:"energy_capacity"`
	Frontier        int     `json:"frontier"`
	Visited         int     `json:"visited"`
	MaxNodes        int     `json:"max_nodes"`
}

type Fluid struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

// Command names accepted in CMD messages.
const (
	CmdPlaceMachine  = "PLACE_MACHINE"
	CmdRemoveMachine = "REMOVE_MACHINE"
	CmdReset         = "RESET"
	CmdFill          = "FILL"
	CmdCharge        = "CHARGE"
	CmdInsertItem    = "INSERT_ITEM"
	CmdInvoke        = "INVOKE"
)

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Cmd             string `json:"cmd"`
	Pos             [3]int `json:"pos"`

	// FILL
	Fluid  string `json:"fluid,omitempty"`
	Amount int    `json:"amount,omitempty"`
	// CHARGE
	Energy float64 `json:"energy,omitempty"`
	// INSERT_ITEM
	Item  string `json:"item,omitempty"`
	Count int    `json:"count,omitempty"`
	// INVOKE
	Method string `json:"method,omitempty"`
}

// CMD_RESULT (server -> client)
type CmdResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Tick            uint64 `json:"tick"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

func NewCmdResult(id string, tick uint64, code, message string) CmdResultMsg {
	return CmdResultMsg{
		Type:            TypeCmdResult,
		ProtocolVersion: Version,
		ID:              id,
		Tick:            tick,
		OK:              code == "",
		Code:            code,
		Message:         message,
	}
}
