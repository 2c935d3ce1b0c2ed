// Command bot is a scripted websocket client: it places a plenisher, feeds it
// fluid and energy, and logs the machine state stream until interrupted.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/logging"
	"plenisher.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		posStr = flag.String("pos", "0,40,0", "machine position x,y,z")
		fluid  = flag.String("fluid", "WATER", "fluid to feed")
		amount = flag.Int("amount", 10000, "fluid amount per FILL")
		energy = flag.Float64("energy", 20000, "energy per CHARGE")
	)
	flag.Parse()

	log := logging.New(os.Stdout).WithField("component", "bot")
	pos, err := parsePos(*posStr)
	if err != nil {
		log.WithError(err).Fatal("bad -pos")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{conn: conn, log: log, pos: pos, fluid: *fluid, amount: *amount, energy: *energy}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := b.handle(msg); err != nil {
			log.WithError(err).Warn("send")
		}
	}
}

type bot struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	pos    [3]int
	fluid  string
	amount int
	energy float64

	seq int
}

func (b *bot) send(cmd protocol.CmdMsg) error {
	b.seq++
	cmd.Type = protocol.TypeCmd
	cmd.ProtocolVersion = protocol.Version
	cmd.ID = fmt.Sprintf("%s_%d", strings.ToLower(cmd.Cmd), b.seq)
	cmd.Pos = b.pos
	return b.conn.WriteJSON(cmd)
}

func (b *bot) handle(msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil
		}
		b.log.WithFields(logrus.Fields{"session": w.SessionID, "world": w.WorldID, "machines": len(w.Machines)}).Info("WELCOME")
		if !hasMachine(w.Machines, b.pos) {
			if err := b.send(protocol.CmdMsg{Cmd: protocol.CmdPlaceMachine}); err != nil {
				return err
			}
		}
		if err := b.send(protocol.CmdMsg{Cmd: protocol.CmdFill, Fluid: b.fluid, Amount: b.amount}); err != nil {
			return err
		}
		return b.send(protocol.CmdMsg{Cmd: protocol.CmdCharge, Energy: b.energy})

	case protocol.TypeCmdResult:
		var r protocol.CmdResultMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return nil
		}
		entry := b.log.WithFields(logrus.Fields{"id": r.ID, "tick": r.Tick})
		if r.OK {
			entry.Info(r.Message)
		} else {
			entry.WithField("code", r.Code).Warn(r.Message)
		}

	case protocol.TypeMachineState:
		var st protocol.MachineStateMsg
		if err := json.Unmarshal(msg, &st); err != nil || st.Pos != b.pos {
			return nil
		}
		f := logrus.Fields{"tick": st.Tick, "visited": st.Visited, "frontier": st.Frontier, "energy": st.Energy, "finished": st.Finished}
		if st.Fluid != nil {
			f["fluid"] = st.Fluid.ID
			f["amount"] = st.Fluid.Amount
		}
		b.log.WithFields(f).Info("MACHINE_STATE")

		// Keep the tank topped up while the fill is still running.
		if !st.Finished && (st.Fluid == nil || st.Fluid.Amount < b.amount/4) {
			return b.send(protocol.CmdMsg{Cmd: protocol.CmdFill, Fluid: b.fluid, Amount: b.amount})
		}
	}
	return nil
}

func hasMachine(list [][3]int, pos [3]int) bool {
	for _, p := range list {
		if p == pos {
			return true
		}
	}
	return false
}

func parsePos(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
