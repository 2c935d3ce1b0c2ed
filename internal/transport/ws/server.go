// Package ws serves the observer and command protocol over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/plenish"
	"plenisher.ai/internal/sim/world"
)

// World is the part of *world.World a session needs.
type World interface {
	Dim() string
	Subscribe(ctx context.Context, sessionID string, out chan []byte) (protocol.WelcomeMsg, error)
	Unsubscribe(sessionID string)
	Submit(ctx context.Context, cmd world.Command) (world.CommandResult, error)
}

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	commandTimeout   = 5 * time.Second
)

var clientCmds = map[string]struct{}{
	protocol.CmdPlaceMachine:  {},
	protocol.CmdRemoveMachine: {},
	protocol.CmdReset:         {},
	protocol.CmdFill:          {},
	protocol.CmdCharge:        {},
	protocol.CmdInsertItem:    {},
	protocol.CmdInvoke:        {},
}

type Server struct {
	world World
	log   logrus.FieldLogger

	upgrader websocket.Upgrader
}

func NewServer(w World, logger logrus.FieldLogger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(r.Context(), conn)
		if sessionID == "" {
			return
		}
		log := s.log.WithField("session", sessionID)
		log.Info("session opened")
		defer func() {
			s.world.Unsubscribe(sessionID)
			log.Info("session closed")
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Command results are never dropped; state updates are latest-wins.
		results := make(chan []byte, 16)

		// Writer goroutine.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-results:
				case b = <-out:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			res := s.handleMessage(ctx, sessionID, msg)
			if res == nil {
				continue
			}
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			select {
			case results <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleMessage runs one client frame. Frames other than CMD are ignored.
func (s *Server) handleMessage(ctx context.Context, sessionID string, msg []byte) *protocol.CmdResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCmd {
		return nil
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		r := protocol.NewCmdResult("", 0, protocol.ErrProtoBadRequest, "malformed CMD")
		return &r
	}
	if cmd.ProtocolVersion != protocol.Version {
		r := protocol.NewCmdResult(cmd.ID, 0, protocol.ErrProtoBadRequest, "bad protocol_version")
		return &r
	}
	if _, ok := clientCmds[cmd.Cmd]; !ok {
		r := protocol.NewCmdResult(cmd.ID, 0, protocol.ErrBadRequest, "unknown cmd: "+cmd.Cmd)
		return &r
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	res, err := s.world.Submit(cctx, world.Command{
		Kind:   cmd.Cmd,
		Actor:  sessionID,
		Pos:    plenish.CoordFromArray(s.world.Dim(), cmd.Pos),
		Face:   plenish.Up,
		Fluid:  cmd.Fluid,
		Amount: cmd.Amount,
		Energy: cmd.Energy,
		Item:   cmd.Item,
		Count:  cmd.Count,
		Method: cmd.Method,
	})
	if err != nil {
		r := protocol.NewCmdResult(cmd.ID, 0, protocol.ErrWorldBusy, err.Error())
		return &r
	}
	r := protocol.NewCmdResult(cmd.ID, res.Tick, res.Code, res.Message)
	return &r
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	welcome, err := s.world.Subscribe(hctx, sessionID, out)
	if err != nil {
		closeWith(conn, "world busy")
		return "", nil
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.world.Unsubscribe(sessionID)
		return "", nil
	}
	s.log.WithFields(logrus.Fields{"session": sessionID, "client": hello.ClientName}).Debug("handshake complete")
	return sessionID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
