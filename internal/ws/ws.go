// Package ws is the event bus: it bridges socket.io connections to game
// sessions and broadcasts session events back to every participant in a room.
package ws

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog"

	"github.com/improvlabs/sceneshow/internal/game"
)

type Server struct {
	io       *socketio.Server
	rm       *game.Registry
	logger   zerolog.Logger
	defaults game.SessionConfig
}

// New builds the socket server. The registry is attached afterwards with
// SetRegistry because the registry itself needs this server as its emitter.
func New(logger zerolog.Logger, defaults game.SessionConfig) *Server {
	return &Server{
		io:       socketio.NewServer(nil),
		logger:   logger,
		defaults: defaults,
	}
}

// Emit implements game.Emitter by broadcasting to the socket.io room.
func (s *Server) Emit(room string, event string, payload any) {
	s.io.BroadcastToRoom("/", room, event, payload)
}

type createMsg struct {
	Mode      string `json:"mode"`
	MaxRounds int    `json:"maxRounds"`
}

type joinMsg struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

type utteranceMsg struct {
	Room string `json:"room"`
	ID   string `json:"id"`
	Text string `json:"text"`
}

type commandMsg struct {
	Room string `json:"room"`
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// SetRegistry attaches the session registry and registers all inbound event
// handlers.
func (s *Server) SetRegistry(rm *game.Registry) {
	s.rm = rm

	s.io.OnConnect("/", func(conn socketio.Conn) error {
		s.logger.Debug().Str("socket", conn.ID()).Msg("socket connected")
		return nil
	})

	s.io.OnEvent("/", "create_room", func(conn socketio.Conn, msg createMsg) {
		cfg := s.defaults
		if game.Mode(msg.Mode) == game.ModeRelay {
			cfg.Mode = game.ModeRelay
		} else {
			cfg.Mode = game.ModeSolo
		}
		if msg.MaxRounds > 0 {
			cfg.MaxRounds = msg.MaxRounds
		}
		sess := rm.Create(cfg)
		conn.Emit("room_created", map[string]any{"room": sess.Code, "mode": sess.Mode})
	})

	s.io.OnEvent("/", "join", func(conn socketio.Conn, msg joinMsg) {
		sess, err := rm.Get(msg.Room)
		if err != nil {
			conn.Emit("error", map[string]any{"code": "room_not_found"})
			return
		}
		// Capacity is enforced at this boundary; a third relay participant
		// never reaches the phase machine.
		if !sess.SeatAvailable() {
			conn.Emit("error", map[string]any{"code": "room_full"})
			return
		}
		conn.Join(msg.Room)
		conn.Emit(game.EventStateUpdate, sess.Snapshot())
		sess.Deliver(&game.Join{
			EventID:  uuid.NewString(),
			Identity: conn.ID(),
			Name:     msg.Name,
			At:       time.Now().UTC(),
		})
	})

	s.io.OnEvent("/", "utterance", func(conn socketio.Conn, msg utteranceMsg) {
		sess, err := rm.Get(msg.Room)
		if err != nil {
			return
		}
		id := msg.ID
		if id == "" {
			id = uuid.NewString()
		}
		sess.Deliver(&game.Utterance{
			EventID:  id,
			Identity: conn.ID(),
			Text:     msg.Text,
			At:       time.Now().UTC(),
		})
	})

	s.io.OnEvent("/", "command", func(conn socketio.Conn, msg commandMsg) {
		sess, err := rm.Get(msg.Room)
		if err != nil {
			return
		}
		kind, ok := parseCommand(msg.Kind)
		if !ok {
			s.logger.Debug().Str("socket", conn.ID()).Str("kind", msg.Kind).Msg("unknown command kind dropped")
			return
		}
		id := msg.ID
		if id == "" {
			id = uuid.NewString()
		}
		sess.Deliver(&game.Command{
			EventID:  id,
			Identity: conn.ID(),
			Kind:     kind,
			At:       time.Now().UTC(),
		})
	})

	s.io.OnError("/", func(conn socketio.Conn, err error) {
		s.logger.Warn().Err(err).Msg("socket error")
	})

	s.io.OnDisconnect("/", func(conn socketio.Conn, reason string) {
		s.logger.Debug().Str("socket", conn.ID()).Str("reason", reason).Msg("socket disconnected")
	})
}

func parseCommand(kind string) (game.CommandKind, bool) {
	switch game.CommandKind(kind) {
	case game.CmdStartImprov, game.CmdEndScene, game.CmdEndGame:
		return game.CommandKind(kind), true
	default:
		return "", false
	}
}

// Mount starts the socket.io loop and wires it into the gin router. The
// caller owns the returned server and must Close it on shutdown.
func (s *Server) Mount(r *gin.Engine) *socketio.Server {
	go func() {
		if err := s.io.Serve(); err != nil {
			s.logger.Error().Err(err).Msg("socket.io serve")
		}
	}()
	handler := func(c *gin.Context) {
		s.io.ServeHTTP(c.Writer, c.Request)
	}
	r.GET("/socket.io/*any", handler)
	r.POST("/socket.io/*any", handler)
	return s.io
}
