package ws

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gardenperf.ai/internal/sim/entity"
	"gardenperf.ai/internal/sim/world"
)

// Server accepts player connections. Players speak binary protocol frames;
// the player id is given by the player_id query parameter.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	// OutQueue bounds the per-connection response queue.
	OutQueue int
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		OutQueue: 16,
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		pid, err := strconv.ParseInt(r.URL.Query().Get("player_id"), 10, 64)
		if err != nil || pid <= 0 {
			http.Error(rw, "player_id required", http.StatusBadRequest)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := uuid.NewString()
		out := make(chan []byte, s.OutQueue)
		select {
		case s.world.PlayerJoin() <- world.PlayerJoinRequest{SessionID: sid, PlayerID: entity.PlayerID(pid), Out: out}:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			s.world.Inbox() <- world.RequestEnvelope{SessionID: sid, Raw: msg}
		}

		// Cleanup.
		s.world.PlayerLeave() <- sid
	}
}
