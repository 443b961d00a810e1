package host

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gardenperf.ai/internal/protocol"
	"gardenperf.ai/internal/sim/world"
)

// Server accepts the host simulation's connection. The host must connect
// from loopback and open with HOST_HELLO.
type Server struct {
	world   *world.World
	log     *log.Logger
	schemas *protocol.HostSchemas

	upgrader websocket.Upgrader
	// AllowRemote accepts hosts from non-loopback addresses.
	AllowRemote bool
}

// NewServer validates inbound messages against schemas when it is non-nil.
func NewServer(w *world.World, logger *log.Logger, schemas *protocol.HostSchemas) *Server {
	return &Server{
		world:   w,
		log:     logger,
		schemas: schemas,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send HOST_HELLO first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello protocol.HostHelloMsg
		if err := json.Unmarshal(msg, &hello); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad hello"), time.Now().Add(time.Second))
			return
		}
		if hello.Type != protocol.TypeHostHello || hello.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HOST_HELLO"), time.Now().Add(time.Second))
			return
		}

		sid := uuid.NewString()
		out := make(chan []byte, 4096)
		respCh := make(chan world.HostAttachResponse, 1)
		select {
		case s.world.HostAttach() <- world.HostAttachRequest{SessionID: sid, HostName: hello.HostName, Out: out, Resp: respCh}:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		resp := <-respCh
		if !resp.OK {
			_ = writeJSON(conn, protocol.HostErrorMsg{Type: protocol.TypeHostError, Code: resp.Code, Message: "another host is attached"})
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, resp.Code), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.world.HostLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
		}()

		welcome := protocol.HostWelcomeMsg{
			Type:            protocol.TypeHostWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       sid,
			TickRateHz:      s.world.TickRateHz(),
		}
		for _, id := range resp.Concealed {
			welcome.Concealed = append(welcome.Concealed, int64(id))
		}
		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		s.log.Printf("host %q connected from %s", hello.HostName, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.sendError(out, protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if s.schemas != nil {
				if err := s.schemas.Validate(base.Type, msg); err != nil {
					s.sendError(out, protocol.ErrProtoSchema, err.Error())
					continue
				}
			}
			s.world.HostInbox() <- world.HostEnvelope{SessionID: sid, Type: base.Type, Raw: msg}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) sendError(out chan []byte, code, msg string) {
	b, err := json.Marshal(protocol.HostErrorMsg{Type: protocol.TypeHostError, Code: code, Message: msg})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
