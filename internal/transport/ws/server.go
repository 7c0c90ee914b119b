package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelrealm.ai/internal/sim/world"
)

const (
	writeWait   = 5 * time.Second
	readWait    = 60 * time.Second
	pingPeriod  = 25 * time.Second
	maxFrame    = 256 * 1024
	closeLinger = time.Second
)

type Config struct {
	MaxQueue      int
	InboundPerSec float64
	InboundBurst  int
}

// Server bridges websocket connections to the world loop. Each connection gets
// one reader and one writer goroutine; the world loop only ever touches the
// outbound channel and the close callback.
type Server struct {
	srv  *world.Server
	log  *log.Logger
	cfg  Config
	base context.Context

	upgrader websocket.Upgrader
}

// NewServer binds the handler to base; once base is done connections stop
// forwarding to the world loop.
func NewServer(base context.Context, srv *world.Server, cfg Config, logger *log.Logger) *Server {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 256
	}
	return &Server{
		srv:  srv,
		log:  logger,
		cfg:  cfg,
		base: base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type closeReq struct {
	code   int
	reason string
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrame)

		id := uuid.NewString()
		out := make(chan []byte, s.cfg.MaxQueue)
		closeCh := make(chan closeReq, 1)
		var (
			closeOnce sync.Once
			closing   atomic.Bool
		)

		wc := world.Conn{
			ID:         id,
			RemoteAddr: r.RemoteAddr,
			Out:        out,
			Close: func(code int, reason string) {
				closeOnce.Do(func() {
					closing.Store(true)
					closeCh <- closeReq{code: code, reason: reason}
				})
			},
		}
		// The loop must know the connection before the reader forwards frames.
		if err := s.srv.Connect(s.base, wc); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(s.base)
		defer cancel()

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			ping := time.NewTicker(pingPeriod)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					if err := write(conn, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						return
					}
				case req := <-closeCh:
					// Frames queued before the close request go out first.
					for drained := false; !drained; {
						select {
						case b := <-out:
							if err := write(conn, b); err != nil {
								drained = true
							}
						default:
							drained = true
						}
					}
					msg := websocket.FormatCloseMessage(req.code, req.reason)
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					time.AfterFunc(closeLinger, func() { _ = conn.Close() })
					return
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})

		limiter := rate.NewLimiter(rate.Limit(s.cfg.InboundPerSec), max(1, s.cfg.InboundBurst))
		if s.cfg.InboundPerSec <= 0 {
			limiter = rate.NewLimiter(rate.Inf, 1)
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
				continue
			}
			if !limiter.Allow() {
				s.log.Printf("inbound rate exceeded id=%s remote=%s", id, r.RemoteAddr)
				wc.Close(world.CloseQueueFull, "too many requests")
				break
			}
			select {
			case s.srv.Inbox() <- world.Inbound{ConnID: id, Raw: msg}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		if closing.Load() {
			select {
			case <-writerDone:
			case <-time.After(writeWait):
			}
		}
		cancel()

		// Cleanup.
		select {
		case s.srv.Disconnect() <- id:
		case <-s.base.Done():
		}
	}
}

func write(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
