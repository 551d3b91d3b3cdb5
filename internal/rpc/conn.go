package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halogen-labs/halogen/internal/app/metrics"
	"github.com/halogen-labs/halogen/internal/app/services/notifications"
	"github.com/halogen-labs/halogen/pkg/logger"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 1 << 20
	outboundBuffer = 64
)

// Conn is one WebSocket connection of an authenticated session. Outbound
// frames funnel through a single write pump.
type Conn struct {
	UserID       string
	SessionToken string

	ws          *websocket.Conn
	out         chan []byte
	done        chan struct{}
	once        sync.Once
	sendTimeout time.Duration
	log         *logger.Logger
}

// request is the incoming call envelope.
type request struct {
	Func  string          `json:"func"`
	Data  json.RawMessage `json:"data"`
	Nonce uint64          `json:"nonce"`
}

func newConn(ws *websocket.Conn, userID, sessionToken string, log *logger.Logger) *Conn {
	return &Conn{
		UserID:       userID,
		SessionToken: sessionToken,
		ws:           ws,
		out:          make(chan []byte, outboundBuffer),
		done:         make(chan struct{}),
		sendTimeout:  writeTimeout,
		log:          log,
	}
}

// SendEvent pushes a fire-and-forget event frame.
func (c *Conn) SendEvent(event string, data json.RawMessage) {
	c.send(map[string]interface{}{
		"event": event,
		"data":  data,
	})
}

func (c *Conn) sendResponse(nonce uint64, result interface{}) {
	c.send(map[string]interface{}{
		"nonce":    nonce,
		"response": result,
	})
}

func (c *Conn) sendError(nonce *uint64, msg string) {
	frame := map[string]interface{}{"error": msg}
	if nonce != nil {
		frame["nonce"] = *nonce
	}
	c.send(frame)
}

func (c *Conn) send(frame interface{}) {
	raw, err := json.Marshal(frame)
	if err != nil {
		c.log.WithError(err).Errorf("failed to encode outbound frame")
		return
	}
	select {
	case c.out <- raw:
		return
	case <-c.done:
		return
	default:
	}

	// Buffer full. Dropping a nonce-correlated response would leave the
	// caller waiting forever, so block briefly and give up on the
	// connection if the pump cannot drain in time.
	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()
	select {
	case c.out <- raw:
	case <-c.done:
	case <-timer.C:
		c.log.Warnf("outbound buffer stalled, closing connection for user %s", c.UserID)
		c.close()
	}
}

// writePump serializes all writes to the socket. It exits when the
// connection closes or a write fails.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case raw := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.WithError(err).Warnf("websocket write failed for user %s", c.UserID)
				c.close()
				return
			}
		}
	}
}

// close tears the connection down. Closing the socket also unblocks the read
// loop.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// PageRegistry tracks open pages per session, as the notifications service
// does.
type PageRegistry interface {
	AddPage(sessionToken string, sink notifications.EventSink) (remove func())
}

// Server upgrades HTTP requests and runs the call loop per connection.
type Server struct {
	registry *Registry
	pages    PageRegistry
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewServer creates a server dispatching into registry. Every open
// connection registers as a page with the notification registry.
func NewServer(registry *Registry, pages PageRegistry, log *logger.Logger) *Server {
	return &Server{
		registry: registry,
		pages:    pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve upgrades the request and blocks until the connection closes.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID, sessionToken string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warnf("websocket upgrade failed")
		return
	}

	conn := newConn(ws, userID, sessionToken, s.log)
	go conn.writePump()
	metrics.WSConnectionOpened()

	removePage := s.pages.AddPage(sessionToken, conn)
	defer func() {
		removePage()
		conn.close()
		ws.Close()
		metrics.WSConnectionClosed()
	}()

	ws.SetReadLimit(maxMessageSize)
	s.readLoop(r.Context(), conn, ws)
}

func (s *Server) readLoop(ctx context.Context, conn *Conn, ws *websocket.Conn) {
	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warnf("websocket read failed for user %s", conn.UserID)
			}
			return
		}
		if msgType != websocket.TextMessage {
			conn.sendError(nil, "received frame is not text")
			continue
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			conn.sendError(nil, fmt.Sprintf("failed to parse the sent message: %v", err))
			continue
		}

		result, err := s.registry.Call(ctx, conn, req.Func, req.Data)
		if err != nil {
			nonce := req.Nonce
			conn.sendError(&nonce, fmt.Sprintf("error while calling (%s): %v", req.Func, err))
			continue
		}
		if result != nil {
			conn.sendResponse(req.Nonce, result)
		}
	}
}
