// README: Websocket handler streaming live estimates to a dispatcher console.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cabdesk/internal/modules/estimate"
	"cabdesk/internal/types"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 8 << 10
	wsSendBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type SessionFactory interface {
	NewSession(sink estimate.Sink) *estimate.Session
}

type EstimateStreamHandler struct {
	sessions SessionFactory
	logger   *zap.Logger
}

func NewEstimateStreamHandler(sessions SessionFactory, logger *zap.Logger) *EstimateStreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EstimateStreamHandler{sessions: sessions, logger: logger}
}

// Serve upgrades the request; each text frame from the client is an estimate.Request.
func (h *EstimateStreamHandler) Serve(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newWSClient(conn, h.logger)
	sess := h.sessions.NewSession(client)
	go client.writePump()

	client.readPump(func(raw []byte) {
		var req estimate.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			client.Send(estimate.Message{
				Type:      estimate.MessageAdvisory,
				Payload:   types.Advisory{Code: "bad_frame", Message: "frame is not a valid estimate request"},
				Timestamp: time.Now().UTC(),
			})
			return
		}
		sess.Apply(req)
	})
	sess.Close()
	client.close()
}

// wsClient implements estimate.Sink over one connection. Send never blocks: a client that
// falls a full buffer behind is disconnected.
type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newWSClient(conn *websocket.Conn, logger *zap.Logger) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer), done: make(chan struct{}), logger: logger}
}

func (w *wsClient) Send(m estimate.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		w.logger.Error("marshal websocket message", zap.String("type", string(m.Type)), zap.Error(err))
		return
	}
	select {
	case <-w.done:
	case w.send <- data:
	default:
		w.logger.Warn("websocket client too slow, disconnecting")
		w.close()
	}
}

func (w *wsClient) close() {
	w.once.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

func (w *wsClient) readPump(handle func([]byte)) {
	w.conn.SetReadLimit(wsReadLimit)
	_ = w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		_, raw, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Info("websocket closed", zap.Error(err))
			}
			return
		}
		handle(raw)
	}
}

func (w *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		w.close()
	}()
	for {
		select {
		case <-w.done:
			_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case data := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
