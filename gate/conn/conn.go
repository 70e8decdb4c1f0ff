package conn

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// Envelope is the wire wrapper for every message pushed to a game server.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// GameConn is the gate's side of one long-lived game-server connection. All
// writes go through a buffered channel drained by a single write pump, so a
// slow or broken connection delays only its own messages.
type GameConn struct {
	ServerID string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}

	logger *zap.Logger
}

// NewGameConn creates a GameConn and starts its write pump.
func NewGameConn(serverID string, ws *websocket.Conn, logger *zap.Logger) *GameConn {
	g := &GameConn{
		ServerID: serverID,
		Conn:     ws,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	go g.writePump()
	return g
}

// writePump drains SendChan and writes to the WebSocket connection. Sends
// periodic pings to detect dead connections quickly.
func (g *GameConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer g.Conn.Close()
	for {
		select {
		case data, ok := <-g.SendChan:
			if !ok {
				return
			}
			_ = g.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := g.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				g.logger.Warn("gs write error",
					zap.String("server_id", g.ServerID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = g.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := g.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-g.Done:
			_ = g.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send marshals an envelope and enqueues it non-blocking. Drops the message
// if the buffer is full or the connection is closed.
func (g *GameConn) Send(msgType string, payload interface{}) {
	if g.IsClosed() {
		return
	}
	data, err := json.Marshal(&Envelope{Type: msgType, Payload: payload})
	if err != nil {
		g.logger.Error("envelope marshal failed",
			zap.String("type", msgType),
			zap.Error(err))
		return
	}
	g.SendRaw(data)
}

// SendRaw enqueues pre-encoded bytes non-blocking.
func (g *GameConn) SendRaw(data []byte) {
	if g.IsClosed() {
		return
	}
	select {
	case g.SendChan <- data:
	case <-g.Done:
	default:
		if !g.IsClosed() {
			g.logger.Warn("gs send channel full, dropping message",
				zap.String("server_id", g.ServerID))
		}
	}
}

// Close signals the write pump to shut down.
func (g *GameConn) Close() {
	select {
	case <-g.Done:
	default:
		close(g.Done)
	}
}

// IsClosed reports whether the connection has been closed.
func (g *GameConn) IsClosed() bool {
	select {
	case <-g.Done:
		return true
	default:
		return false
	}
}
