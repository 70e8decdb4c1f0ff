// Package ws hosts the long-lived WebSocket endpoint game servers connect to
// for push delivery.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/helrift/gate/config"
	"github.com/helrift/gate/gate/conn"
	"github.com/helrift/gate/gate/presence"
	"github.com/helrift/gate/gate/realm"
	mw "github.com/helrift/gate/middleware"
	"go.uber.org/zap"
)

// Gateway is the Gin handler for GET /ws/gameservers.
type Gateway struct {
	registry *conn.Registry
	dir      *presence.Directory
	realm    *realm.Service
	sec      config.SecurityConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewGateway creates the game-server WebSocket gateway.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewGateway(
	registry *conn.Registry,
	dir *presence.Directory,
	realmSvc *realm.Service,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *Gateway {
	g := &Gateway{
		registry: registry,
		dir:      dir,
		realm:    realmSvc,
		sec:      sec,
		logger:   logger,
	}
	allowed := sec.AllowedOrigins
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return g
}

// Serve handles GET /ws/gameservers?id=<serverId>.
// The connecting server presents the shared secret in the X-GameServer-Key
// header and may pick its own id; without one a random id is assigned. On
// accept the current realm state is pushed immediately.
func (g *Gateway) Serve(c *gin.Context) {
	if g.sec.GameServerKey == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "game server endpoint disabled"})
		return
	}
	if c.GetHeader(mw.GameServerKeyHeader) != g.sec.GameServerKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	serverID := c.Query("id")
	if serverID == "" {
		serverID = uuid.NewString()
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("gs ws upgrade failed", zap.Error(err))
		return
	}

	gc := conn.NewGameConn(serverID, ws, g.logger)
	g.registry.Add(serverID, gc)
	g.dir.RegisterServer(serverID)

	gc.Send(realm.MsgStateUpdated, g.realm.GetState())

	// The gate pushes; inbound traffic arrives over REST. The read loop only
	// services pongs and detects disconnect.
	go g.readLoop(gc)
}

func (g *Gateway) readLoop(gc *conn.GameConn) {
	defer func() {
		gc.Close()
		// Identity-checked: if the server already reconnected under the same
		// id, the registry holds the newer connection and must keep it.
		g.registry.RemoveConn(gc.ServerID, gc)
		g.logger.Info("game server disconnected", zap.String("server_id", gc.ServerID))
	}()
	for {
		if _, _, err := gc.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
