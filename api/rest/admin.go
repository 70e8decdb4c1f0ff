package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/gate/conn"
	"github.com/helrift/gate/gate/presence"
	"github.com/helrift/gate/gate/realm"
	"github.com/helrift/gate/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	registry *conn.Registry
	dir      *presence.Directory
	realm    *realm.Service
	sched    *scheduler.Scheduler
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	registry *conn.Registry,
	dir *presence.Directory,
	realmSvc *realm.Service,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{registry: registry, dir: dir, realm: realmSvc, sched: sched, logger: logger}
}

// Metrics returns gate health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_characters": h.dir.Count(),
		"head_count":        h.realm.HeadCount(),
		"game_servers":      h.registry.Count(),
		"login_allowed":     h.realm.IsLoginAllowed(),
		"scheduler_tasks":   h.sched.ListTickers(),
	})
}

// ListServers returns each connected game server and its attributed
// character count.
// GET /api/admin/servers
func (h *AdminHandler) ListServers(c *gin.Context) {
	type serverInfo struct {
		ServerID   string `json:"server_id"`
		Characters int    `json:"characters"`
		Open       bool   `json:"open"`
	}
	conns := h.registry.GetAll()
	result := make([]serverInfo, 0, len(conns))
	for id, g := range conns {
		result = append(result, serverInfo{
			ServerID:   id,
			Characters: len(h.dir.GetByServer(id)),
			Open:       !g.IsClosed(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"servers": result, "count": len(result)})
}

// DropServer force-closes a game server connection and clears its presence.
// POST /api/admin/servers/:id/drop
func (h *AdminHandler) DropServer(c *gin.Context) {
	serverID := c.Param("id")
	g := h.registry.Get(serverID)
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not connected"})
		return
	}
	g.Close()
	h.registry.Remove(serverID)
	h.dir.UnregisterServer(serverID)
	h.logger.Warn("game server dropped by admin", zap.String("server_id", serverID))
	c.JSON(http.StatusOK, gin.H{"message": "dropped"})
}

// ListSchedulerTasks returns registered periodic task names.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
