package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/gate"
	"github.com/helrift/gate/gate/presence"
)

// PresenceHandler handles the game-server-facing presence endpoints plus the
// authed online-list query. All /api/gs routes are protected by the shared
// server-key middleware.
type PresenceHandler struct {
	dir *presence.Directory
}

// NewPresenceHandler creates a new PresenceHandler.
func NewPresenceHandler(dir *presence.Directory) *PresenceHandler {
	return &PresenceHandler{dir: dir}
}

type presenceEntry struct {
	ServerID      string `json:"serverId" binding:"required"`
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName" binding:"required"`
	Side          string `json:"side"`
}

// Register handles POST /api/gs/presence/register.
func (h *PresenceHandler) Register(c *gin.Context) {
	var req presenceEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dir.AddOrUpdate(req.ServerID, req.CharacterID, req.CharacterName, req.Side)
	c.JSON(http.StatusOK, gin.H{"message": "registered"})
}

// Unregister handles POST /api/gs/presence/unregister. A stale server id is
// a silent no-op by design, so this always answers 200.
func (h *PresenceHandler) Unregister(c *gin.Context) {
	var req presenceEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.dir.Remove(req.ServerID, req.CharacterID, req.CharacterName)
	c.JSON(http.StatusOK, gin.H{"message": "unregistered"})
}

type fullSyncRequest struct {
	ServerID string `json:"serverId" binding:"required"`
	Players  []struct {
		CharacterID   string `json:"characterId"`
		CharacterName string `json:"characterName"`
		Side          string `json:"side"`
	} `json:"players"`
}

// FullSync handles POST /api/gs/presence/fullsync: the server's membership
// becomes exactly the posted list.
func (h *PresenceHandler) FullSync(c *gin.Context) {
	var req fullSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	players := make([]gate.OnlinePlayer, 0, len(req.Players))
	for _, p := range req.Players {
		players = append(players, gate.OnlinePlayer{
			CharacterID:   p.CharacterID,
			CharacterName: p.CharacterName,
			Side:          p.Side,
		})
	}
	h.dir.ReplaceForServer(req.ServerID, players)
	c.JSON(http.StatusOK, gin.H{"message": "synced", "count": len(players)})
}

// Online handles GET /api/presence/online. Optional ?server= narrows to one
// game server.
func (h *PresenceHandler) Online(c *gin.Context) {
	var players []gate.OnlinePlayer
	if serverID := c.Query("server"); serverID != "" {
		players = h.dir.GetByServer(serverID)
	} else {
		players = h.dir.GetAll()
	}
	c.JSON(http.StatusOK, gin.H{"players": players, "count": len(players)})
}
