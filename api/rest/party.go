package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/gate/party"
	mw "github.com/helrift/gate/middleware"
	"github.com/helrift/gate/model"
	"github.com/helrift/gate/store"
)

// PartyHandler handles party REST endpoints. Callers act through one of
// their own characters; ownership is checked against the character store
// before the coordinator is touched.
type PartyHandler struct {
	parties    *party.Coordinator
	characters store.CharacterStore
}

// NewPartyHandler creates a new PartyHandler.
func NewPartyHandler(parties *party.Coordinator, characters store.CharacterStore) *PartyHandler {
	return &PartyHandler{parties: parties, characters: characters}
}

// ownedCharacter loads the acting character, enforcing account ownership.
func (h *PartyHandler) ownedCharacter(c *gin.Context, characterID string) (*model.Character, bool) {
	accountID := mw.GetAccountID(c)
	char, err := h.characters.GetCharacter(c.Request.Context(), accountID, characterID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return char, true
}

type createPartyRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
	PartyName   string `json:"partyName" binding:"required,max=32"`
	Visibility  string `json:"visibility"`
}

// Create handles POST /api/party. The party's side is the creating
// character's side.
func (h *PartyHandler) Create(c *gin.Context) {
	var req createPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char, ok := h.ownedCharacter(c, req.CharacterID)
	if !ok {
		return
	}
	p, err := h.parties.Create(char.ID, char.AccountID, char.Name, req.PartyName, char.Side, req.Visibility)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": p})
}

type joinPartyRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
	PartyID     string `json:"partyId" binding:"required"`
}

// Join handles POST /api/party/join. A character already in a different
// party gets a 409 carrying that party.
func (h *PartyHandler) Join(c *gin.Context) {
	var req joinPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char, ok := h.ownedCharacter(c, req.CharacterID)
	if !ok {
		return
	}
	p, err := h.parties.Join(req.PartyID, char.ID, char.AccountID, char.Name)
	if err != nil {
		if p.ID != "" {
			c.JSON(http.StatusConflict, gin.H{"error": "already in a party", "party": p})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": p})
}

type leavePartyRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
}

// Leave handles POST /api/party/leave.
func (h *PartyHandler) Leave(c *gin.Context) {
	var req leavePartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char, ok := h.ownedCharacter(c, req.CharacterID)
	if !ok {
		return
	}
	p, alive, err := h.parties.Leave(char.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !alive {
		c.JSON(http.StatusOK, gin.H{"message": "party disbanded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": p})
}

type kickRequest struct {
	CharacterID       string `json:"characterId" binding:"required"`
	PartyID           string `json:"partyId" binding:"required"`
	TargetCharacterID string `json:"targetCharacterId" binding:"required"`
}

// Kick handles POST /api/party/kick. Only the leader's kick has effect.
func (h *PartyHandler) Kick(c *gin.Context) {
	var req kickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char, ok := h.ownedCharacter(c, req.CharacterID)
	if !ok {
		return
	}
	p, alive, err := h.parties.KickMember(req.PartyID, char.ID, req.TargetCharacterID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !alive {
		c.JSON(http.StatusOK, gin.H{"message": "party disbanded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": p})
}

type setLeaderRequest struct {
	CharacterID string `json:"characterId" binding:"required"`
	PartyID     string `json:"partyId" binding:"required"`
	NewLeaderID string `json:"newLeaderId" binding:"required"`
}

// SetLeader handles POST /api/party/leader.
func (h *PartyHandler) SetLeader(c *gin.Context) {
	var req setLeaderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.ownedCharacter(c, req.CharacterID); !ok {
		return
	}
	p, err := h.parties.SetLeader(req.PartyID, req.NewLeaderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": p})
}

// Mine handles GET /api/party?characterId=. Returns the character's current
// party or 404.
func (h *PartyHandler) Mine(c *gin.Context) {
	characterID := c.Query("characterId")
	if characterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "characterId required"})
		return
	}
	if _, ok := h.ownedCharacter(c, characterID); !ok {
		return
	}
	p, found := h.parties.GetByCharacterID(characterID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in a party"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"party": p})
}

// List handles GET /api/party/list?characterId=&side=. Visibility filtering
// happens in the coordinator against the viewer's friend set.
func (h *PartyHandler) List(c *gin.Context) {
	characterID := c.Query("characterId")
	if characterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "characterId required"})
		return
	}
	char, ok := h.ownedCharacter(c, characterID)
	if !ok {
		return
	}
	side := c.Query("side")
	if side == "" {
		side = char.Side
	}
	parties, err := h.parties.ListVisible(c.Request.Context(), side, char.AccountID, char.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parties": parties, "count": len(parties)})
}
