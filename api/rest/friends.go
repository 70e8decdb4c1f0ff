package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/gate/friends"
	mw "github.com/helrift/gate/middleware"
)

// FriendsHandler handles the friend graph REST endpoints.
type FriendsHandler struct {
	svc *friends.Service
}

// NewFriendsHandler creates a new FriendsHandler.
func NewFriendsHandler(svc *friends.Service) *FriendsHandler {
	return &FriendsHandler{svc: svc}
}

type sendRequestBody struct {
	CharacterID string `json:"characterId" binding:"required"`
	TargetName  string `json:"targetName" binding:"required,max=32"`
}

// SendRequest handles POST /api/friends/request.
func (h *FriendsHandler) SendRequest(c *gin.Context) {
	var req sendRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)
	if err := h.svc.SendRequest(c.Request.Context(), accountID, req.CharacterID, req.TargetName); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "request sent"})
}

type requestActionBody struct {
	CharacterID      string `json:"characterId" binding:"required"`
	OtherCharacterID string `json:"otherCharacterId" binding:"required"`
}

// Accept handles POST /api/friends/accept.
func (h *FriendsHandler) Accept(c *gin.Context) {
	var req requestActionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)
	if err := h.svc.Accept(c.Request.Context(), accountID, req.CharacterID, req.OtherCharacterID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// Reject handles POST /api/friends/reject.
func (h *FriendsHandler) Reject(c *gin.Context) {
	var req requestActionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)
	if err := h.svc.Reject(c.Request.Context(), accountID, req.CharacterID, req.OtherCharacterID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rejected"})
}

// Cancel handles POST /api/friends/cancel.
func (h *FriendsHandler) Cancel(c *gin.Context) {
	var req requestActionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accountID := mw.GetAccountID(c)
	if err := h.svc.Cancel(c.Request.Context(), accountID, req.CharacterID, req.OtherCharacterID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancelled"})
}

// Delete handles DELETE /api/friends/:id?characterId=.
func (h *FriendsHandler) Delete(c *gin.Context) {
	characterID := c.Query("characterId")
	friendID := c.Param("id")
	if characterID == "" || friendID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "characterId and friend id required"})
		return
	}
	accountID := mw.GetAccountID(c)
	if err := h.svc.Delete(c.Request.Context(), accountID, characterID, friendID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// Snapshot handles GET /api/friends?characterId=.
func (h *FriendsHandler) Snapshot(c *gin.Context) {
	characterID := c.Query("characterId")
	if characterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "characterId required"})
		return
	}
	accountID := mw.GetAccountID(c)
	snap, err := h.svc.GetSnapshot(c.Request.Context(), accountID, characterID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
