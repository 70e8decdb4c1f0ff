package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/gate/notify"
)

// ChatHandler relays chat between game servers. The gate does not interpret
// chat payloads; it publishes them onto the chat channel, and each instance's
// relay subscriber fans them out to its connected servers.
type ChatHandler struct {
	relay *notify.ChatRelay
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(relay *notify.ChatRelay) *ChatHandler {
	return &ChatHandler{relay: relay}
}

type chatRelayRequest struct {
	Recipients []string        `json:"recipients" binding:"required,min=1"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
}

// Broadcast handles POST /api/gs/chat/broadcast.
func (h *ChatHandler) Broadcast(c *gin.Context) {
	var req chatRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.relay.Relay(c.Request.Context(), "chat.broadcast", req.Recipients, req.Payload); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "relayed"})
}

// Whisper handles POST /api/gs/chat/whisper.
func (h *ChatHandler) Whisper(c *gin.Context) {
	var req chatRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.relay.Relay(c.Request.Context(), "chat.whisper.deliver", req.Recipients, req.Payload); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "relayed"})
}
