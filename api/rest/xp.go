package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/gate/party"
)

// XPHandler ingests raw experience events from game servers.
type XPHandler struct {
	splitter *party.Splitter
}

// NewXPHandler creates a new XPHandler.
func NewXPHandler(splitter *party.Splitter) *XPHandler {
	return &XPHandler{splitter: splitter}
}

type xpBatchRequest struct {
	Events []party.XPEvent `json:"events" binding:"required,min=1"`
}

// Batch handles POST /api/gs/xp/batch. Splitting and delivery are
// best-effort; ingest always answers 202 once the batch parses.
func (h *XPHandler) Batch(c *gin.Context) {
	var req xpBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.splitter.ProcessBatch(req.Events)
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Events)})
}
