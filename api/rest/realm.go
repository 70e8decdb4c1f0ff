package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/helrift/gate/audit"
	"github.com/helrift/gate/gate/realm"
	mw "github.com/helrift/gate/middleware"
	"github.com/helrift/gate/scheduler"
)

// shutdownExpiryGrace pads the expiry timer so a shutdown rescheduled at the
// last moment is not clipped by its predecessor's timer.
const shutdownExpiryGrace = 5 * time.Second

// RealmHandler exposes the realm state read and the operator actions.
// Operator routes sit behind AdminAuth; every operator action is audited.
type RealmHandler struct {
	svc   *realm.Service
	audit *audit.Service
	sched *scheduler.Scheduler
}

// NewRealmHandler creates a new RealmHandler.
func NewRealmHandler(svc *realm.Service, auditSvc *audit.Service, sched *scheduler.Scheduler) *RealmHandler {
	return &RealmHandler{svc: svc, audit: auditSvc, sched: sched}
}

// State handles GET /api/realm/state. Public: game servers and launchers
// poll it before attempting logins.
func (h *RealmHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetState())
}

func (h *RealmHandler) auditAction(c *gin.Context, action string, request, response interface{}) {
	h.audit.Log(audit.AuditEntry{
		TraceID:  mw.GetTraceID(c),
		Action:   action,
		Request:  request,
		Response: response,
		IP:       c.ClientIP(),
	})
}

type shutdownRequest struct {
	InSeconds int    `json:"inSeconds" binding:"required,min=1"`
	Message   string `json:"message"`
	By        string `json:"by"`
}

// ScheduleShutdown handles POST /api/admin/realm/shutdown. Scheduling again
// replaces the previous shutdown.
func (h *RealmHandler) ScheduleShutdown(c *gin.Context) {
	var req shutdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in := time.Duration(req.InSeconds) * time.Second
	st := h.svc.ScheduleShutdown(in, req.Message, req.By)
	// Once the window elapses the operation clears itself and the realm
	// reopens; rescheduling replaces this timer.
	h.sched.AddDelay("realm_shutdown_expire", in+shutdownExpiryGrace, func() {
		h.svc.ExpireShutdown()
	})
	h.auditAction(c, "realm.shutdown", req, st)
	c.JSON(http.StatusOK, st)
}

type maintenanceRequest struct {
	Message string `json:"message"`
	By      string `json:"by"`
}

// EnableMaintenance handles POST /api/admin/realm/maintenance.
func (h *RealmHandler) EnableMaintenance(c *gin.Context) {
	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st := h.svc.EnableMaintenance(req.Message, req.By)
	h.auditAction(c, "realm.maintenance", req, st)
	c.JSON(http.StatusOK, st)
}

// ClearOperations handles POST /api/admin/realm/clear.
func (h *RealmHandler) ClearOperations(c *gin.Context) {
	st := h.svc.ClearAll()
	h.auditAction(c, "realm.clear", nil, st)
	c.JSON(http.StatusOK, st)
}

// Operations handles GET /api/admin/realm/operations.
func (h *RealmHandler) Operations(c *gin.Context) {
	ops := h.svc.Operations()
	c.JSON(http.StatusOK, gin.H{"operations": ops, "count": len(ops)})
}
