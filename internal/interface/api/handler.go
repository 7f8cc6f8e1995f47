package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"workorder-service/internal/domain"
	"workorder-service/internal/domain/entity"
	"workorder-service/internal/usecase"
	"workorder-service/pkg/logger"
)

// WorkOrderHandler adapts the engine's command/query API to HTTP for the
// presentation layer. No lifecycle logic lives here.
type WorkOrderHandler struct {
	engine *usecase.WorkOrderLifecycle
	log    logger.Logger
}

// NewWorkOrderHandler constructs the HTTP handler adapter.
func NewWorkOrderHandler(engine *usecase.WorkOrderLifecycle, log logger.Logger) *WorkOrderHandler {
	return &WorkOrderHandler{engine: engine, log: log}
}

type createRequest struct {
	Kind        string     `json:"kind" binding:"required,oneof=load unload"`
	DeclaredQty float64    `json:"declaredQty" binding:"required,gt=0"`
	Site        string     `json:"site" binding:"required"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	Priority    int        `json:"priority"`
	Notes       string     `json:"notes"`
}

type pauseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type progressRequest struct {
	Delta float64 `json:"delta"`
}

type declaredTotalRequest struct {
	NewTotal float64 `json:"newTotal" binding:"required,gt=0"`
}

type crewRequest struct {
	CrewMemberID string `json:"crewMemberId" binding:"required"`
}

type attendanceRequest struct {
	CrewMemberID string     `json:"crewMemberId" binding:"required"`
	Outcome      string     `json:"outcome" binding:"required"`
	EntryTime    *time.Time `json:"entryTime"`
	ExitTime     *time.Time `json:"exitTime"`
	Remark       string     `json:"remark"`
}

// Create handles POST /work-orders.
func (h *WorkOrderHandler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wo, err := h.engine.Create(c.Request.Context(), entity.WorkOrderKind(req.Kind), req.DeclaredQty, req.Site, req.ScheduledAt, req.Priority, req.Notes, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, wo)
}

// MarkReady handles POST /work-orders/:id/ready.
func (h *WorkOrderHandler) MarkReady(c *gin.Context) {
	wo, err := h.engine.MarkReady(c.Request.Context(), c.Param("id"), actor(c))
	h.respond(c, wo, err)
}

// Start handles POST /work-orders/:id/start.
func (h *WorkOrderHandler) Start(c *gin.Context) {
	wo, err := h.engine.Start(c.Request.Context(), c.Param("id"), actor(c))
	h.respond(c, wo, err)
}

// Pause handles POST /work-orders/:id/pause.
func (h *WorkOrderHandler) Pause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wo, err := h.engine.Pause(c.Request.Context(), c.Param("id"), req.Reason, actor(c))
	h.respond(c, wo, err)
}

// Resume handles POST /work-orders/:id/resume.
func (h *WorkOrderHandler) Resume(c *gin.Context) {
	wo, err := h.engine.Resume(c.Request.Context(), c.Param("id"), actor(c))
	h.respond(c, wo, err)
}

// AdjustProgress handles POST /work-orders/:id/progress.
func (h *WorkOrderHandler) AdjustProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wo, err := h.engine.AdjustProgress(c.Request.Context(), c.Param("id"), req.Delta, actor(c))
	h.respond(c, wo, err)
}

// EditDeclaredTotal handles PUT /work-orders/:id/declared-total.
func (h *WorkOrderHandler) EditDeclaredTotal(c *gin.Context) {
	var req declaredTotalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wo, err := h.engine.EditDeclaredTotal(c.Request.Context(), c.Param("id"), req.NewTotal, actor(c))
	h.respond(c, wo, err)
}

// Finish handles POST /work-orders/:id/finish. The advisory, when present,
// rides along with the snapshot so the caller can surface a confirmation.
func (h *WorkOrderHandler) Finish(c *gin.Context) {
	wo, advisory, err := h.engine.Finish(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workOrder": wo, "advisory": advisory})
}

// CheckFinish handles GET /work-orders/:id/finish-check.
func (h *WorkOrderHandler) CheckFinish(c *gin.Context) {
	advisory, err := h.engine.CheckFinish(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advisory": advisory})
}

// Cancel handles POST /work-orders/:id/cancel.
func (h *WorkOrderHandler) Cancel(c *gin.Context) {
	wo, err := h.engine.Cancel(c.Request.Context(), c.Param("id"), actor(c))
	h.respond(c, wo, err)
}

// Assign handles POST /work-orders/:id/crew. A 409 with the conflicting order
// id means the caller must confirm the reassignment.
func (h *WorkOrderHandler) Assign(c *gin.Context) {
	var req crewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wo, conflict, err := h.engine.Allocator().Assign(c.Request.Context(), c.Param("id"), req.CrewMemberID, actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if conflict != nil {
		c.JSON(http.StatusConflict, gin.H{
			"conflict":           true,
			"crewMemberId":       conflict.CrewMemberID,
			"conflictingOrderId": conflict.ConflictingOrderID,
		})
		return
	}
	c.JSON(http.StatusOK, wo)
}

// ConfirmReassign handles POST /work-orders/:id/crew/confirm.
func (h *WorkOrderHandler) ConfirmReassign(c *gin.Context) {
	var req crewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wo, err := h.engine.Allocator().ConfirmReassign(c.Request.Context(), c.Param("id"), req.CrewMemberID, actor(c))
	h.respond(c, wo, err)
}

// Revoke handles DELETE /work-orders/:id/crew/:crewMemberId.
func (h *WorkOrderHandler) Revoke(c *gin.Context) {
	wo, err := h.engine.Allocator().Revoke(c.Request.Context(), c.Param("id"), c.Param("crewMemberId"), actor(c))
	h.respond(c, wo, err)
}

// RecordAttendance handles POST /work-orders/:id/attendance.
func (h *WorkOrderHandler) RecordAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	wo, err := h.engine.Attendance().Record(c.Request.Context(), c.Param("id"), req.CrewMemberID,
		entity.AttendanceOutcome(req.Outcome), req.EntryTime, req.ExitTime, req.Remark, actor(c))
	h.respond(c, wo, err)
}

// RequestDelete handles DELETE /work-orders/:id.
func (h *WorkOrderHandler) RequestDelete(c *gin.Context) {
	handle, err := h.engine.SoftDelete().RequestDelete(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workOrderId": handle.WorkOrderID, "expiresAt": handle.ExpiresAt})
}

// Undo handles POST /work-orders/:id/undo.
func (h *WorkOrderHandler) Undo(c *gin.Context) {
	wo, err := h.engine.SoftDelete().Undo(c.Request.Context(), c.Param("id"), actor(c))
	h.respond(c, wo, err)
}

// Get handles GET /work-orders/:id.
func (h *WorkOrderHandler) Get(c *gin.Context) {
	wo, err := h.engine.Get(c.Param("id"))
	h.respond(c, wo, err)
}

// ListBySite handles GET /work-orders?site=...&status=...
func (h *WorkOrderHandler) ListBySite(c *gin.Context) {
	site := c.Query("site")
	if site == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site query parameter is required"})
		return
	}

	var statuses []entity.WorkOrderStatus
	for _, raw := range c.QueryArray("status") {
		if !entity.ValidWorkOrderStatus(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + raw})
			return
		}
		statuses = append(statuses, entity.WorkOrderStatus(raw))
	}

	c.JSON(http.StatusOK, h.engine.ListBySite(site, statuses...))
}

// History handles GET /work-orders/:id/history.
func (h *WorkOrderHandler) History(c *gin.Context) {
	entries, err := h.engine.History(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// RemainingCapacity handles GET /sites/:site/capacity. Sites without a
// configured ceiling report unlimited instead of a remaining figure, since
// infinity has no JSON encoding.
func (h *WorkOrderHandler) RemainingCapacity(c *gin.Context) {
	site := c.Param("site")
	remaining := h.engine.RemainingCapacity(site)
	if math.IsInf(remaining, 1) {
		c.JSON(http.StatusOK, gin.H{"site": site, "unlimited": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"site": site, "remaining": remaining})
}

func (h *WorkOrderHandler) respond(c *gin.Context, wo *entity.WorkOrder, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wo)
}

func (h *WorkOrderHandler) fail(c *gin.Context, err error) {
	var capErr *domain.CapacityError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &capErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"remaining": capErr.Remaining,
			"requested": capErr.Requested,
		})
	case errors.Is(err, domain.ErrCrewConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBelowProgressed),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrEmptyPauseReason),
		errors.Is(err, domain.ErrInactiveCrewMember),
		errors.Is(err, domain.ErrInvalidAttendancePayload):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPersistenceFailure):
		// The mutation is applied in memory and flagged unsynced.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "unsynced": true})
	default:
		h.log.Error("unhandled command error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func actor(c *gin.Context) string {
	if id := c.GetHeader("X-Actor-Id"); id != "" {
		return id
	}
	return "system"
}
