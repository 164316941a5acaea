package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/moderation"
	"github.com/whisper/moderation/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type manualWarningRequest struct {
	UserID      string             `json:"userId" binding:"required"`
	WarningType models.WarningType `json:"warningType"`
	Severity    models.Severity    `json:"severity"`
	Message     string             `json:"warningMessage"`
	ChatID      string             `json:"chatId"`
	MessageID   string             `json:"messageId"`
}

// IssueWarning handles POST /admin/warnings.
func (h *Handler) IssueWarning(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	var req manualWarningRequest
	if !bindJSON(c, &req) {
		return
	}
	in := moderation.ManualWarning{
		AdminID:  admin,
		Type:     req.WarningType,
		Severity: req.Severity,
		Message:  req.Message,
	}
	uid, err := optionalID(req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	in.UserID = *uid
	if in.ChatID, err = optionalID(req.ChatID); err != nil {
		writeError(c, err)
		return
	}
	if in.MessageID, err = optionalID(req.MessageID); err != nil {
		writeError(c, err)
		return
	}

	w, err := h.ledger.IssueManualWarning(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type updateWarningRequest struct {
	Severity *models.Severity `json:"severity"`
	Message  *string          `json:"warningMessage"`
}

// UpdateWarning handles PUT /admin/warnings/:id. Expiry is not recomputed.
func (h *Handler) UpdateWarning(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req updateWarningRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.ledger.UpdateWarning(c.Request.Context(), id, req.Severity, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// ResolveWarning handles POST /admin/warnings/:id/resolve. An empty body is
// allowed.
func (h *Handler) ResolveWarning(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	w, err := h.ledger.Resolve(c.Request.Context(), id, admin, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type bulkResolveRequest struct {
	WarningIDs []string `json:"warningIds"`
	Notes      string   `json:"notes"`
}

// BulkResolve handles POST /admin/warnings/bulk-resolve.
func (h *Handler) BulkResolve(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	var req bulkResolveRequest
	if !bindJSON(c, &req) {
		return
	}
	ids := make([]primitive.ObjectID, 0, len(req.WarningIDs))
	for _, hex := range req.WarningIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid warning id "+strconv.Quote(hex))
			return
		}
		ids = append(ids, id)
	}
	n, err := h.ledger.BulkResolve(c.Request.Context(), ids, admin, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": n})
}

// UserWarnings handles GET /admin/users/:id/warnings?status=&limit=.
func (h *Handler) UserWarnings(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	warnings, err := h.ledger.ListByUser(c.Request.Context(), id, repositories.WarningFilter{
		Status: models.WarningStatus(c.Query("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings, "count": len(warnings)})
}

type blockRequest struct {
	Reason        string             `json:"reason"`
	DurationHours int                `json:"durationHours"`
	FullBlock     bool               `json:"fullBlock"`
	Permanent     bool               `json:"permanent"`
	Origin        models.BlockOrigin `json:"origin"`
}

// BlockUser handles POST /admin/users/:id/block.
func (h *Handler) BlockUser(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req blockRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.bans.Block(c.Request.Context(), ban.Request{
		UserID:        id,
		Reason:        req.Reason,
		DurationHours: req.DurationHours,
		AdminID:       &admin,
		FullBlock:     req.FullBlock,
		Permanent:     req.Permanent,
		Origin:        req.Origin,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type unblockRequest struct {
	Reason string `json:"reason"`
}

// UnblockUser handles POST /admin/users/:id/unblock.
func (h *Handler) UnblockUser(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req unblockRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	r, err := h.bans.Unblock(c.Request.Context(), id, &admin, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ResetWarnings handles POST /admin/users/:id/reset-warnings.
func (h *Handler) ResetWarnings(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	resolved, unblocked, err := h.ledger.ResetUser(c.Request.Context(), id, admin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": resolved, "unblocked": unblocked})
}

// Restriction handles GET /admin/users/:id/restriction.
func (h *Handler) Restriction(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	r, err := h.bans.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// UserAudit handles GET /admin/users/:id/audit?limit=. Without an audit
// store the trail is empty.
func (h *Handler) UserAudit(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	events := []models.AuditEvent{}
	if h.audit != nil {
		limit, _ := strconv.Atoi(c.Query("limit"))
		var err error
		if events, err = h.audit.ListByUser(c.Request.Context(), id.Hex(), limit); err != nil {
			writeError(c, err)
			return
		}
		if events == nil {
			events = []models.AuditEvent{}
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *Handler) Stats(c *gin.Context) {
	s, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// Sweep handles POST /admin/moderation/sweep, a manual run of the periodic
// expiry sweep.
func (h *Handler) Sweep(c *gin.Context) {
	res, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
