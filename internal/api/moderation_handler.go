package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/chat"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/moderation"
	"github.com/whisper/moderation/internal/repositories"
)

type scanRequest struct {
	UserID    string `json:"userId" binding:"required"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// ScanMessage handles POST /moderation/messages/scan. A blocked sender is
// refused with 403 before anything is scanned.
func (h *Handler) ScanMessage(c *gin.Context) {
	var req scanRequest
	if !bindJSON(c, &req) {
		return
	}
	ev, err := chat.NewMessageEvent(req.UserID, req.ChatID, req.MessageID, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	if !h.allow(c, req.UserID, h.scanRule) {
		return
	}

	ctx := c.Request.Context()
	decision, err := h.bans.CanSend(ctx, ev.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !decision.Allowed {
		c.JSON(http.StatusForbidden, decision)
		return
	}

	res, err := h.engine.HandleMessage(ctx, ev)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, moderation.NewModerationResult(moderation.ModerationRequest{
		RequestID: uuid.NewString(),
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		Text:      req.Text,
	}, res))
}

type loginCheckRequest struct {
	UserID   string `json:"userId"`
	Phone    string `json:"phone"`
	IP       string `json:"ip"`
	DeviceID string `json:"deviceId"`
}

// LoginCheck handles POST /moderation/login-check. The answer is always
// 200; Allowed carries the verdict.
func (h *Handler) LoginCheck(c *gin.Context) {
	var req loginCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	uid, err := optionalID(req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	ip := req.IP
	if ip == "" {
		ip = c.ClientIP()
	}
	if !h.allow(c, ip, h.loginRule) {
		return
	}

	id := ban.LoginIdentity{Phone: req.Phone, IP: ip, DeviceID: req.DeviceID}
	if uid != nil {
		id.UserID = *uid
	}
	decision, err := h.bans.CheckLogin(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// CanSend handles GET /moderation/users/:id/can-send.
func (h *Handler) CanSend(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	decision, err := h.bans.CanSend(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// MyWarnings handles GET /moderation/me/warnings.
func (h *Handler) MyWarnings(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	warnings, err := h.ledger.ListByUser(c.Request.Context(), uid, repositories.WarningFilter{
		Status: models.WarningStatus(c.Query("status")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": warnings, "count": len(warnings)})
}

type appealRequest struct {
	Reason string `json:"reason"`
}

// Appeal handles POST /moderation/warnings/:id/appeal. Only the warning's
// owner may appeal it.
func (h *Handler) Appeal(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req appealRequest
	if !bindJSON(c, &req) {
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.Reason)) < models.MinAppealReasonLength {
		errorResponse(c, http.StatusBadRequest, "appeal reason must be at least 10 characters")
		return
	}
	if !h.allow(c, uid.Hex(), h.appealRule) {
		return
	}

	w, err := h.ledger.Appeal(c.Request.Context(), id, uid, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
