package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/lexicon"
	"github.com/whisper/moderation/internal/models"
	"github.com/whisper/moderation/internal/repositories"
)

type termRequest struct {
	Word               string              `json:"word"`
	Variations         []string            `json:"variations"`
	Category           models.TermCategory `json:"category"`
	Severity           models.Severity     `json:"severity"`
	WarningMessage     string              `json:"warningMessage"`
	AutoBlockThreshold int                 `json:"autoBlockThreshold"`
	BlockDurationHours int                 `json:"blockDurationHours"`
}

type termPatchRequest struct {
	Word               *string              `json:"word"`
	Variations         []string             `json:"variations"`
	Category           *models.TermCategory `json:"category"`
	Severity           *models.Severity     `json:"severity"`
	WarningMessage     *string              `json:"warningMessage"`
	AutoBlockThreshold *int                 `json:"autoBlockThreshold"`
	BlockDurationHours *int                 `json:"blockDurationHours"`
	IsActive           *bool                `json:"isActive"`
}

// ListTerms handles GET /admin/banned-words?activeOnly=&category=&severity=.
func (h *Handler) ListTerms(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("activeOnly"))
	terms, err := h.lexicon.List(c.Request.Context(), repositories.TermFilter{
		ActiveOnly: activeOnly,
		Category:   models.TermCategory(c.Query("category")),
		Severity:   models.Severity(c.Query("severity")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bannedWords": terms, "count": len(terms)})
}

// CreateTerm handles POST /admin/banned-words.
func (h *Handler) CreateTerm(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	var req termRequest
	if !bindJSON(c, &req) {
		return
	}
	term, err := h.lexicon.Create(c.Request.Context(), lexicon.Input{
		Word:               req.Word,
		Variations:         req.Variations,
		Category:           req.Category,
		Severity:           req.Severity,
		WarningMessage:     req.WarningMessage,
		AutoBlockThreshold: req.AutoBlockThreshold,
		BlockDurationHours: req.BlockDurationHours,
	}, &admin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, term)
}

func (h *Handler) GetTerm(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	term, err := h.lexicon.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, term)
}

// UpdateTerm handles PUT /admin/banned-words/:id. Omitted fields are kept.
func (h *Handler) UpdateTerm(c *gin.Context) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req termPatchRequest
	if !bindJSON(c, &req) {
		return
	}
	term, err := h.lexicon.Update(c.Request.Context(), id, lexicon.Patch{
		Word:               req.Word,
		Variations:         req.Variations,
		Category:           req.Category,
		Severity:           req.Severity,
		WarningMessage:     req.WarningMessage,
		AutoBlockThreshold: req.AutoBlockThreshold,
		BlockDurationHours: req.BlockDurationHours,
		IsActive:           req.IsActive,
	}, &admin)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, term)
}

// DeactivateTerm handles DELETE /admin/banned-words/:id as a soft delete.
func (h *Handler) DeactivateTerm(c *gin.Context) {
	h.setTermActive(c, false)
}

func (h *Handler) ActivateTerm(c *gin.Context) {
	h.setTermActive(c, true)
}

func (h *Handler) setTermActive(c *gin.Context, active bool) {
	admin, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := paramID(c)
	if !ok {
		return
	}
	var term *models.BannedTerm
	var err error
	if active {
		term, err = h.lexicon.Activate(c.Request.Context(), id, &admin)
	} else {
		term, err = h.lexicon.Deactivate(c.Request.Context(), id, &admin)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, term)
}
