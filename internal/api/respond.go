package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/apperrors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// errorResponse sends the standard error body.
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict, apperrors.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the status for err. Internal errors are logged
// and hidden from the caller.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		errorResponse(c, status, "internal error")
		return
	}
	errorResponse(c, status, err.Error())
}

// paramID parses the :id path parameter.
func paramID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}

// optionalID parses a hex id from a request body; empty means absent.
func optionalID(hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, apperrors.Validation("invalid id %q", hex)
	}
	return &id, nil
}

// bindJSON decodes the body, writing a 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
