package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradejournal/internal/apperr"
)

// respondError maps an apperr.Error (or a bare error) to the HTTP status
// conventions in the external interfaces: 400 validation, 401 authorization,
// 403 billing gate, 404 missing entity, 409 conflict, 500 internal.
func respondError(c *gin.Context, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal("unexpected_error", err)
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(ae.Kind), gin.H{
		"detail": gin.H{"code": ae.Code, "message": ae.Message},
	})
}

func invalidPayload(err error) error {
	return apperr.Wrap(apperr.KindValidation, "INVALID_PAYLOAD", "invalid request payload", err)
}

func respondValidation(c *gin.Context, code, message string) {
	respondError(c, apperr.Validation(code, message))
}

func respondConflict(c *gin.Context, code, message string) {
	respondError(c, apperr.Conflict(code, message))
}

func respondUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"detail": gin.H{"code": code, "message": message},
	})
}

func respondInternal(c *gin.Context, err error) {
	respondError(c, apperr.Internal("internal_error", err))
}

func respondNotFound(c *gin.Context, code, message string) {
	respondError(c, apperr.NotFound(code, message))
}
