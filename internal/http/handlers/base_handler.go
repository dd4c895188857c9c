// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdesk/internal/modules/booking"
	"cabdesk/internal/modules/location"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeFieldError(c *gin.Context, field, msg string) {
	writeJSON(c, http.StatusBadRequest, errorResponse{Error: field + " " + msg, Field: field})
}

// writeServiceError maps module errors to HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	var verr *types.ValidationError
	var perr *types.PersistenceError
	switch {
	case errors.As(err, &verr):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, pricing.ErrConfigNotFound),
		errors.Is(err, pricing.ErrFlatRateNotFound),
		errors.Is(err, location.ErrDriverNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidState), errors.Is(err, booking.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.As(err, &perr):
		_ = c.Error(err)
		writeError(c, http.StatusBadGateway, "the change could not be saved, please try again")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// bindJSON decodes the body or writes a 400 and reports false.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func operatorID(c *gin.Context) types.ID {
	return types.ID(c.DefaultQuery("operator", string(pricing.DefaultOperator)))
}
