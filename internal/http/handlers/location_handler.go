// README: Driver location ping handler.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabdesk/internal/modules/location"
	"cabdesk/internal/types"
)

type LocationReporter interface {
	ReportLocation(ctx context.Context, r location.Report) (location.ReportResult, error)
}

type LocationHandler struct {
	location LocationReporter
}

func NewLocationHandler(svc LocationReporter) *LocationHandler {
	return &LocationHandler{location: svc}
}

type locationReq struct {
	Lat          float64               `json:"lat"`
	Lng          float64               `json:"lng"`
	Availability location.Availability `json:"availability"`
	ReportedAt   *time.Time            `json:"reported_at"`
}

func (h *LocationHandler) Update(c *gin.Context) {
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	var at time.Time
	if req.ReportedAt != nil {
		at = *req.ReportedAt
	}
	res, err := h.location.ReportLocation(c.Request.Context(), location.Report{
		DriverID:     types.ID(c.Param("id")),
		Point:        types.Point{Lat: req.Lat, Lng: req.Lng},
		Availability: req.Availability,
		ReportedAt:   at,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}
