// README: One-shot estimate and nearby-driver handlers.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cabdesk/internal/modules/estimate"
	"cabdesk/internal/modules/matching"
	"cabdesk/internal/types"
)

type EstimateService interface {
	Estimate(ctx context.Context, req estimate.Request) (estimate.Result, error)
}

type NearbyLocator interface {
	Nearby(ctx context.Context, pickup types.Point, radiusMiles float64) ([]matching.Candidate, *types.Advisory)
}

type EstimateHandler struct {
	estimates EstimateService
	locator   NearbyLocator
}

func NewEstimateHandler(svc EstimateService, locator NearbyLocator) *EstimateHandler {
	return &EstimateHandler{estimates: svc, locator: locator}
}

func (h *EstimateHandler) Estimate(c *gin.Context) {
	var req estimate.Request
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.estimates.Estimate(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *EstimateHandler) Nearby(c *gin.Context) {
	lat, ok := floatQuery(c, "lat", true)
	if !ok {
		return
	}
	lng, ok := floatQuery(c, "lng", true)
	if !ok {
		return
	}
	radius, ok := floatQuery(c, "radius", false)
	if !ok {
		return
	}
	if radius < 0 {
		writeFieldError(c, "radius", "must not be negative")
		return
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		writeFieldError(c, "lat", "is not a valid coordinate")
		return
	}

	cands, adv := h.locator.Nearby(c.Request.Context(), p, radius)
	resp := gin.H{"drivers": cands}
	if cands == nil {
		resp["drivers"] = []matching.Candidate{}
	}
	if adv != nil {
		resp["advisories"] = []types.Advisory{*adv}
	}
	writeJSON(c, http.StatusOK, resp)
}

func floatQuery(c *gin.Context, name string, required bool) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			writeFieldError(c, name, "is required")
			return 0, false
		}
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeFieldError(c, name, "must be a number")
		return 0, false
	}
	return v, true
}
