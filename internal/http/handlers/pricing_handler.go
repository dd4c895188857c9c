// README: Fare configuration and flat-rate handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

type PricingService interface {
	GetConfig(ctx context.Context, operator types.ID) (*pricing.FareConfig, error)
	SaveConfig(ctx context.Context, operator types.ID, in pricing.ConfigInput) (*pricing.FareConfig, error)
	ReplaceOtherFees(ctx context.Context, operator types.ID, fees []pricing.Fee) ([]pricing.Fee, error)
	GetFlatRate(ctx context.Context, operator, id types.ID) (*pricing.FlatRate, error)
	CreateFlatRate(ctx context.Context, operator types.ID, in pricing.FlatRateInput) (*pricing.FlatRate, error)
	UpdateFlatRate(ctx context.Context, operator, id types.ID, in pricing.FlatRateInput) (*pricing.FlatRate, error)
	DeleteFlatRate(ctx context.Context, operator, id types.ID) error
	ListFlatRates(ctx context.Context, operator types.ID, activeOnly bool) ([]pricing.FlatRate, error)
}

type PricingHandler struct {
	pricing PricingService
}

func NewPricingHandler(svc PricingService) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

func (h *PricingHandler) GetConfig(c *gin.Context) {
	cfg, err := h.pricing.GetConfig(c.Request.Context(), operatorID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cfg)
}

func (h *PricingHandler) SaveConfig(c *gin.Context) {
	var in pricing.ConfigInput
	if !bindJSON(c, &in) {
		return
	}
	cfg, err := h.pricing.SaveConfig(c.Request.Context(), operatorID(c), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cfg)
}

// ReplaceOtherFees takes the whole list; entries missing from it are removed.
func (h *PricingHandler) ReplaceOtherFees(c *gin.Context) {
	var req struct {
		OtherFees []pricing.Fee `json:"other_fees"`
	}
	if !bindJSON(c, &req) {
		return
	}
	fees, err := h.pricing.ReplaceOtherFees(c.Request.Context(), operatorID(c), req.OtherFees)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if fees == nil {
		fees = []pricing.Fee{}
	}
	writeJSON(c, http.StatusOK, gin.H{"other_fees": fees})
}

func (h *PricingHandler) ListFlatRates(c *gin.Context) {
	rates, err := h.pricing.ListFlatRates(c.Request.Context(), operatorID(c), c.Query("active") == "true")
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if rates == nil {
		rates = []pricing.FlatRate{}
	}
	writeJSON(c, http.StatusOK, gin.H{"flat_rates": rates})
}

func (h *PricingHandler) GetFlatRate(c *gin.Context) {
	rate, err := h.pricing.GetFlatRate(c.Request.Context(), operatorID(c), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rate)
}

func (h *PricingHandler) CreateFlatRate(c *gin.Context) {
	var in pricing.FlatRateInput
	if !bindJSON(c, &in) {
		return
	}
	rate, err := h.pricing.CreateFlatRate(c.Request.Context(), operatorID(c), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, rate)
}

func (h *PricingHandler) UpdateFlatRate(c *gin.Context) {
	var in pricing.FlatRateInput
	if !bindJSON(c, &in) {
		return
	}
	rate, err := h.pricing.UpdateFlatRate(c.Request.Context(), operatorID(c), types.ID(c.Param("id")), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rate)
}

func (h *PricingHandler) DeleteFlatRate(c *gin.Context) {
	if err := h.pricing.DeleteFlatRate(c.Request.Context(), operatorID(c), types.ID(c.Param("id"))); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
