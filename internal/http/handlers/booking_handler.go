// README: Booking handlers for create/get/update/assign/status and the reassignment queue.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdesk/internal/modules/booking"
	"cabdesk/internal/modules/geocoding"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

type BookingService interface {
	Create(ctx context.Context, cmd booking.CreateCommand) (*booking.Booking, []types.Advisory, error)
	Update(ctx context.Context, cmd booking.UpdateCommand) (*booking.Booking, []types.Advisory, error)
	Assign(ctx context.Context, cmd booking.AssignCommand) (*booking.Booking, []types.Advisory, error)
	ChangeStatus(ctx context.Context, cmd booking.StatusCommand) (*booking.Booking, error)
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
	ListNeedingReassignment(ctx context.Context) ([]*booking.Booking, error)
}

type BookingHandler struct {
	bookings BookingService
}

func NewBookingHandler(svc BookingService) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type assignReq struct {
	Method    booking.DispatchMethod `json:"method"`
	DriverID  string                 `json:"driver_id"`
	CabNumber string                 `json:"cab_number"`
	ActorID   *string                `json:"actor_id"`
}

func (r assignReq) command(id types.ID) booking.AssignCommand {
	return booking.AssignCommand{
		BookingID: id,
		Method:    r.Method,
		DriverID:  types.ID(r.DriverID),
		CabNumber: r.CabNumber,
		ActorID:   actor(r.ActorID),
	}
}

type createBookingReq struct {
	Pickup       geocoding.Query  `json:"pickup"`
	Dropoff      geocoding.Query  `json:"dropoff"`
	Passengers   int              `json:"passengers"`
	FareStrategy pricing.Strategy `json:"fare_strategy"`
	FlatRateID   string           `json:"flat_rate_id"`
	Notes        *string          `json:"notes"`
	Dispatch     *assignReq       `json:"dispatch"`
}

type updateBookingReq struct {
	Pickup       *geocoding.Query  `json:"pickup"`
	Dropoff      *geocoding.Query  `json:"dropoff"`
	Passengers   *int              `json:"passengers"`
	FareStrategy *pricing.Strategy `json:"fare_strategy"`
	FlatRateID   *string           `json:"flat_rate_id"`
	Notes        *string           `json:"notes"`
}

type statusReq struct {
	Status  booking.Status       `json:"status"`
	Reason  *string              `json:"reason"`
	Fee     *float64             `json:"fee"`
	Trip    *pricing.TripMetrics `json:"trip"`
	ActorID *string              `json:"actor_id"`
}

type bookingResponse struct {
	Booking    booking.DTO      `json:"booking"`
	Advisories []types.Advisory `json:"advisories,omitempty"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := booking.CreateCommand{
		Pickup:     req.Pickup,
		Dropoff:    req.Dropoff,
		Passengers: req.Passengers,
		Strategy:   req.FareStrategy,
		FlatRateID: types.ID(req.FlatRateID),
		Notes:      req.Notes,
	}
	if req.Dispatch != nil {
		a := req.Dispatch.command("")
		cmd.Dispatch = &a
	}
	b, advs, err := h.bookings.Create(c.Request.Context(), cmd)
	if err != nil && b == nil {
		writeServiceError(c, err)
		return
	}
	if err != nil {
		// Created, but the requested dispatch failed.
		_ = c.Error(err)
		advs = append(advs, types.Advisory{Code: "dispatch_failed", Message: err.Error()})
	}
	writeJSON(c, http.StatusCreated, bookingResponse{Booking: b.ToDTO(), Advisories: advs})
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingResponse{Booking: b.ToDTO()})
}

func (h *BookingHandler) Update(c *gin.Context) {
	var req updateBookingReq
	if !bindJSON(c, &req) {
		return
	}
	cmd := booking.UpdateCommand{
		BookingID:  types.ID(c.Param("id")),
		Pickup:     req.Pickup,
		Dropoff:    req.Dropoff,
		Passengers: req.Passengers,
		Strategy:   req.FareStrategy,
		Notes:      req.Notes,
	}
	if req.FlatRateID != nil {
		id := types.ID(*req.FlatRateID)
		cmd.FlatRateID = &id
	}
	b, advs, err := h.bookings.Update(c.Request.Context(), cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingResponse{Booking: b.ToDTO(), Advisories: advs})
}

func (h *BookingHandler) Assign(c *gin.Context) {
	var req assignReq
	if !bindJSON(c, &req) {
		return
	}
	b, advs, err := h.bookings.Assign(c.Request.Context(), req.command(types.ID(c.Param("id"))))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingResponse{Booking: b.ToDTO(), Advisories: advs})
}

func (h *BookingHandler) ChangeStatus(c *gin.Context) {
	var req statusReq
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.bookings.ChangeStatus(c.Request.Context(), booking.StatusCommand{
		BookingID: types.ID(c.Param("id")),
		To:        req.Status,
		Reason:    req.Reason,
		Fee:       req.Fee,
		Trip:      req.Trip,
		ActorID:   actor(req.ActorID),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingResponse{Booking: b.ToDTO()})
}

func (h *BookingHandler) ListReassignment(c *gin.Context) {
	list, err := h.bookings.ListNeedingReassignment(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]booking.DTO, 0, len(list))
	for _, b := range list {
		out = append(out, b.ToDTO())
	}
	writeJSON(c, http.StatusOK, gin.H{"bookings": out})
}

func actor(id *string) *types.ID {
	if id == nil || *id == "" {
		return nil
	}
	v := types.ID(*id)
	return &v
}
