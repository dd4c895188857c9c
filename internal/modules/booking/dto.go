package booking

import (
	"time"

	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

// DTO is the wire form of a Booking. Points are GeoJSON, i.e. [longitude, latitude].
type DTO struct {
	ID                types.ID         `json:"id"`
	Status            Status           `json:"status"`
	Version           int              `json:"version"`
	PickupAddress     string           `json:"pickup_address,omitempty"`
	DropoffAddress    string           `json:"dropoff_address,omitempty"`
	PickupPoint       types.GeoPoint   `json:"pickup_point"`
	DropoffPoint      types.GeoPoint   `json:"dropoff_point"`
	Passengers        int              `json:"passengers"`
	Notes             *string          `json:"notes,omitempty"`
	DistanceMiles     float64          `json:"distance_miles"`
	DistanceSource    distance.Source  `json:"distance_source"`
	FareStrategy      pricing.Strategy `json:"fare_strategy"`
	FlatRateID        *types.ID        `json:"flat_rate_id,omitempty"`
	EstimatedFare     *string          `json:"estimated_fare,omitempty"`
	FinalFare         *string          `json:"final_fare,omitempty"`
	Currency          string           `json:"currency"`
	DispatchMethod    *DispatchMethod  `json:"dispatch_method,omitempty"`
	DriverID          *types.ID        `json:"driver_id,omitempty"`
	CabNumber         *string          `json:"cab_number,omitempty"`
	NeedsReassignment bool             `json:"needs_reassignment"`
	StatusReason      *string          `json:"status_reason,omitempty"`
	StatusFee         *string          `json:"status_fee,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	AssignedAt        *time.Time       `json:"assigned_at,omitempty"`
	ClosedAt          *time.Time       `json:"closed_at,omitempty"`
}

func (b *Booking) ToDTO() DTO {
	return DTO{
		ID:                b.ID,
		Status:            b.Status,
		Version:           b.StatusVersion,
		PickupAddress:     b.PickupAddress,
		DropoffAddress:    b.DropoffAddress,
		PickupPoint:       types.GeoPoint{Point: b.Pickup},
		DropoffPoint:      types.GeoPoint{Point: b.Dropoff},
		Passengers:        b.Passengers,
		Notes:             b.Notes,
		DistanceMiles:     types.Round6(b.DistanceMiles),
		DistanceSource:    b.DistanceSource,
		FareStrategy:      b.FareStrategy,
		FlatRateID:        b.FlatRateID,
		EstimatedFare:     moneyString(b.EstimatedFare),
		FinalFare:         moneyString(b.FinalFare),
		Currency:          currencyOf(b),
		DispatchMethod:    b.DispatchMethod,
		DriverID:          b.DriverID,
		CabNumber:         b.CabNumber,
		NeedsReassignment: b.NeedsReassignment,
		StatusReason:      b.StatusReason,
		StatusFee:         moneyString(b.StatusFee),
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
		AssignedAt:        b.AssignedAt,
		ClosedAt:          b.ClosedAt,
	}
}

func moneyString(m *types.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}
