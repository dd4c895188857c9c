// README: Booking aggregate, status definitions and the transition table.
package booking

import (
	"time"

	"cabdesk/internal/modules/distance"
	"cabdesk/internal/modules/pricing"
	"cabdesk/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusEnRoute   Status = "en_route"
	StatusPickedUp  Status = "picked_up"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

type DispatchMethod string

const (
	DispatchAuto   DispatchMethod = "auto"
	DispatchManual DispatchMethod = "manual"
)

func (m DispatchMethod) Valid() bool { return m == DispatchAuto || m == DispatchManual }

type Booking struct {
	ID                types.ID
	Status            Status
	StatusVersion     int
	PickupAddress     string
	DropoffAddress    string
	Pickup            types.Point
	Dropoff           types.Point
	Passengers        int
	Notes             *string
	DistanceMiles     float64
	DistanceSource    distance.Source
	FareStrategy      pricing.Strategy
	FlatRateID        *types.ID
	EstimatedFare     *types.Money
	FinalFare         *types.Money
	DispatchMethod    *DispatchMethod
	DriverID          *types.ID
	CabNumber         *string
	NeedsReassignment bool
	StatusReason      *string
	StatusFee         *types.Money
	CreatedAt         time.Time
	UpdatedAt         time.Time
	AssignedAt        *time.Time
	ClosedAt          *time.Time
}

type Event struct {
	ID         int64
	BookingID  types.ID
	Kind       string
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	Reason     *string
	CreatedAt  time.Time
}

// AllowedTransitions is the booking status flow. Pending -> Assigned only happens through
// assignment. Terminal states map to empty slices.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusEnRoute, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusEnRoute:   {StatusPickedUp, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusPickedUp:  {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	next, ok := AllowedTransitions[s]
	return ok && len(next) == 0
}

func (s Status) Known() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// Assignable reports whether a driver may be (re)assigned in this status.
func (s Status) Assignable() bool {
	return s == StatusPending || s == StatusAssigned
}
