// README: Driver roster entries and location reports.
package location

import (
	"time"

	"cabdesk/internal/types"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

type Availability string

const (
	Online  Availability = "online"
	Offline Availability = "offline"
)

// Driver is one roster row with the driver's last reported position. Point is nil when the
// driver never reported a usable location.
type Driver struct {
	ID           types.ID
	Name         string
	CabNumber    *string
	Point        *types.Point
	ReportedAt   time.Time
	Status       Status
	Availability Availability
	DeviceToken  string
}

// Eligible reports whether the driver can be offered a booking.
func (d Driver) Eligible() bool {
	return d.Status == StatusActive && d.Availability == Online
}

type RosterQuery struct {
	Center      types.Point
	RadiusMiles float64
}

// Report is a position ping from a driver's device.
type Report struct {
	DriverID     types.ID     `json:"driver_id"`
	Point        types.Point  `json:"point"`
	Availability Availability `json:"availability"`
	ReportedAt   time.Time    `json:"reported_at"`
}

type ReportResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}
