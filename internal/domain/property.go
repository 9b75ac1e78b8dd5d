package domain

import "time"

type Property struct {
	ID        int64
	Name      string
	Address   string
	City      *string
	Published bool
	DeletedAt *time.Time
}

// RoomStatus is always derived from lease state (plus the out-of-band
// maintenance flag), never read back from a stored column.
type RoomStatus string

const (
	StatusAvailable   RoomStatus = "available"
	StatusOccupied    RoomStatus = "occupied"
	StatusMaintenance RoomStatus = "maintenance"
)

type Room struct {
	ID          int64
	PropertyID  int64
	Number      string
	Floor       int
	MonthlyRent int64 // whole francs per month
	Maintenance bool
	Leases      []Lease // active leases, annotated by the repository
}

type Lease struct {
	ID       int64
	RoomID   int64
	TenantID int64
	MoveIn   time.Time
	MoveOut  *time.Time // nil = open-ended
	Active   bool
}

// RoomView is the read model the wizard presents: a room plus its
// derived status at the query instant.
type RoomView struct {
	ID            int64      `json:"id"`
	PropertyID    int64      `json:"property_id"`
	Number        string     `json:"number"`
	Floor         int        `json:"floor"`
	MonthlyRent   int64      `json:"monthly_rent"`
	Status        RoomStatus `json:"status"`
	OccupiedUntil *time.Time `json:"occupied_until,omitempty"`
}
