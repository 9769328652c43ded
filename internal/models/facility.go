package models

import "time"

type FacilityStatus string

const (
	FacilityDraft           FacilityStatus = "DRAFT"
	FacilityPendingApproval FacilityStatus = "PENDING_APPROVAL"
	FacilityApproved        FacilityStatus = "APPROVED"
	FacilityRejected        FacilityStatus = "REJECTED"
	FacilitySuspended       FacilityStatus = "SUSPENDED"
)

func ParseFacilityStatus(raw string) (FacilityStatus, bool) {
	s := FacilityStatus(raw)
	switch s {
	case FacilityDraft, FacilityPendingApproval, FacilityApproved, FacilityRejected, FacilitySuspended:
		return s, true
	default:
		return "", false
	}
}

// facilityTransitions lists, per source status, the targets and the role allowed to move there.
var facilityTransitions = map[FacilityStatus]map[FacilityStatus]Role{
	FacilityDraft:           {FacilityPendingApproval: RoleOwner},
	FacilityRejected:        {FacilityPendingApproval: RoleOwner},
	FacilityPendingApproval: {FacilityApproved: RoleAdmin, FacilityRejected: RoleAdmin},
	FacilityApproved:        {FacilitySuspended: RoleAdmin, FacilityPendingApproval: RoleOwner},
	FacilitySuspended:       {FacilityApproved: RoleAdmin},
}

// FacilityTransitionRole reports which role may move a facility from one status to another.
func FacilityTransitionRole(from, to FacilityStatus) (Role, bool) {
	role, ok := facilityTransitions[from][to]
	return role, ok
}

type Facility struct {
	ID              int64          `json:"id"`
	OwnerID         int64          `json:"ownerId"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Address         string         `json:"address"`
	City            string         `json:"city"`
	Status          FacilityStatus `json:"status"`
	AvgRating       float64        `json:"avgRating"`
	ReviewCount     int64          `json:"reviewCount"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`

	Courts []*Court `json:"courts,omitempty"`
	Photos []*Photo `json:"photos,omitempty"`
}

type FacilityFilter struct {
	Status  FacilityStatus
	City    string
	Sport   string
	OwnerID int64
}

// FacilityPatch carries the optional fields of a facility update.
type FacilityPatch struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Address     *string         `json:"address"`
	City        *string         `json:"city"`
	Status      *FacilityStatus `json:"status"`
	Reason      string          `json:"reason"`
}

func (p FacilityPatch) TouchesPublicFields() bool {
	return p.Name != nil || p.Description != nil || p.Address != nil || p.City != nil
}

type Court struct {
	ID           int64     `json:"id"`
	FacilityID   int64     `json:"facilityId"`
	Name         string    `json:"name"`
	SportType    string    `json:"sportType"`
	PricePerHour int64     `json:"pricePerHour"`
	OpenMinute   int       `json:"openMinute"`
	CloseMinute  int       `json:"closeMinute"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasOperatingHours is false when the court is bookable around the clock.
func (c *Court) HasOperatingHours() bool {
	return c.OpenMinute < c.CloseMinute
}

// AvailabilitySlot is an owner-imposed closure of a court.
type AvailabilitySlot struct {
	ID        int64     `json:"id"`
	CourtID   int64     `json:"courtId"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	IsBlocked bool      `json:"isBlocked"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Photo struct {
	ID         int64     `json:"id"`
	FacilityID int64     `json:"facilityId"`
	URL        string    `json:"url"`
	PublicID   string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Review struct {
	ID         int64     `json:"id"`
	FacilityID int64     `json:"facilityId"`
	UserID     int64     `json:"userId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type UploadedMedia struct {
	URL      string
	PublicID string
}
