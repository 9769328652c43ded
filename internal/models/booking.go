package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingFailed    BookingStatus = "FAILED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingFailed, BookingCancelled},
	BookingConfirmed: {BookingCancelled, BookingCompleted},
}

// CanTransition reports whether the booking state machine allows s -> to.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

type Booking struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"userId"`
	CourtID        int64         `json:"courtId"`
	FacilityID     int64         `json:"facilityId"`
	Start          time.Time     `json:"startDatetime"`
	End            time.Time     `json:"endDatetime"`
	TotalPrice     int64         `json:"totalPrice"`
	Currency       string        `json:"currency"`
	Status         BookingStatus `json:"status"`
	PaymentMethod  string        `json:"paymentMethod,omitempty"`
	PaymentOrderID string        `json:"paymentOrderId,omitempty"`
	TxnReference   string        `json:"txnReference,omitempty"`
	HoldExpiresAt  time.Time     `json:"holdExpiresAt"`
	CancelReason   string        `json:"cancelReason,omitempty"`
	CancelledBy    int64         `json:"cancelledBy,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Version        int64         `json:"version"`
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// BookingTransition is a guarded status change: it only applies while the row is still in From.
type BookingTransition struct {
	From         BookingStatus
	To           BookingStatus
	TxnReference string
	CancelReason string
	CancelledBy  int64
}

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

const (
	BusyBooking = "booking"
	BusyBlock   = "block"
)

// BusyInterval is a range on a court calendar that excludes new bookings.
type BusyInterval struct {
	Interval
	Kind   string `json:"kind"`
	RefID  int64  `json:"refId"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}
