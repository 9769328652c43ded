package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingFailed    = "booking.failed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"

	EventFacilitySubmitted = "facility.submitted"
	EventFacilityReviewed  = "facility.reviewed"

	EventUserRegistered = "user.registered"
	EventUserBanned     = "user.banned"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// BookingEventPayload is the booking snapshot carried by booking.* events.
type BookingEventPayload struct {
	BookingID    int64     `json:"booking_id"`
	UserID       int64     `json:"user_id"`
	CourtID      int64     `json:"court_id"`
	FacilityID   int64     `json:"facility_id"`
	Status       string    `json:"status"`
	PrevStatus   string    `json:"prev_status,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	TotalPrice   int64     `json:"total_price"`
	Currency     string    `json:"currency"`
	TxnReference string    `json:"txn_reference,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ChangedByID  int64     `json:"changed_by_id,omitempty"`
}

// FacilityEventPayload is carried by facility.* events.
type FacilityEventPayload struct {
	FacilityID int64  `json:"facility_id"`
	OwnerID    int64  `json:"owner_id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	Status     string `json:"status"`
	PrevStatus string `json:"prev_status,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// UserEventPayload is carried by user.* events.
type UserEventPayload struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Reason string `json:"reason,omitempty"`
	// Token is only set for user.registered when verification tokens are delivered out of band.
	Token string `json:"token,omitempty"`
}

type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for domain events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors go to logger.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "events").Logger()
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: l}
}

// Subscribe registers a handler for an event type, or for every type with AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers synchronously. A failing handler does not stop the rest.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
