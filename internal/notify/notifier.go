// Package notify turns domain events into admin alerts.
package notify

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

const timeLayout = "02 Jan 2006 15:04"

// Notifier sends admin chat messages for the events moderators act on.
type Notifier struct {
	sender   domain.MessageSender
	chatIDs  []int64
	location *time.Location
	logger   zerolog.Logger
}

func NewNotifier(sender domain.MessageSender, chatIDs []int64, loc *time.Location, logger *zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "notify").Logger()
	}
	return &Notifier{sender: sender, chatIDs: chatIDs, location: loc, logger: l}
}

// Register subscribes the notifier to the bus.
func (n *Notifier) Register(bus *events.EventBus) {
	for _, t := range []string{
		events.EventFacilitySubmitted,
		events.EventBookingConfirmed,
		events.EventBookingCancelled,
		events.EventUserBanned,
	} {
		bus.Subscribe(t, n.Handle)
	}
	bus.Subscribe(events.EventUserRegistered, n.logRegistration)
}

func (n *Notifier) Handle(event *events.Event) error {
	text, err := n.format(event)
	if err != nil {
		return err
	}
	if text == "" || n.sender == nil {
		return nil
	}

	var failed int
	for _, chatID := range n.chatIDs {
		if err := n.sender.SendMessage(chatID, text); err != nil {
			failed++
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Str("event", event.Type).Msg("notification failed")
		}
	}
	if failed > 0 && failed == len(n.chatIDs) {
		return fmt.Errorf("notification %s not delivered to any chat", event.Type)
	}
	return nil
}

func (n *Notifier) format(event *events.Event) (string, error) {
	switch event.Type {
	case events.EventFacilitySubmitted:
		var p events.FacilityEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode facility payload: %w", err)
		}
		return fmt.Sprintf("🏟 <b>Facility awaiting approval</b>\n#%d %s (%s)\nOwner: %d",
			p.FacilityID, html.EscapeString(p.Name), html.EscapeString(p.City), p.OwnerID), nil

	case events.EventBookingConfirmed, events.EventBookingCancelled:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode booking payload: %w", err)
		}
		title := "✅ <b>Booking confirmed</b>"
		if event.Type == events.EventBookingCancelled {
			title = "❌ <b>Booking cancelled</b>"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n#%d court %d\n%s - %s\n%s %s",
			title, p.BookingID, p.CourtID,
			p.Start.In(n.location).Format(timeLayout), p.End.In(n.location).Format("15:04"),
			models.FormatMinor(p.TotalPrice), strings.ToUpper(p.Currency))
		if p.Reason != "" {
			fmt.Fprintf(&b, "\nReason: %s", html.EscapeString(p.Reason))
		}
		return b.String(), nil

	case events.EventUserBanned:
		var p events.UserEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("decode user payload: %w", err)
		}
		return fmt.Sprintf("🚫 <b>User banned</b>\n#%d %s\nReason: %s",
			p.UserID, html.EscapeString(p.Email), html.EscapeString(p.Reason)), nil
	}
	return "", nil
}

// logRegistration writes the verification token to the log when the event carries one.
func (n *Notifier) logRegistration(event *events.Event) error {
	var p events.UserEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decode user payload: %w", err)
	}
	if p.Token == "" {
		return nil
	}
	n.logger.Info().Int64("user_id", p.UserID).Str("email", p.Email).Str("verification_token", p.Token).
		Msg("verification token issued")
	return nil
}
