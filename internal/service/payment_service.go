package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/payment"
	"courtbook/internal/tracing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const paymentProvider = "payment"

var errPaymentsDisabled = errors.New("payment gateway is not configured")

type paymentLifecycle interface {
	ConfirmPayment(ctx context.Context, bookingID int64, txnReference string) (*models.Booking, error)
	FailPayment(ctx context.Context, bookingID int64, txnReference, reason string) (*models.Booking, error)
}

type PaymentService struct {
	gateway   domain.PaymentGateway
	lifecycle paymentLifecycle
	bookings  domain.BookingRepository
	now       clock
	logger    zerolog.Logger
}

// NewPaymentService wires checkout. A nil gateway makes every call fail as an upstream error.
func NewPaymentService(gateway domain.PaymentGateway, lifecycle paymentLifecycle, bookings domain.BookingRepository, logger *zerolog.Logger) *PaymentService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "payment_service").Logger()
	}
	return &PaymentService{gateway: gateway, lifecycle: lifecycle, bookings: bookings, now: systemClock, logger: l}
}

func (s *PaymentService) CreateOrder(ctx context.Context, bookingID int64, actor *models.User) (*models.PaymentOrder, error) {
	if s.gateway == nil {
		return nil, domain.UpstreamError{Provider: paymentProvider, Err: errPaymentsDisabled}
	}
	b, err := s.payableBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if b.UserID != actor.ID {
		return nil, domain.ForbiddenError{Msg: "only the booking's user can pay for it"}
	}
	if b.Status != models.BookingPending {
		return nil, domain.ValidationError{Field: "status", Msg: "booking is not awaiting payment"}
	}
	if !b.HoldExpiresAt.IsZero() && !s.now().Before(b.HoldExpiresAt) {
		return nil, domain.ValidationError{Field: "status", Msg: "payment hold expired"}
	}

	order, err := s.gateway.CreateOrder(ctx, models.OrderRequest{
		BookingID:   b.ID,
		Amount:      b.TotalPrice,
		Currency:    b.Currency,
		Description: fmt.Sprintf("Court booking #%d", b.ID),
	})
	if err != nil {
		metrics.IncUpstreamFailure(paymentProvider)
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to create payment order")
		return nil, err
	}
	if err := s.bookings.SetPaymentOrder(ctx, b.ID, order.OrderID); err != nil {
		return nil, notFoundAs(err, "booking")
	}

	s.logger.Info().Int64("booking_id", b.ID).Str("order_id", order.OrderID).Msg("payment order created")
	return order, nil
}

// VerifyPayment checks the charge with the gateway before touching the booking.
// An empty txnReference falls back to the recorded payment order.
func (s *PaymentService) VerifyPayment(ctx context.Context, bookingID int64, actor *models.User, txnReference string) (*models.Booking, error) {
	ctx, span := tracing.Tracer().Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking.id", bookingID))

	if s.gateway == nil {
		return nil, domain.UpstreamError{Provider: paymentProvider, Err: errPaymentsDisabled}
	}
	b, err := s.payableBooking(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	txn := strings.TrimSpace(txnReference)
	if txn == "" {
		txn = b.PaymentOrderID
	}
	if txn == "" {
		return nil, domain.ValidationError{Field: "txnReference", Msg: "is required"}
	}
	if b.Status != models.BookingPending {
		// Already settled: the lifecycle answers idempotently or with a conflict.
		return s.lifecycle.ConfirmPayment(ctx, b.ID, txn)
	}

	charge, err := s.gateway.RetrieveCharge(ctx, txn)
	if err != nil {
		metrics.IncUpstreamFailure(paymentProvider)
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to retrieve charge")
		span.RecordError(err)
		return nil, err
	}
	return s.settle(ctx, b, charge)
}

// HandleWebhook re-reads the event from the gateway and settles the booking it refers to.
// Events that cannot be applied are acknowledged so the gateway stops redelivering them.
func (s *PaymentService) HandleWebhook(ctx context.Context, eventID string) error {
	if s.gateway == nil {
		return domain.UpstreamError{Provider: paymentProvider, Err: errPaymentsDisabled}
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.ValidationError{Field: "id", Msg: "event id is required"}
	}

	ev, err := s.gateway.RetrieveEvent(ctx, eventID)
	if err != nil {
		metrics.IncUpstreamFailure(paymentProvider)
		s.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to retrieve webhook event")
		return err
	}
	log := s.logger.With().Str("event_id", ev.ID).Str("key", ev.Key).Logger()
	if !payment.IsChargeComplete(ev) {
		log.Debug().Msg("ignoring webhook event")
		return nil
	}

	bookingID, err := strconv.ParseInt(ev.Charge.BookingID, 10, 64)
	if err != nil {
		log.Warn().Str("booking_id", ev.Charge.BookingID).Msg("charge without booking reference")
		return nil
	}
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		if domain.IsNotFound(notFoundAs(err, "booking")) {
			log.Warn().Int64("booking_id", bookingID).Msg("charge for unknown booking")
			return nil
		}
		return err
	}

	if _, err := s.settle(ctx, b, ev.Charge); err != nil {
		if domain.IsInvalidTransition(err) || domain.IsConflictingConfirmation(err) || domain.IsValidation(err) || domain.IsSlotConflict(err) {
			log.Warn().Err(err).Int64("booking_id", bookingID).Msg("webhook not applied")
			return nil
		}
		return err
	}
	return nil
}

// settle applies a gateway charge to its booking once the charge is proven to belong to it.
func (s *PaymentService) settle(ctx context.Context, b *models.Booking, charge *models.Charge) (*models.Booking, error) {
	if charge.BookingID != strconv.FormatInt(b.ID, 10) ||
		charge.Amount != b.TotalPrice ||
		!strings.EqualFold(charge.Currency, b.Currency) {
		s.logger.Warn().
			Int64("booking_id", b.ID).
			Str("charge_id", charge.ID).
			Str("charge_booking", charge.BookingID).
			Int64("charge_amount", charge.Amount).
			Msg("charge does not match booking")
		return nil, domain.ValidationError{Field: "txnReference", Msg: "charge does not match booking"}
	}

	switch charge.Status {
	case models.ChargeSuccessful:
		return s.lifecycle.ConfirmPayment(ctx, b.ID, charge.ID)
	case models.ChargeFailed:
		reason := charge.FailureReason
		if reason == "" {
			reason = "payment failed"
		}
		return s.lifecycle.FailPayment(ctx, b.ID, charge.ID, reason)
	default:
		return b, nil
	}
}

func (s *PaymentService) payableBooking(ctx context.Context, bookingID int64, actor *models.User) (*models.Booking, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, "booking")
	}
	if b.UserID != actor.ID && !isAdmin(actor) {
		return nil, domain.ForbiddenError{Msg: "not allowed to access this booking"}
	}
	return b, nil
}
