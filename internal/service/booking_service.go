package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/tracing"
	"courtbook/internal/worker"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const slotTakenReason = "slot taken before payment was confirmed"

var transitionEvents = map[models.BookingStatus]string{
	models.BookingConfirmed: events.EventBookingConfirmed,
	models.BookingFailed:    events.EventBookingFailed,
	models.BookingCancelled: events.EventBookingCancelled,
	models.BookingCompleted: events.EventBookingCompleted,
}

type BookingService struct {
	bookings     domain.BookingRepository
	facilities   domain.FacilityRepository
	availability *AvailabilityService
	eventBus     domain.EventPublisher
	ledger       domain.LedgerQueue
	cfg          config.BookingConfig
	now          clock
	logger       zerolog.Logger
}

// NewBookingService wires the booking writer. ledger may be nil when no external ledger is configured.
func NewBookingService(
	bookings domain.BookingRepository,
	facilities domain.FacilityRepository,
	eventBus domain.EventPublisher,
	ledger domain.LedgerQueue,
	cfg config.BookingConfig,
	loc *time.Location,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 30
	}
	if cfg.MaxAdvanceDays <= 0 {
		cfg.MaxAdvanceDays = 90
	}
	if cfg.PendingHold <= 0 {
		cfg.PendingHold = 15 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "THB"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "booking_service").Logger()
	}
	return &BookingService{
		bookings:     bookings,
		facilities:   facilities,
		availability: NewAvailabilityService(bookings, facilities, loc),
		eventBus:     eventBus,
		ledger:       ledger,
		cfg:          cfg,
		now:          systemClock,
		logger:       l,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, actor *models.User, req models.CreateBookingRequest) (booking *models.Booking, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "BookingService.CreateBooking")
	span.SetAttributes(attribute.Int64("court.id", req.CourtID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := s.now()
	iv := models.Interval{Start: req.Start.UTC(), End: req.End.UTC()}
	court, err := s.availability.checkInterval(ctx, req.CourtID, iv, now)
	if err != nil {
		return nil, err
	}
	if !court.IsActive {
		return nil, domain.NotFoundError{Resource: "court"}
	}
	facility, err := s.facilities.GetFacility(ctx, court.FacilityID)
	if err != nil {
		return nil, notFoundAs(err, "facility")
	}
	if facility.Status != models.FacilityApproved {
		return nil, domain.NotFoundError{Resource: "facility"}
	}

	slot := time.Duration(s.cfg.SlotMinutes) * time.Minute
	if iv.Duration()%slot != 0 {
		return nil, domain.InvalidInterval(fmt.Sprintf("duration must be a multiple of %d minutes", s.cfg.SlotMinutes))
	}
	if iv.Start.After(now.AddDate(0, 0, s.cfg.MaxAdvanceDays)) {
		return nil, domain.ValidationError{
			Field: "startDatetime",
			Msg:   fmt.Sprintf("cannot book more than %d days ahead", s.cfg.MaxAdvanceDays),
		}
	}

	minutes := int64(iv.Duration() / time.Minute)
	booking = &models.Booking{
		UserID:        actor.ID,
		CourtID:       court.ID,
		FacilityID:    facility.ID,
		Start:         iv.Start,
		End:           iv.End,
		TotalPrice:    court.PricePerHour * minutes / 60,
		Currency:      strings.ToUpper(s.cfg.Currency),
		Status:        models.BookingPending,
		PaymentMethod: req.PaymentMethod,
		HoldExpiresAt: now.Add(s.cfg.PendingHold),
	}

	if err := s.bookings.CreateBookingWithLock(ctx, booking, now); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncSlotConflict()
			return nil, domain.SlotConflictError{CourtID: court.ID}
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("booking.id", booking.ID))

	metrics.IncBookingCreated()
	s.publish(events.EventBookingCreated, booking, "", "", actor.ID)
	s.enqueueLedger(ctx, worker.TaskUpsert, booking)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("court_id", booking.CourtID).
		Int64("user_id", booking.UserID).
		Time("start", booking.Start).
		Msg("booking created")
	return booking, nil
}

// ConfirmPayment moves a pending booking to CONFIRMED. Repeating the call with the same
// transaction reference returns the stored booking unchanged.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID int64, txnReference string) (*models.Booking, error) {
	txnReference = strings.TrimSpace(txnReference)
	if txnReference == "" {
		return nil, domain.ValidationError{Field: "txnReference", Msg: "is required"}
	}
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if done, err := confirmOutcome(b, txnReference); done {
		return b, err
	}

	tr := models.BookingTransition{From: models.BookingPending, To: models.BookingConfirmed, TxnReference: txnReference}
	updated, err := s.transition(ctx, b, tr, 0)
	if errors.Is(err, database.ErrSlotTaken) {
		return nil, s.releaseTakenSlot(ctx, b, txnReference)
	}
	if !errors.Is(err, database.ErrConcurrentModification) {
		return updated, err
	}

	// Someone else moved it first; report against what they wrote.
	current, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if done, err := confirmOutcome(current, txnReference); done {
		return current, err
	}
	return nil, domain.TransitionError{Resource: "booking", From: string(current.Status), To: string(models.BookingConfirmed)}
}

// releaseTakenSlot fails a pending booking whose range was confirmed by someone else after its
// hold ran out. The charge is left for the operator to refund.
func (s *BookingService) releaseTakenSlot(ctx context.Context, b *models.Booking, txnReference string) error {
	metrics.IncSlotConflict()
	s.logger.Warn().
		Int64("booking_id", b.ID).
		Int64("court_id", b.CourtID).
		Str("txn_reference", txnReference).
		Msg("payment arrived after the slot was taken")

	if _, err := s.FailPayment(ctx, b.ID, txnReference, slotTakenReason); err != nil && !domain.IsInvalidTransition(err) {
		return err
	}
	return domain.SlotConflictError{CourtID: b.CourtID}
}

// confirmOutcome decides a confirmation without writing. done is false only for a pending booking.
func confirmOutcome(b *models.Booking, txnReference string) (done bool, err error) {
	switch b.Status {
	case models.BookingPending:
		return false, nil
	case models.BookingConfirmed, models.BookingCompleted:
		if b.TxnReference == txnReference {
			return true, nil
		}
		return true, domain.ConflictingConfirmationError{BookingID: b.ID}
	default:
		return true, domain.TransitionError{Resource: "booking", From: string(b.Status), To: string(models.BookingConfirmed)}
	}
}

func (s *BookingService) FailPayment(ctx context.Context, bookingID int64, txnReference, reason string) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BookingFailed {
		return b, nil
	}
	if !b.Status.CanTransition(models.BookingFailed) {
		return nil, domain.TransitionError{Resource: "booking", From: string(b.Status), To: string(models.BookingFailed)}
	}

	tr := models.BookingTransition{
		From:         b.Status,
		To:           models.BookingFailed,
		TxnReference: strings.TrimSpace(txnReference),
		CancelReason: reason,
	}
	updated, err := s.transition(ctx, b, tr, 0)
	if errors.Is(err, database.ErrConcurrentModification) {
		return nil, s.lostRace(ctx, bookingID, models.BookingFailed)
	}
	return updated, err
}

// CancelBooking is open to the booking's user, the facility owner and admins.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64, actor *models.User, reason string) (*models.Booking, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBooking(ctx, b, actor); err != nil {
		return nil, err
	}
	if !b.Status.CanTransition(models.BookingCancelled) {
		return nil, domain.TransitionError{Resource: "booking", From: string(b.Status), To: string(models.BookingCancelled)}
	}

	tr := models.BookingTransition{
		From:         b.Status,
		To:           models.BookingCancelled,
		CancelReason: strings.TrimSpace(reason),
		CancelledBy:  actor.ID,
	}
	updated, err := s.transition(ctx, b, tr, actor.ID)
	if errors.Is(err, database.ErrConcurrentModification) {
		return nil, s.lostRace(ctx, bookingID, models.BookingCancelled)
	}
	return updated, err
}

func (s *BookingService) CompleteBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingConfirmed {
		return nil, domain.TransitionError{Resource: "booking", From: string(b.Status), To: string(models.BookingCompleted)}
	}
	if b.End.After(s.now()) {
		return nil, domain.ValidationError{Field: "endDatetime", Msg: "booking has not ended yet"}
	}

	tr := models.BookingTransition{From: models.BookingConfirmed, To: models.BookingCompleted}
	updated, err := s.transition(ctx, b, tr, 0)
	if errors.Is(err, database.ErrConcurrentModification) {
		return nil, s.lostRace(ctx, bookingID, models.BookingCompleted)
	}
	return updated, err
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID int64, actor *models.User) (*models.Booking, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBooking(ctx, b, actor); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, userID int64, page models.Page) (models.Paginated[*models.Booking], error) {
	items, total, err := s.bookings.ListUserBookings(ctx, userID, page)
	if err != nil {
		return models.Paginated[*models.Booking]{}, err
	}
	return models.NewPaginated(items, page, total), nil
}

func (s *BookingService) ListOwnerBookings(ctx context.Context, ownerID int64, page models.Page) (models.Paginated[*models.Booking], error) {
	items, total, err := s.bookings.ListOwnerBookings(ctx, ownerID, page)
	if err != nil {
		return models.Paginated[*models.Booking]{}, err
	}
	return models.NewPaginated(items, page, total), nil
}

func (s *BookingService) getBooking(ctx context.Context, id int64) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "booking")
	}
	return b, nil
}

func (s *BookingService) authorizeBooking(ctx context.Context, b *models.Booking, actor *models.User) error {
	if isAdmin(actor) || b.UserID == actor.ID {
		return nil
	}
	if actor.Role == models.RoleOwner {
		facility, err := s.facilities.GetFacility(ctx, b.FacilityID)
		if err != nil {
			return notFoundAs(err, "facility")
		}
		if facility.OwnerID == actor.ID {
			return nil
		}
	}
	return domain.ForbiddenError{Msg: "not allowed to access this booking"}
}

// transition applies tr as a compare-and-set and reports it. database.ErrConcurrentModification
// is returned untouched so callers can resolve the race.
func (s *BookingService) transition(ctx context.Context, b *models.Booking, tr models.BookingTransition, actorID int64) (*models.Booking, error) {
	if err := s.bookings.TransitionBooking(ctx, b.ID, tr, s.now()); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, err
		}
		return nil, notFoundAs(err, "booking")
	}
	updated, err := s.getBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(tr.To))
	reason := tr.CancelReason
	s.publish(transitionEvents[tr.To], updated, tr.From, reason, actorID)
	s.enqueueLedger(ctx, worker.TaskUpdateStatus, updated)

	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Msg("booking status changed")
	return updated, nil
}

func (s *BookingService) lostRace(ctx context.Context, bookingID int64, to models.BookingStatus) error {
	current, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	return domain.TransitionError{Resource: "booking", From: string(current.Status), To: string(to)}
}

func (s *BookingService) publish(eventType string, b *models.Booking, prev models.BookingStatus, reason string, actorID int64) {
	if s.eventBus == nil || eventType == "" {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:    b.ID,
		UserID:       b.UserID,
		CourtID:      b.CourtID,
		FacilityID:   b.FacilityID,
		Status:       string(b.Status),
		PrevStatus:   string(prev),
		Start:        b.Start,
		End:          b.End,
		TotalPrice:   b.TotalPrice,
		Currency:     b.Currency,
		TxnReference: b.TxnReference,
		Reason:       reason,
		ChangedByID:  actorID,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("booking_id", b.ID).Msg("failed to publish booking event")
	}
}

func (s *BookingService) enqueueLedger(ctx context.Context, taskType string, b *models.Booking) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.EnqueueTask(ctx, taskType, b.ID, string(b.Status)); err != nil {
		s.logger.Error().Err(err).Str("task", taskType).Int64("booking_id", b.ID).Msg("failed to enqueue ledger task")
	}
}
