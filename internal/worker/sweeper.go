package worker

import (
	"context"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

const holdExpiredReason = "payment hold expired"

type sweepSource interface {
	ListElapsedConfirmed(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
}

type bookingLifecycle interface {
	CompleteBooking(ctx context.Context, bookingID int64) (*models.Booking, error)
	FailPayment(ctx context.Context, bookingID int64, txnReference, reason string) (*models.Booking, error)
}

// Sweeper completes elapsed bookings and fails unpaid holds on a ticker.
type Sweeper struct {
	source   sweepSource
	bookings bookingLifecycle
	interval time.Duration
	batch    int
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSweeper(source sweepSource, bookings bookingLifecycle, interval time.Duration, batch int, logger *zerolog.Logger) *Sweeper {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sweeper").Logger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{source: source, bookings: bookings, interval: interval, batch: batch, now: time.Now, logger: l}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce makes a single pass and returns how many bookings it completed and failed.
// Losing a race to a concurrent transition is expected and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (completed, failed int) {
	now := s.now()

	elapsed, err := s.source.ListElapsedConfirmed(ctx, now, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("list elapsed bookings")
	}
	for _, b := range elapsed {
		if _, err := s.bookings.CompleteBooking(ctx, b.ID); err != nil {
			s.logTransitionError(err, b.ID, models.BookingCompleted)
			continue
		}
		completed++
	}

	expired, err := s.source.ListExpiredHolds(ctx, now, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("list expired holds")
	}
	for _, b := range expired {
		if _, err := s.bookings.FailPayment(ctx, b.ID, "", holdExpiredReason); err != nil {
			s.logTransitionError(err, b.ID, models.BookingFailed)
			continue
		}
		failed++
	}

	if completed > 0 || failed > 0 {
		s.logger.Info().Int("completed", completed).Int("failed", failed).Msg("sweep finished")
	}
	return completed, failed
}

func (s *Sweeper) logTransitionError(err error, bookingID int64, to models.BookingStatus) {
	if domain.IsInvalidTransition(err) {
		s.logger.Debug().Int64("booking_id", bookingID).Str("to", string(to)).Msg("booking already moved")
		return
	}
	s.logger.Error().Err(err).Int64("booking_id", bookingID).Str("to", string(to)).Msg("sweep transition failed")
}
