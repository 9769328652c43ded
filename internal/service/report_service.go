package service

import (
	"context"
	"time"

	"courtbook/internal/documents"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"golang.org/x/sync/errgroup"
)

const defaultStatsWindow = 30 * 24 * time.Hour

type ReportService struct {
	reports    domain.ReportRepository
	bookings   domain.BookingRepository
	facilities domain.FacilityRepository
	loc        *time.Location
	now        clock
}

func NewReportService(reports domain.ReportRepository, bookings domain.BookingRepository, facilities domain.FacilityRepository, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{reports: reports, bookings: bookings, facilities: facilities, loc: loc, now: systemClock}
}

func clampVenueLimit(limit int) int {
	switch {
	case limit <= 0:
		return models.DefaultVenueLimit
	case limit > models.MaxVenueLimit:
		return models.MaxVenueLimit
	default:
		return limit
	}
}

func (s *ReportService) PopularVenues(ctx context.Context, limit int) ([]models.PopularVenue, error) {
	return s.reports.PopularVenues(ctx, clampVenueLimit(limit))
}

func (s *ReportService) PopularSports(ctx context.Context, limit int) ([]models.SportCount, error) {
	if limit <= 0 {
		limit = models.DefaultSportLimit
	}
	return s.reports.PopularSports(ctx, limit)
}

// HomePageData loads both home page lists concurrently. Any failure discards the other half.
func (s *ReportService) HomePageData(ctx context.Context) (*models.HomePageData, error) {
	var (
		venues []models.PopularVenue
		sports []models.SportCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		venues, err = s.PopularVenues(gctx, models.DefaultVenueLimit)
		return err
	})
	g.Go(func() error {
		var err error
		sports, err = s.PopularSports(gctx, models.DefaultSportLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &models.HomePageData{PopularVenues: venues, PopularSports: sports}, nil
}

func (s *ReportService) RevenueStats(ctx context.Context, actor *models.User, from, to time.Time) (*models.RevenueStats, error) {
	ownerID, err := reportScope(actor)
	if err != nil {
		return nil, err
	}
	from, to, err = s.reportRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.reports.RevenueStats(ctx, ownerID, from, to)
}

func (s *ReportService) ExportBookings(ctx context.Context, actor *models.User, from, to time.Time) ([]byte, error) {
	ownerID, err := reportScope(actor)
	if err != nil {
		return nil, err
	}
	from, to, err = s.reportRange(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.reports.BookingReportRows(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return documents.BookingsWorkbook(rows, from, to, s.loc)
}

// BookingReceipt renders a receipt for a paid booking visible to the actor.
func (s *ReportService) BookingReceipt(ctx context.Context, actor *models.User, bookingID int64) ([]byte, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, "booking")
	}
	if b.UserID != actor.ID && !isAdmin(actor) {
		facility, err := s.facilities.GetFacility(ctx, b.FacilityID)
		if err != nil {
			return nil, notFoundAs(err, "facility")
		}
		if facility.OwnerID != actor.ID {
			return nil, domain.ForbiddenError{Msg: "not allowed to access this booking"}
		}
	}
	if b.Status != models.BookingConfirmed && b.Status != models.BookingCompleted {
		return nil, domain.ValidationError{Field: "status", Msg: "receipts are issued for paid bookings only"}
	}

	row, err := s.reports.GetBookingReportRow(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, "booking")
	}
	return documents.Receipt(row, s.now(), s.loc)
}

// reportScope returns the owner filter for reports: 0 means every facility.
func reportScope(actor *models.User) (int64, error) {
	if err := requireActor(actor); err != nil {
		return 0, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return 0, nil
	case models.RoleOwner:
		return actor.ID, nil
	default:
		return 0, domain.ForbiddenError{Msg: "owner or admin role required"}
	}
}

func (s *ReportService) reportRange(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultStatsWindow)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, domain.InvalidInterval("from must be before to")
	}
	return from.UTC(), to.UTC(), nil
}
