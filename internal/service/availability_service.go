package service

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

type AvailabilityService struct {
	bookings   domain.BookingRepository
	facilities domain.FacilityRepository
	loc        *time.Location
	now        clock
}

func NewAvailabilityService(bookings domain.BookingRepository, facilities domain.FacilityRepository, loc *time.Location) *AvailabilityService {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{
		bookings:   bookings,
		facilities: facilities,
		loc:        loc,
		now:        systemClock,
	}
}

func (s *AvailabilityService) IsAvailable(ctx context.Context, courtID int64, start, end time.Time) (bool, error) {
	iv := models.Interval{Start: start, End: end}
	now := s.now()
	if _, err := s.checkInterval(ctx, courtID, iv, now); err != nil {
		return false, err
	}
	return s.bookings.IsAvailable(ctx, courtID, iv, now)
}

// DaySchedule lists what blocks the court during the local calendar day containing day.
func (s *AvailabilityService) DaySchedule(ctx context.Context, courtID int64, day time.Time) ([]models.BusyInterval, error) {
	if _, err := s.facilities.GetCourt(ctx, courtID); err != nil {
		return nil, notFoundAs(err, "court")
	}
	local := day.In(s.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	iv := models.Interval{Start: from, End: from.AddDate(0, 0, 1)}
	return s.bookings.ListBusyIntervals(ctx, courtID, iv, s.now())
}

// checkInterval validates iv against the clock and the court's operating hours and returns the court.
func (s *AvailabilityService) checkInterval(ctx context.Context, courtID int64, iv models.Interval, now time.Time) (*models.Court, error) {
	if !iv.Valid() {
		return nil, domain.InvalidInterval("start must be before end")
	}
	if !iv.Start.After(now) {
		return nil, domain.ValidationError{Field: "startDatetime", Msg: "must be in the future"}
	}
	court, err := s.facilities.GetCourt(ctx, courtID)
	if err != nil {
		return nil, notFoundAs(err, "court")
	}
	if court.HasOperatingHours() && !withinHours(court, iv, s.loc) {
		return nil, domain.InvalidInterval(fmt.Sprintf("court is open %s-%s", clockLabel(court.OpenMinute), clockLabel(court.CloseMinute)))
	}
	return court, nil
}

// withinHours requires the interval to sit inside one local day between the opening and closing minute.
func withinHours(court *models.Court, iv models.Interval, loc *time.Location) bool {
	start := iv.Start.In(loc)
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	startMin := int(start.Sub(dayStart) / time.Minute)
	endMin := int(iv.End.In(loc).Sub(dayStart) / time.Minute)
	return startMin >= court.OpenMinute && endMin <= court.CloseMinute
}

func clockLabel(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
