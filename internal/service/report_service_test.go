package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPopularVenuesOnlyApprovedAndCapped(t *testing.T) {
	fx := seedFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		status := models.FacilityApproved
		if i%3 == 0 {
			status = models.FacilityPendingApproval
		}
		f := &models.Facility{OwnerID: fx.owner.ID, Name: fmt.Sprintf("Venue %d", i), Address: "a", City: "c", Status: status}
		require.NoError(t, fx.db.CreateFacility(ctx, f))
	}

	svc := NewReportService(fx.db, fx.db, fx.db, time.UTC)
	venues, err := svc.PopularVenues(ctx, 6)
	require.NoError(t, err)
	assert.Len(t, venues, 6)
	for _, v := range venues {
		f, err := fx.db.GetFacility(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FacilityApproved, f.Status)
	}

	all, err := svc.PopularVenues(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 6, "1 seeded + 5 approved of the 8 new venues")

	for _, v := range all {
		if v.ID == fx.facility.ID {
			require.NotNil(t, v.StartingPrice)
			assert.Equal(t, testPrice, *v.StartingPrice)
		}
	}
}

func TestClampVenueLimit(t *testing.T) {
	assert.Equal(t, 6, clampVenueLimit(0))
	assert.Equal(t, 6, clampVenueLimit(-3))
	assert.Equal(t, 1, clampVenueLimit(1))
	assert.Equal(t, 50, clampVenueLimit(51))
}

func TestHomePageData(t *testing.T) {
	repo := new(mockReportRepo)
	svc := NewReportService(repo, nil, nil, time.UTC)

	venues := []models.PopularVenue{{ID: 1, Name: "A"}}
	sports := []models.SportCount{{Sport: "tennis", Bookings: 3}}
	repo.On("PopularVenues", mock.Anything, models.DefaultVenueLimit).Return(venues, nil).Once()
	repo.On("PopularSports", mock.Anything, models.DefaultSportLimit).Return(sports, nil).Once()

	data, err := svc.HomePageData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, venues, data.PopularVenues)
	assert.Equal(t, sports, data.PopularSports)
	repo.AssertExpectations(t)
}

func TestHomePageDataFailsWhole(t *testing.T) {
	repo := new(mockReportRepo)
	svc := NewReportService(repo, nil, nil, time.UTC)

	boom := errors.New("db down")
	repo.On("PopularVenues", mock.Anything, models.DefaultVenueLimit).Return([]models.PopularVenue{{ID: 1}}, nil)
	repo.On("PopularSports", mock.Anything, models.DefaultSportLimit).Return(nil, boom)

	data, err := svc.HomePageData(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, data)
}

func TestRevenueStatsScope(t *testing.T) {
	repo := new(mockReportRepo)
	svc := NewReportService(repo, nil, nil, time.UTC)
	svc.now = fixedClock(testNow)
	ctx := context.Background()

	owner := &models.User{ID: 5, Role: models.RoleOwner}
	admin := &models.User{ID: 1, Role: models.RoleAdmin}
	from := testNow.Add(-defaultStatsWindow)

	repo.On("RevenueStats", ctx, int64(5), from, testNow).Return(&models.RevenueStats{Revenue: 10}, nil).Once()
	stats, err := svc.RevenueStats(ctx, owner, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Revenue)

	repo.On("RevenueStats", ctx, int64(0), from, testNow).Return(&models.RevenueStats{Revenue: 99}, nil).Once()
	stats, err = svc.RevenueStats(ctx, admin, from, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(99), stats.Revenue)

	_, err = svc.RevenueStats(ctx, &models.User{ID: 9, Role: models.RoleUser}, from, testNow)
	assert.True(t, domain.IsForbidden(err))

	_, err = svc.RevenueStats(ctx, admin, testNow, from)
	assert.True(t, domain.IsValidation(err))
	repo.AssertExpectations(t)
}

func TestExportAndReceipt(t *testing.T) {
	env := newBookingEnv(t)
	ctx := context.Background()

	b, err := env.book(t, env.player, testTen, time.Hour)
	require.NoError(t, err)

	reports := NewReportService(env.db, env.db, env.db, time.UTC)
	reports.now = fixedClock(testNow)

	_, err = reports.BookingReceipt(ctx, env.player, b.ID)
	assert.True(t, domain.IsValidation(err), "no receipt before payment")

	_, err = env.svc.ConfirmPayment(ctx, b.ID, "chrg_1")
	require.NoError(t, err)

	pdf, err := reports.BookingReceipt(ctx, env.player, b.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	_, err = reports.BookingReceipt(ctx, env.owner, b.ID)
	require.NoError(t, err)

	_, err = reports.BookingReceipt(ctx, env.other, b.ID)
	assert.True(t, domain.IsForbidden(err))

	xlsx, err := reports.ExportBookings(ctx, env.admin, testNow.Add(-time.Hour), testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(xlsx, []byte("PK")), "xlsx is a zip container")

	_, err = reports.ExportBookings(ctx, env.player, time.Time{}, time.Time{})
	assert.True(t, domain.IsForbidden(err))

	stats, err := reports.RevenueStats(ctx, env.owner, testNow.Add(-time.Hour), testNow.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Bookings)
	assert.Equal(t, testPrice, stats.Revenue)

	sports, err := reports.PopularSports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sports, 1)
	assert.Equal(t, models.SportCount{Sport: "badminton", Bookings: 1}, sports[0])
}
