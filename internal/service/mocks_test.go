package service

import (
	"context"
	"io"
	"sync"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockBookingRepo struct {
	mock.Mock
}

var _ domain.BookingRepository = (*mockBookingRepo)(nil)

func (m *mockBookingRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking, now time.Time) error {
	return m.Called(ctx, b, now).Error(0)
}

func (m *mockBookingRepo) TransitionBooking(ctx context.Context, id int64, tr models.BookingTransition, now time.Time) error {
	return m.Called(ctx, id, tr, now).Error(0)
}

func (m *mockBookingRepo) SetPaymentOrder(ctx context.Context, id int64, orderID string) error {
	return m.Called(ctx, id, orderID).Error(0)
}

func (m *mockBookingRepo) IsAvailable(ctx context.Context, courtID int64, iv models.Interval, now time.Time) (bool, error) {
	args := m.Called(ctx, courtID, iv, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookingRepo) ListBusyIntervals(ctx context.Context, courtID int64, iv models.Interval, now time.Time) ([]models.BusyInterval, error) {
	args := m.Called(ctx, courtID, iv, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BusyInterval), args.Error(1)
}

func (m *mockBookingRepo) ListUserBookings(ctx context.Context, userID int64, page models.Page) ([]*models.Booking, int64, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Booking), args.Get(1).(int64), args.Error(2)
}

func (m *mockBookingRepo) ListOwnerBookings(ctx context.Context, ownerID int64, page models.Page) ([]*models.Booking, int64, error) {
	args := m.Called(ctx, ownerID, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Booking), args.Get(1).(int64), args.Error(2)
}

func (m *mockBookingRepo) ListElapsedConfirmed(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

type mockReportRepo struct {
	mock.Mock
}

var _ domain.ReportRepository = (*mockReportRepo)(nil)

func (m *mockReportRepo) PopularVenues(ctx context.Context, limit int) ([]models.PopularVenue, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PopularVenue), args.Error(1)
}

func (m *mockReportRepo) PopularSports(ctx context.Context, limit int) ([]models.SportCount, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SportCount), args.Error(1)
}

func (m *mockReportRepo) RevenueStats(ctx context.Context, ownerID int64, from, to time.Time) (*models.RevenueStats, error) {
	args := m.Called(ctx, ownerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RevenueStats), args.Error(1)
}

func (m *mockReportRepo) BookingReportRows(ctx context.Context, ownerID int64, from, to time.Time) ([]models.BookingReportRow, error) {
	args := m.Called(ctx, ownerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookingReportRow), args.Error(1)
}

func (m *mockReportRepo) GetBookingReportRow(ctx context.Context, bookingID int64) (*models.BookingReportRow, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingReportRow), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

var _ domain.PaymentGateway = (*mockGateway)(nil)

func (m *mockGateway) PublicKey() string { return "pkey_test" }

func (m *mockGateway) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.PaymentOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentOrder), args.Error(1)
}

func (m *mockGateway) RetrieveCharge(ctx context.Context, chargeID string) (*models.Charge, error) {
	args := m.Called(ctx, chargeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Charge), args.Error(1)
}

func (m *mockGateway) RetrieveEvent(ctx context.Context, eventID string) (*models.GatewayEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GatewayEvent), args.Error(1)
}

// fakeMedia keeps uploads in memory.
type fakeMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{objects: map[string][]byte{}}
}

func (f *fakeMedia) Upload(_ context.Context, file io.Reader, folder, publicID string) (*models.UploadedMedia, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	id := folder + "/" + publicID
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[id] = data
	return &models.UploadedMedia{URL: "https://media.test/" + id + ".jpg", PublicID: id}, nil
}

func (f *fakeMedia) Delete(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, publicID)
	return nil
}

func (f *fakeMedia) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeCaptcha struct {
	err    error
	tokens []string
}

func (c *fakeCaptcha) Verify(_ context.Context, token, _ string) error {
	c.tokens = append(c.tokens, token)
	return c.err
}
