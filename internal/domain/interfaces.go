package domain

import (
	"context"
	"io"
	"time"

	"courtbook/internal/models"
)

type BookingRepository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, now time.Time) error
	TransitionBooking(ctx context.Context, id int64, tr models.BookingTransition, now time.Time) error
	SetPaymentOrder(ctx context.Context, id int64, orderID string) error
	IsAvailable(ctx context.Context, courtID int64, iv models.Interval, now time.Time) (bool, error)
	ListBusyIntervals(ctx context.Context, courtID int64, iv models.Interval, now time.Time) ([]models.BusyInterval, error)
	ListUserBookings(ctx context.Context, userID int64, page models.Page) ([]*models.Booking, int64, error)
	ListOwnerBookings(ctx context.Context, ownerID int64, page models.Page) ([]*models.Booking, int64, error)
	ListElapsedConfirmed(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
}

type FacilityRepository interface {
	CreateFacility(ctx context.Context, facility *models.Facility) error
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
	UpdateFacility(ctx context.Context, facility *models.Facility, expected models.FacilityStatus) error
	ListFacilities(ctx context.Context, filter models.FacilityFilter, page models.Page) ([]*models.Facility, int64, error)
	CreateCourt(ctx context.Context, court *models.Court) error
	GetCourt(ctx context.Context, id int64) (*models.Court, error)
	UpdateCourt(ctx context.Context, court *models.Court) error
	ListCourts(ctx context.Context, facilityID int64, activeOnly bool) ([]*models.Court, error)
	CreateBlockedSlot(ctx context.Context, slot *models.AvailabilitySlot) error
	GetBlockedSlot(ctx context.Context, id int64) (*models.AvailabilitySlot, error)
	DeleteBlockedSlot(ctx context.Context, id int64) error
	CreatePhoto(ctx context.Context, photo *models.Photo) error
	GetPhoto(ctx context.Context, id int64) (*models.Photo, error)
	DeletePhoto(ctx context.Context, id int64) error
	ListPhotos(ctx context.Context, facilityID int64) ([]*models.Photo, error)
	CreateReview(ctx context.Context, review *models.Review) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	MarkUserVerified(ctx context.Context, id int64) error
	SetUserActive(ctx context.Context, id int64, active bool, reason string) error
	ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) ([]*models.User, int64, error)
}

type ReportRepository interface {
	PopularVenues(ctx context.Context, limit int) ([]models.PopularVenue, error)
	PopularSports(ctx context.Context, limit int) ([]models.SportCount, error)
	RevenueStats(ctx context.Context, ownerID int64, from, to time.Time) (*models.RevenueStats, error)
	BookingReportRows(ctx context.Context, ownerID int64, from, to time.Time) ([]models.BookingReportRow, error)
	GetBookingReportRow(ctx context.Context, bookingID int64) (*models.BookingReportRow, error)
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetBookingReportRow(ctx context.Context, bookingID int64) (*models.BookingReportRow, error)
}

type SessionRepository interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID int64) error
	// Failure counters back login throttling; a counter lives for window after its first failure.
	FailureCount(ctx context.Context, key string) (int, error)
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	ResetFailures(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// LedgerQueue schedules a booking row for the external ledger.
type LedgerQueue interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, status string) error
}

type LedgerWriter interface {
	UpsertBooking(ctx context.Context, row *models.BookingReportRow) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	DeleteBookingRow(ctx context.Context, bookingID int64) error
}

type PaymentGateway interface {
	PublicKey() string
	CreateOrder(ctx context.Context, req models.OrderRequest) (*models.PaymentOrder, error)
	RetrieveCharge(ctx context.Context, chargeID string) (*models.Charge, error)
	RetrieveEvent(ctx context.Context, eventID string) (*models.GatewayEvent, error)
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type MediaStore interface {
	Upload(ctx context.Context, file io.Reader, folder, publicID string) (*models.UploadedMedia, error)
	Delete(ctx context.Context, publicID string) error
}

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

type AvailabilityService interface {
	IsAvailable(ctx context.Context, courtID int64, start, end time.Time) (bool, error)
	DaySchedule(ctx context.Context, courtID int64, day time.Time) ([]models.BusyInterval, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, actor *models.User, req models.CreateBookingRequest) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID int64, txnReference string) (*models.Booking, error)
	FailPayment(ctx context.Context, bookingID int64, txnReference, reason string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID int64, actor *models.User, reason string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, bookingID int64) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID int64, actor *models.User) (*models.Booking, error)
	ListUserBookings(ctx context.Context, userID int64, page models.Page) (models.Paginated[*models.Booking], error)
	ListOwnerBookings(ctx context.Context, ownerID int64, page models.Page) (models.Paginated[*models.Booking], error)
}

type FacilityService interface {
	CreateFacility(ctx context.Context, actor *models.User, in models.FacilityInput) (*models.Facility, error)
	UpdateFacility(ctx context.Context, actor *models.User, id int64, patch models.FacilityPatch) (*models.Facility, error)
	GetFacility(ctx context.Context, id int64, viewer *models.User) (*models.Facility, error)
	ListFacilities(ctx context.Context, filter models.FacilityFilter, page models.Page) (models.Paginated[*models.Facility], error)
	AddCourt(ctx context.Context, actor *models.User, facilityID int64, in models.CourtInput) (*models.Court, error)
	UpdateCourt(ctx context.Context, actor *models.User, courtID int64, in models.CourtInput) (*models.Court, error)
	BlockSlot(ctx context.Context, actor *models.User, courtID int64, req models.BlockRequest) (*models.AvailabilitySlot, error)
	UnblockSlot(ctx context.Context, actor *models.User, slotID int64) error
	UploadPhoto(ctx context.Context, actor *models.User, facilityID int64, file io.Reader) (*models.Photo, error)
	DeletePhoto(ctx context.Context, actor *models.User, photoID int64) error
	AddReview(ctx context.Context, actor *models.User, facilityID int64, in models.ReviewInput) (*models.Review, error)
}

type AuthService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	Authenticate(ctx context.Context, accessToken string) (*models.User, *models.Session, error)
}

type UserService interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, filter models.UserFilter, page models.Page) (models.Paginated[*models.User], error)
	BanUser(ctx context.Context, actor *models.User, id int64, reason string) (*models.User, error)
	UnbanUser(ctx context.Context, actor *models.User, id int64) (*models.User, error)
}

type ReportService interface {
	PopularVenues(ctx context.Context, limit int) ([]models.PopularVenue, error)
	PopularSports(ctx context.Context, limit int) ([]models.SportCount, error)
	HomePageData(ctx context.Context) (*models.HomePageData, error)
	RevenueStats(ctx context.Context, actor *models.User, from, to time.Time) (*models.RevenueStats, error)
	ExportBookings(ctx context.Context, actor *models.User, from, to time.Time) ([]byte, error)
	BookingReceipt(ctx context.Context, actor *models.User, bookingID int64) ([]byte, error)
}

type PaymentService interface {
	CreateOrder(ctx context.Context, bookingID int64, actor *models.User) (*models.PaymentOrder, error)
	VerifyPayment(ctx context.Context, bookingID int64, actor *models.User, txnReference string) (*models.Booking, error)
	HandleWebhook(ctx context.Context, eventID string) error
}
