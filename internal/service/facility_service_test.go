package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type facilityEnv struct {
	*fixture
	svc    *FacilityService
	media  *fakeMedia
	events *recordingPublisher
}

func newFacilityEnv(t *testing.T) *facilityEnv {
	t.Helper()
	fx := seedFixture(t)
	env := &facilityEnv{fixture: fx, media: newFakeMedia(), events: &recordingPublisher{}}
	env.svc = NewFacilityService(fx.db, env.media, env.events, "courtbook-test", nil)
	env.svc.now = fixedClock(testNow)
	return env
}

func strPtr(s string) *string { return &s }

func statusPtr(s models.FacilityStatus) *models.FacilityStatus { return &s }

func TestFacilityLifecycle(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateFacility(ctx, env.player, models.FacilityInput{Name: "X", Address: "Y", City: "Z"})
	assert.True(t, domain.IsForbidden(err))

	_, err = env.svc.CreateFacility(ctx, env.owner, models.FacilityInput{Name: " ", Address: "Y", City: "Z"})
	assert.True(t, domain.IsValidation(err))

	f, err := env.svc.CreateFacility(ctx, env.owner, models.FacilityInput{Name: "Hilltop Courts", Address: "9 Hill St", City: "Chiang Mai"})
	require.NoError(t, err)
	assert.Equal(t, models.FacilityDraft, f.Status)

	_, err = env.svc.UpdateFacility(ctx, env.owner, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityApproved)})
	assert.True(t, domain.IsInvalidTransition(err), "draft cannot jump to approved")

	f, err = env.svc.UpdateFacility(ctx, env.owner, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityPendingApproval)})
	require.NoError(t, err)
	assert.Equal(t, models.FacilityPendingApproval, f.Status)

	_, err = env.svc.UpdateFacility(ctx, env.owner, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityApproved)})
	assert.True(t, domain.IsForbidden(err), "owners cannot approve")

	_, err = env.svc.UpdateFacility(ctx, env.admin, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityRejected)})
	assert.True(t, domain.IsValidation(err), "reject needs a reason")

	f, err = env.svc.UpdateFacility(ctx, env.admin, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityRejected), Reason: "missing photos"})
	require.NoError(t, err)
	assert.Equal(t, models.FacilityRejected, f.Status)
	assert.Equal(t, "missing photos", f.RejectionReason)

	f, err = env.svc.UpdateFacility(ctx, env.owner, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityPendingApproval)})
	require.NoError(t, err)

	f, err = env.svc.UpdateFacility(ctx, env.admin, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityApproved)})
	require.NoError(t, err)
	assert.Equal(t, models.FacilityApproved, f.Status)
	assert.Empty(t, f.RejectionReason)

	f, err = env.svc.UpdateFacility(ctx, env.owner, f.ID, models.FacilityPatch{Name: strPtr("Hilltop Sports Club")})
	require.NoError(t, err)
	assert.Equal(t, models.FacilityPendingApproval, f.Status, "public edit sends it back to moderation")
	assert.Equal(t, "Hilltop Sports Club", f.Name)

	_, err = env.svc.UpdateFacility(ctx, env.other, f.ID, models.FacilityPatch{Name: strPtr("hijack")})
	assert.True(t, domain.IsForbidden(err))

	_, err = env.svc.UpdateFacility(ctx, env.admin, f.ID, models.FacilityPatch{Status: statusPtr("ARCHIVED")})
	assert.True(t, domain.IsValidation(err))

	assert.Equal(t, []string{
		events.EventFacilitySubmitted,
		events.EventFacilityReviewed,
		events.EventFacilitySubmitted,
		events.EventFacilityReviewed,
		events.EventFacilitySubmitted,
	}, env.events.types())
}

func TestSuspendAndReinstate(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	f, err := env.svc.UpdateFacility(ctx, env.admin, env.facility.ID, models.FacilityPatch{Status: statusPtr(models.FacilitySuspended), Reason: "complaints"})
	require.NoError(t, err)
	assert.Equal(t, models.FacilitySuspended, f.Status)

	_, err = env.svc.GetFacility(ctx, f.ID, nil)
	assert.True(t, domain.IsNotFound(err), "suspended facility is hidden from the public")

	visible, err := env.svc.GetFacility(ctx, f.ID, env.owner)
	require.NoError(t, err)
	assert.Equal(t, models.FacilitySuspended, visible.Status)

	_, err = env.svc.UpdateFacility(ctx, env.owner, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityApproved)})
	assert.True(t, domain.IsForbidden(err))

	f, err = env.svc.UpdateFacility(ctx, env.admin, f.ID, models.FacilityPatch{Status: statusPtr(models.FacilityApproved)})
	require.NoError(t, err)
	assert.Equal(t, models.FacilityApproved, f.Status)
}

// racingFacilityRepo runs race once just before the first facility write.
type racingFacilityRepo struct {
	domain.FacilityRepository
	race func()
}

func (r *racingFacilityRepo) UpdateFacility(ctx context.Context, f *models.Facility, expected models.FacilityStatus) error {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.FacilityRepository.UpdateFacility(ctx, f, expected)
}

func TestOwnerEditLosesToConcurrentSuspension(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	repo := &racingFacilityRepo{FacilityRepository: env.db}
	repo.race = func() {
		suspended, err := env.db.GetFacility(ctx, env.facility.ID)
		require.NoError(t, err)
		suspended.Status = models.FacilitySuspended
		require.NoError(t, env.db.UpdateFacility(ctx, suspended, models.FacilityApproved))
	}
	svc := NewFacilityService(repo, env.media, env.events, "courtbook-test", nil)

	_, err := svc.UpdateFacility(ctx, env.owner, env.facility.ID, models.FacilityPatch{Name: strPtr("Escaped Arena")})
	assert.True(t, domain.IsInvalidTransition(err), "stale edit must not overwrite the suspension: %v", err)

	stored, err := env.db.GetFacility(ctx, env.facility.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FacilitySuspended, stored.Status)
	assert.Equal(t, "Riverside Arena", stored.Name)
	assert.Empty(t, env.events.types(), "nothing is published for a lost write")
}

func TestGetAndListFacilities(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	draft, err := env.svc.CreateFacility(ctx, env.owner, models.FacilityInput{Name: "Draft Hall", Address: "2 Side St", City: "Bangkok"})
	require.NoError(t, err)

	inactive := false
	_, err = env.svc.AddCourt(ctx, env.owner, env.facility.ID, models.CourtInput{
		Name: strPtr("Court 2"), SportType: strPtr("Tennis"), PricePerHour: int64Ptr(60000), IsActive: &inactive,
	})
	require.NoError(t, err)

	public, err := env.svc.GetFacility(ctx, env.facility.ID, nil)
	require.NoError(t, err)
	assert.Len(t, public.Courts, 1, "public sees active courts only")

	mine, err := env.svc.GetFacility(ctx, env.facility.ID, env.owner)
	require.NoError(t, err)
	assert.Len(t, mine.Courts, 2)

	_, err = env.svc.GetFacility(ctx, draft.ID, env.player)
	assert.True(t, domain.IsNotFound(err))

	list, err := env.svc.ListFacilities(ctx, models.FacilityFilter{}, models.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, env.facility.ID, list.Data[0].ID)

	owned, err := env.svc.ListFacilities(ctx, models.FacilityFilter{OwnerID: env.owner.ID}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), owned.Meta.Total)

	queue, err := env.svc.ListFacilities(ctx, models.FacilityFilter{Status: models.FacilityDraft}, models.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, queue.Data, 1)
	assert.Equal(t, draft.ID, queue.Data[0].ID)
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func TestCourts(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	_, err := env.svc.AddCourt(ctx, env.other, env.facility.ID, models.CourtInput{Name: strPtr("X"), SportType: strPtr("padel"), PricePerHour: int64Ptr(1)})
	assert.True(t, domain.IsForbidden(err))

	_, err = env.svc.AddCourt(ctx, env.owner, env.facility.ID, models.CourtInput{Name: strPtr("X"), SportType: strPtr("padel")})
	assert.True(t, domain.IsValidation(err), "price is required")

	_, err = env.svc.AddCourt(ctx, env.owner, env.facility.ID, models.CourtInput{
		Name: strPtr("X"), SportType: strPtr("padel"), PricePerHour: int64Ptr(100), OpenMinute: intPtr(600), CloseMinute: intPtr(540),
	})
	assert.True(t, domain.IsValidation(err))

	court, err := env.svc.AddCourt(ctx, env.owner, env.facility.ID, models.CourtInput{
		Name: strPtr("Padel A"), SportType: strPtr(" Padel "), PricePerHour: int64Ptr(30000), OpenMinute: intPtr(480), CloseMinute: intPtr(1320),
	})
	require.NoError(t, err)
	assert.Equal(t, "padel", court.SportType)
	assert.True(t, court.IsActive)
	assert.True(t, court.HasOperatingHours())

	updated, err := env.svc.UpdateCourt(ctx, env.owner, court.ID, models.CourtInput{PricePerHour: int64Ptr(35000)})
	require.NoError(t, err)
	assert.Equal(t, int64(35000), updated.PricePerHour)
	assert.Equal(t, "Padel A", updated.Name)

	_, err = env.svc.UpdateCourt(ctx, env.owner, 999, models.CourtInput{})
	assert.True(t, domain.IsNotFound(err))
}

func TestBlockSlot(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	bookings := NewBookingService(env.db, env.db, nil, nil, testBookingConfig(), time.UTC, nil)
	bookings.now = fixedClock(testNow)
	bookings.availability.now = fixedClock(testNow)
	b, err := bookings.CreateBooking(ctx, env.player, models.CreateBookingRequest{CourtID: env.court.ID, Start: testTen, End: testTen.Add(time.Hour)})
	require.NoError(t, err)
	_, err = bookings.ConfirmPayment(ctx, b.ID, "chrg_1")
	require.NoError(t, err)

	_, err = env.svc.BlockSlot(ctx, env.owner, env.court.ID, models.BlockRequest{Start: testTen.Add(30 * time.Minute), End: testTen.Add(2 * time.Hour)})
	assert.True(t, domain.IsSlotConflict(err))

	_, err = env.svc.BlockSlot(ctx, env.owner, env.court.ID, models.BlockRequest{Start: testTen, End: testTen})
	assert.True(t, domain.IsValidation(err))

	_, err = env.svc.BlockSlot(ctx, env.player, env.court.ID, models.BlockRequest{Start: testTen.Add(2 * time.Hour), End: testTen.Add(3 * time.Hour)})
	assert.True(t, domain.IsForbidden(err))

	slot, err := env.svc.BlockSlot(ctx, env.owner, env.court.ID, models.BlockRequest{Start: testTen.Add(2 * time.Hour), End: testTen.Add(3 * time.Hour), Reason: " resurfacing "})
	require.NoError(t, err)
	assert.True(t, slot.IsBlocked)
	assert.Equal(t, "resurfacing", slot.Reason)

	_, err = bookings.CreateBooking(ctx, env.player, models.CreateBookingRequest{CourtID: env.court.ID, Start: testTen.Add(2 * time.Hour), End: testTen.Add(3 * time.Hour)})
	assert.True(t, domain.IsSlotConflict(err), "a block excludes bookings")

	assert.True(t, domain.IsForbidden(env.svc.UnblockSlot(ctx, env.other, slot.ID)))
	require.NoError(t, env.svc.UnblockSlot(ctx, env.owner, slot.ID))
	assert.True(t, domain.IsNotFound(env.svc.UnblockSlot(ctx, env.owner, slot.ID)))

	_, err = bookings.CreateBooking(ctx, env.player, models.CreateBookingRequest{CourtID: env.court.ID, Start: testTen.Add(2 * time.Hour), End: testTen.Add(3 * time.Hour)})
	assert.NoError(t, err)
}

func TestPhotos(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	photo, err := env.svc.UploadPhoto(ctx, env.owner, env.facility.ID, strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(photo.PublicID, "courtbook-test/facility-"))
	assert.Contains(t, photo.URL, "https://media.test/")
	assert.Equal(t, 1, env.media.count())

	_, err = env.svc.UploadPhoto(ctx, env.other, env.facility.ID, strings.NewReader("x"))
	assert.True(t, domain.IsForbidden(err))

	f, err := env.svc.GetFacility(ctx, env.facility.ID, nil)
	require.NoError(t, err)
	require.Len(t, f.Photos, 1)

	assert.True(t, domain.IsForbidden(env.svc.DeletePhoto(ctx, env.other, photo.ID)))
	require.NoError(t, env.svc.DeletePhoto(ctx, env.owner, photo.ID))
	assert.Equal(t, 0, env.media.count())
	assert.True(t, domain.IsNotFound(env.svc.DeletePhoto(ctx, env.owner, photo.ID)))

	env.media.fail = domain.UpstreamError{Provider: "cloudinary", Err: errors.New("boom")}
	_, err = env.svc.UploadPhoto(ctx, env.owner, env.facility.ID, strings.NewReader("x"))
	assert.True(t, domain.IsUpstream(err))

	noMedia := NewFacilityService(env.db, nil, nil, "", nil)
	_, err = noMedia.UploadPhoto(ctx, env.owner, env.facility.ID, strings.NewReader("x"))
	assert.True(t, domain.IsUpstream(err))
}

func TestReviews(t *testing.T) {
	env := newFacilityEnv(t)
	ctx := context.Background()

	_, err := env.svc.AddReview(ctx, env.player, env.facility.ID, models.ReviewInput{Rating: 6})
	assert.True(t, domain.IsValidation(err))

	unverified := *env.other
	unverified.IsVerified = false
	_, err = env.svc.AddReview(ctx, &unverified, env.facility.ID, models.ReviewInput{Rating: 4})
	assert.True(t, domain.IsForbidden(err))

	_, err = env.svc.AddReview(ctx, env.owner, env.facility.ID, models.ReviewInput{Rating: 5})
	assert.True(t, domain.IsForbidden(err))

	review, err := env.svc.AddReview(ctx, env.player, env.facility.ID, models.ReviewInput{Rating: 4, Comment: " nice floor "})
	require.NoError(t, err)
	assert.Equal(t, "nice floor", review.Comment)

	_, err = env.svc.AddReview(ctx, env.player, env.facility.ID, models.ReviewInput{Rating: 2})
	assert.True(t, domain.IsValidation(err), "one review per user")

	_, err = env.svc.AddReview(ctx, env.other, env.facility.ID, models.ReviewInput{Rating: 2})
	require.NoError(t, err)

	f, err := env.db.GetFacility(ctx, env.facility.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.ReviewCount)
	assert.InDelta(t, 3.0, f.AvgRating, 0.001)

	_, err = env.svc.AddReview(ctx, env.player, 999, models.ReviewInput{Rating: 3})
	assert.True(t, domain.IsNotFound(err))
}
