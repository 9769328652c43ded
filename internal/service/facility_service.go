package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const minutesPerDay = 24 * 60

var errMediaDisabled = errors.New("media storage is not configured")

type FacilityService struct {
	facilities  domain.FacilityRepository
	media       domain.MediaStore
	eventBus    domain.EventPublisher
	mediaFolder string
	now         clock
	logger      zerolog.Logger
}

// NewFacilityService wires the facility manager. media may be nil, which disables photo uploads.
func NewFacilityService(facilities domain.FacilityRepository, media domain.MediaStore, eventBus domain.EventPublisher, mediaFolder string, logger *zerolog.Logger) *FacilityService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "facility_service").Logger()
	}
	if mediaFolder == "" {
		mediaFolder = "courtbook"
	}
	return &FacilityService{
		facilities:  facilities,
		media:       media,
		eventBus:    eventBus,
		mediaFolder: mediaFolder,
		now:         systemClock,
		logger:      l,
	}
}

func (s *FacilityService) CreateFacility(ctx context.Context, actor *models.User, in models.FacilityInput) (*models.Facility, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != models.RoleOwner {
		return nil, domain.ForbiddenError{Msg: "only owners can create facilities"}
	}
	f := &models.Facility{
		OwnerID:     actor.ID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Address:     strings.TrimSpace(in.Address),
		City:        strings.TrimSpace(in.City),
		Status:      models.FacilityDraft,
	}
	if err := validateFacility(f); err != nil {
		return nil, err
	}
	if err := s.facilities.CreateFacility(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("facility_id", f.ID).Int64("owner_id", actor.ID).Msg("facility created")
	return f, nil
}

func validateFacility(f *models.Facility) error {
	switch {
	case f.Name == "":
		return domain.ValidationError{Field: "name", Msg: "is required"}
	case f.Address == "":
		return domain.ValidationError{Field: "address", Msg: "is required"}
	case f.City == "":
		return domain.ValidationError{Field: "city", Msg: "is required"}
	}
	return nil
}

// UpdateFacility applies field edits and an optional status move. An owner editing the public
// fields of an approved facility sends it back to moderation.
func (s *FacilityService) UpdateFacility(ctx context.Context, actor *models.User, id int64, patch models.FacilityPatch) (*models.Facility, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	f, err := s.getFacility(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := f.OwnerID == actor.ID
	admin := isAdmin(actor)
	if !owner && !admin {
		return nil, domain.ForbiddenError{Msg: "not the owner of this facility"}
	}

	prev := f.Status
	if patch.TouchesPublicFields() {
		if !owner {
			return nil, domain.ForbiddenError{Msg: "only the owner can edit facility details"}
		}
		applyFacilityPatch(f, patch)
		if err := validateFacility(f); err != nil {
			return nil, err
		}
		if f.Status == models.FacilityApproved {
			f.Status = models.FacilityPendingApproval
		}
	}

	if patch.Status != nil && *patch.Status != f.Status {
		target, ok := models.ParseFacilityStatus(string(*patch.Status))
		if !ok {
			return nil, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", *patch.Status)}
		}
		if err := s.moveFacility(f, target, owner, admin, strings.TrimSpace(patch.Reason)); err != nil {
			return nil, err
		}
	}

	if err := s.facilities.UpdateFacility(ctx, f, prev); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, s.lostFacilityRace(ctx, id, f.Status)
		}
		return nil, notFoundAs(err, "facility")
	}
	if f.Status != prev {
		s.publishStatus(f, prev, strings.TrimSpace(patch.Reason))
	}
	return f, nil
}

// lostFacilityRace reports a write that lost to a concurrent status change.
func (s *FacilityService) lostFacilityRace(ctx context.Context, id int64, to models.FacilityStatus) error {
	current, err := s.getFacility(ctx, id)
	if err != nil {
		return err
	}
	return domain.TransitionError{Resource: "facility", From: string(current.Status), To: string(to)}
}

func applyFacilityPatch(f *models.Facility, patch models.FacilityPatch) {
	if patch.Name != nil {
		f.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		f.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Address != nil {
		f.Address = strings.TrimSpace(*patch.Address)
	}
	if patch.City != nil {
		f.City = strings.TrimSpace(*patch.City)
	}
}

func (s *FacilityService) moveFacility(f *models.Facility, target models.FacilityStatus, owner, admin bool, reason string) error {
	role, ok := models.FacilityTransitionRole(f.Status, target)
	if !ok {
		return domain.TransitionError{Resource: "facility", From: string(f.Status), To: string(target)}
	}
	switch role {
	case models.RoleAdmin:
		if !admin {
			return domain.ForbiddenError{Msg: "only admins can review facilities"}
		}
	case models.RoleOwner:
		if !owner {
			return domain.ForbiddenError{Msg: "only the owner can submit a facility"}
		}
	}
	if target == models.FacilityRejected && reason == "" {
		return domain.ValidationError{Field: "reason", Msg: "is required when rejecting"}
	}

	switch target {
	case models.FacilityRejected, models.FacilitySuspended:
		f.RejectionReason = reason
	case models.FacilityApproved:
		f.RejectionReason = ""
	}
	f.Status = target
	return nil
}

func (s *FacilityService) publishStatus(f *models.Facility, prev models.FacilityStatus, reason string) {
	eventType := events.EventFacilityReviewed
	if f.Status == models.FacilityPendingApproval {
		eventType = events.EventFacilitySubmitted
	}
	s.logger.Info().
		Int64("facility_id", f.ID).
		Str("from", string(prev)).
		Str("to", string(f.Status)).
		Msg("facility status changed")
	if s.eventBus == nil {
		return
	}
	payload := events.FacilityEventPayload{
		FacilityID: f.ID,
		OwnerID:    f.OwnerID,
		Name:       f.Name,
		City:       f.City,
		Status:     string(f.Status),
		PrevStatus: string(prev),
		Reason:     reason,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish facility event")
	}
}

// GetFacility hides facilities that are not approved from everyone but their owner and admins.
func (s *FacilityService) GetFacility(ctx context.Context, id int64, viewer *models.User) (*models.Facility, error) {
	f, err := s.getFacility(ctx, id)
	if err != nil {
		return nil, err
	}
	privileged := isAdmin(viewer) || (viewer != nil && viewer.ID == f.OwnerID)
	if f.Status != models.FacilityApproved && !privileged {
		return nil, domain.NotFoundError{Resource: "facility"}
	}

	courts, err := s.facilities.ListCourts(ctx, f.ID, !privileged)
	if err != nil {
		return nil, err
	}
	photos, err := s.facilities.ListPhotos(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Courts = courts
	f.Photos = photos
	return f, nil
}

// ListFacilities defaults to the approved catalogue when neither a status nor an owner is given.
func (s *FacilityService) ListFacilities(ctx context.Context, filter models.FacilityFilter, page models.Page) (models.Paginated[*models.Facility], error) {
	if filter.Status == "" && filter.OwnerID == 0 {
		filter.Status = models.FacilityApproved
	}
	items, total, err := s.facilities.ListFacilities(ctx, filter, page)
	if err != nil {
		return models.Paginated[*models.Facility]{}, err
	}
	return models.NewPaginated(items, page, total), nil
}

func (s *FacilityService) AddCourt(ctx context.Context, actor *models.User, facilityID int64, in models.CourtInput) (*models.Court, error) {
	if _, err := s.ownedFacility(ctx, actor, facilityID); err != nil {
		return nil, err
	}
	court := &models.Court{FacilityID: facilityID, IsActive: true}
	applyCourtInput(court, in)
	if err := validateCourt(court); err != nil {
		return nil, err
	}
	if err := s.facilities.CreateCourt(ctx, court); err != nil {
		return nil, err
	}
	return court, nil
}

func (s *FacilityService) UpdateCourt(ctx context.Context, actor *models.User, courtID int64, in models.CourtInput) (*models.Court, error) {
	court, err := s.ownedCourt(ctx, actor, courtID)
	if err != nil {
		return nil, err
	}
	applyCourtInput(court, in)
	if err := validateCourt(court); err != nil {
		return nil, err
	}
	if err := s.facilities.UpdateCourt(ctx, court); err != nil {
		return nil, notFoundAs(err, "court")
	}
	return court, nil
}

func applyCourtInput(c *models.Court, in models.CourtInput) {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.SportType != nil {
		c.SportType = strings.ToLower(strings.TrimSpace(*in.SportType))
	}
	if in.PricePerHour != nil {
		c.PricePerHour = *in.PricePerHour
	}
	if in.OpenMinute != nil {
		c.OpenMinute = *in.OpenMinute
	}
	if in.CloseMinute != nil {
		c.CloseMinute = *in.CloseMinute
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
}

// validateCourt accepts open == close as "no operating hours".
func validateCourt(c *models.Court) error {
	switch {
	case c.Name == "":
		return domain.ValidationError{Field: "name", Msg: "is required"}
	case c.SportType == "":
		return domain.ValidationError{Field: "sportType", Msg: "is required"}
	case c.PricePerHour <= 0:
		return domain.ValidationError{Field: "pricePerHour", Msg: "must be positive"}
	case c.OpenMinute < 0 || c.OpenMinute > minutesPerDay:
		return domain.ValidationError{Field: "openMinute", Msg: "must be within a day"}
	case c.CloseMinute < 0 || c.CloseMinute > minutesPerDay:
		return domain.ValidationError{Field: "closeMinute", Msg: "must be within a day"}
	case c.OpenMinute > c.CloseMinute:
		return domain.ValidationError{Field: "closeMinute", Msg: "must not be before openMinute"}
	}
	return nil
}

// BlockSlot closes part of a court calendar. It refuses ranges already held by a booking or block.
func (s *FacilityService) BlockSlot(ctx context.Context, actor *models.User, courtID int64, req models.BlockRequest) (*models.AvailabilitySlot, error) {
	court, err := s.ownedCourt(ctx, actor, courtID)
	if err != nil {
		return nil, err
	}
	iv := models.Interval{Start: req.Start.UTC(), End: req.End.UTC()}
	if !iv.Valid() {
		return nil, domain.InvalidInterval("start must be before end")
	}
	now := s.now()
	if !iv.End.After(now) {
		return nil, domain.InvalidInterval("block must end in the future")
	}

	slot := &models.AvailabilitySlot{
		CourtID:   court.ID,
		Start:     iv.Start,
		End:       iv.End,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: now,
	}
	if err := s.facilities.CreateBlockedSlot(ctx, slot); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			return nil, domain.SlotConflictError{CourtID: court.ID}
		}
		return nil, err
	}
	s.logger.Info().Int64("court_id", court.ID).Int64("slot_id", slot.ID).Msg("slot blocked")
	return slot, nil
}

func (s *FacilityService) UnblockSlot(ctx context.Context, actor *models.User, slotID int64) error {
	slot, err := s.facilities.GetBlockedSlot(ctx, slotID)
	if err != nil {
		return notFoundAs(err, "blocked slot")
	}
	if _, err := s.ownedCourt(ctx, actor, slot.CourtID); err != nil {
		return err
	}
	return notFoundAs(s.facilities.DeleteBlockedSlot(ctx, slotID), "blocked slot")
}

func (s *FacilityService) UploadPhoto(ctx context.Context, actor *models.User, facilityID int64, file io.Reader) (*models.Photo, error) {
	if s.media == nil {
		return nil, domain.UpstreamError{Provider: "media", Err: errMediaDisabled}
	}
	if _, err := s.ownedFacility(ctx, actor, facilityID); err != nil {
		return nil, err
	}

	folder := path.Join(s.mediaFolder, fmt.Sprintf("facility-%d", facilityID))
	uploaded, err := s.media.Upload(ctx, file, folder, uuid.NewString())
	if err != nil {
		return nil, err
	}
	photo := &models.Photo{FacilityID: facilityID, URL: uploaded.URL, PublicID: uploaded.PublicID}
	if err := s.facilities.CreatePhoto(ctx, photo); err != nil {
		if delErr := s.media.Delete(ctx, uploaded.PublicID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("public_id", uploaded.PublicID).Msg("failed to remove orphaned upload")
		}
		return nil, err
	}
	return photo, nil
}

func (s *FacilityService) DeletePhoto(ctx context.Context, actor *models.User, photoID int64) error {
	photo, err := s.facilities.GetPhoto(ctx, photoID)
	if err != nil {
		return notFoundAs(err, "photo")
	}
	if _, err := s.ownedFacility(ctx, actor, photo.FacilityID); err != nil {
		return err
	}
	if s.media != nil && photo.PublicID != "" {
		if err := s.media.Delete(ctx, photo.PublicID); err != nil {
			return err
		}
	}
	return notFoundAs(s.facilities.DeletePhoto(ctx, photoID), "photo")
}

// AddReview allows one review per verified user and approved facility.
func (s *FacilityService) AddReview(ctx context.Context, actor *models.User, facilityID int64, in models.ReviewInput) (*models.Review, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsVerified {
		return nil, domain.ForbiddenError{Msg: "email verification required"}
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, domain.ValidationError{Field: "rating", Msg: "must be between 1 and 5"}
	}
	f, err := s.getFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if f.Status != models.FacilityApproved {
		return nil, domain.NotFoundError{Resource: "facility"}
	}
	if f.OwnerID == actor.ID {
		return nil, domain.ForbiddenError{Msg: "owners cannot review their own facility"}
	}

	review := &models.Review{
		FacilityID: facilityID,
		UserID:     actor.ID,
		Rating:     in.Rating,
		Comment:    strings.TrimSpace(in.Comment),
	}
	if err := s.facilities.CreateReview(ctx, review); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, domain.ValidationError{Field: "review", Msg: "facility already reviewed", Err: err}
		}
		return nil, err
	}
	return review, nil
}

func (s *FacilityService) getFacility(ctx context.Context, id int64) (*models.Facility, error) {
	f, err := s.facilities.GetFacility(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "facility")
	}
	return f, nil
}

// ownedFacility loads a facility the actor may manage: its owner or an admin.
func (s *FacilityService) ownedFacility(ctx context.Context, actor *models.User, facilityID int64) (*models.Facility, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	f, err := s.getFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if f.OwnerID != actor.ID && !isAdmin(actor) {
		return nil, domain.ForbiddenError{Msg: "not the owner of this facility"}
	}
	return f, nil
}

func (s *FacilityService) ownedCourt(ctx context.Context, actor *models.User, courtID int64) (*models.Court, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	court, err := s.facilities.GetCourt(ctx, courtID)
	if err != nil {
		return nil, notFoundAs(err, "court")
	}
	if _, err := s.ownedFacility(ctx, actor, court.FacilityID); err != nil {
		return nil, err
	}
	return court, nil
}
