package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

const dateLayout = "2006-01-02"

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ValidationError{Field: name, Msg: "must be a positive integer"}
	}
	return id, nil
}

// decodeJSON rejects unknown fields. An empty body is accepted only when optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return domain.ValidationError{Msg: "invalid JSON body", Err: err}
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps or bare dates, which are read in loc.
func parseTime(raw, field string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, domain.ValidationError{Field: field, Msg: "expected RFC 3339 timestamp or YYYY-MM-DD"}
}

func (s *HTTPServer) timeRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"), "from", s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(q.Get("to"), "to", s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func pageFrom(r *http.Request) models.Page {
	q := r.URL.Query()
	return models.ParsePage(q.Get("page"), q.Get("limit"))
}

func dataEnvelope[T any](items []T) map[string][]T {
	if items == nil {
		items = []T{}
	}
	return map[string][]T{"data": items}
}

// Auth

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	req.RemoteIP = clientIP(r)

	res, err := s.svc.Auth.Register(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	req.RemoteIP = clientIP(r)

	res, err := s.svc.Auth.Login(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	user, err := s.svc.Auth.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request, p principal) {
	if err := s.svc.Auth.Logout(r.Context(), p.Session.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, _ *http.Request, p principal) {
	writeJSON(w, http.StatusOK, p.User)
}

// Public reports

func (s *HTTPServer) handlePopularVenues(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	venues, err := s.svc.Reports.PopularVenues(r.Context(), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope(venues))
}

func (s *HTTPServer) handlePopularSports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sports, err := s.svc.Reports.PopularSports(r.Context(), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataEnvelope(sports))
}

func (s *HTTPServer) handleHome(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Reports.HomePageData(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Facilities

func (s *HTTPServer) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.FacilityFilter{
		Status: models.FacilityApproved,
		City:   strings.TrimSpace(q.Get("city")),
		Sport:  strings.TrimSpace(q.Get("sport")),
	}
	s.listFacilities(w, r, filter)
}

func (s *HTTPServer) handleOwnerFacilities(w http.ResponseWriter, r *http.Request, p principal) {
	s.listFacilities(w, r, models.FacilityFilter{OwnerID: p.User.ID})
}

func (s *HTTPServer) handleModerationQueue(w http.ResponseWriter, r *http.Request, _ principal) {
	status := models.FacilityPendingApproval
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := models.ParseFacilityStatus(raw)
		if !ok {
			s.writeErr(w, r, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", raw)})
			return
		}
		status = parsed
	}
	s.listFacilities(w, r, models.FacilityFilter{Status: status})
}

func (s *HTTPServer) listFacilities(w http.ResponseWriter, r *http.Request, filter models.FacilityFilter) {
	res, err := s.svc.Facilities.ListFacilities(r.Context(), filter, pageFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleGetFacility(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	f, err := s.svc.Facilities.GetFacility(r.Context(), id, s.viewer(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *HTTPServer) handleCreateFacility(w http.ResponseWriter, r *http.Request, p principal) {
	var in models.FacilityInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	f, err := s.svc.Facilities.CreateFacility(r.Context(), p.User, in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *HTTPServer) handleUpdateFacility(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var patch models.FacilityPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	f, err := s.svc.Facilities.UpdateFacility(r.Context(), p.User, id, patch)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *HTTPServer) handleAddCourt(w http.ResponseWriter, r *http.Request, p principal) {
	facilityID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var in models.CourtInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	court, err := s.svc.Facilities.AddCourt(r.Context(), p.User, facilityID, in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, court)
}

func (s *HTTPServer) handleUpdateCourt(w http.ResponseWriter, r *http.Request, p principal) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var in models.CourtInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	court, err := s.svc.Facilities.UpdateCourt(r.Context(), p.User, courtID, in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, court)
}

func (s *HTTPServer) handleUploadPhoto(w http.ResponseWriter, r *http.Request, p principal) {
	facilityID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErr(w, r, domain.ValidationError{Field: "file", Msg: fmt.Sprintf("exceeds %d bytes", s.maxUpload)})
			return
		}
		s.writeErr(w, r, domain.ValidationError{Field: "file", Msg: "multipart field is required", Err: err})
		return
	}
	defer file.Close()

	photo, err := s.svc.Facilities.UploadPhoto(r.Context(), p.User, facilityID, file)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

func (s *HTTPServer) handleDeletePhoto(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.svc.Facilities.DeletePhoto(r.Context(), p.User, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAddReview(w http.ResponseWriter, r *http.Request, p principal) {
	facilityID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var in models.ReviewInput
	if err := decodeJSON(r, &in, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	review, err := s.svc.Facilities.AddReview(r.Context(), p.User, facilityID, in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// Courts and availability

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"), "start", s.loc)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	end, err := parseTime(q.Get("end"), "end", s.loc)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if start.IsZero() || end.IsZero() {
		s.writeErr(w, r, domain.InvalidInterval("start and end are required"))
		return
	}

	ok, err := s.svc.Availability.IsAvailable(r.Context(), courtID, start, end)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"courtId":   courtID,
		"start":     start,
		"end":       end,
		"available": ok,
	})
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		s.writeErr(w, r, domain.ValidationError{Field: "date", Msg: "is required"})
		return
	}
	day, err := time.ParseInLocation(dateLayout, raw, s.loc)
	if err != nil {
		s.writeErr(w, r, domain.ValidationError{Field: "date", Msg: "expected YYYY-MM-DD"})
		return
	}

	busy, err := s.svc.Availability.DaySchedule(r.Context(), courtID, day)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if busy == nil {
		busy = []models.BusyInterval{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"courtId": courtID,
		"date":    day.Format(dateLayout),
		"busy":    busy,
	})
}

func (s *HTTPServer) handleBlockSlot(w http.ResponseWriter, r *http.Request, p principal) {
	courtID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req models.BlockRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	slot, err := s.svc.Facilities.BlockSlot(r.Context(), p.User, courtID, req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (s *HTTPServer) handleUnblockSlot(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := s.svc.Facilities.UnblockSlot(r.Context(), p.User, id); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bookings

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, p principal) {
	var req models.CreateBookingRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	b, err := s.svc.Bookings.CreateBooking(r.Context(), p.User, req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request, p principal) {
	res, err := s.svc.Bookings.ListUserBookings(r.Context(), p.User.ID, pageFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleOwnerBookings(w http.ResponseWriter, r *http.Request, p principal) {
	res, err := s.svc.Bookings.ListOwnerBookings(r.Context(), p.User.ID, pageFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	b, err := s.svc.Bookings.GetBooking(r.Context(), id, p.User)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeErr(w, r, err)
		return
	}
	b, err := s.svc.Bookings.CancelBooking(r.Context(), id, p.User, strings.TrimSpace(req.Reason))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleReceipt(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	pdf, err := s.svc.Reports.BookingReceipt(r.Context(), p.User, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeFile(w, "application/pdf", fmt.Sprintf("receipt-%d.pdf", id), pdf)
}

// Payments

func (s *HTTPServer) handleCreateOrder(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	order, err := s.svc.Payments.CreateOrder(r.Context(), id, p.User)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *HTTPServer) handleVerifyPayment(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		TxnReference string `json:"txnReference"`
	}
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeErr(w, r, err)
		return
	}
	b, err := s.svc.Payments.VerifyPayment(r.Context(), id, p.User, strings.TrimSpace(req.TxnReference))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleWebhook only trusts the event id; the event itself is fetched back from the gateway.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&ev); err != nil {
		s.writeErr(w, r, domain.ValidationError{Msg: "invalid webhook body", Err: err})
		return
	}
	if err := s.svc.Payments.HandleWebhook(r.Context(), ev.ID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Admin

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, _ principal) {
	q := r.URL.Query()
	filter := models.UserFilter{
		Role:  models.Role(strings.ToUpper(strings.TrimSpace(q.Get("role")))),
		Query: strings.TrimSpace(q.Get("q")),
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeErr(w, r, domain.ValidationError{Field: "active", Msg: "must be a boolean"})
			return
		}
		filter.Active = &active
	}
	res, err := s.svc.Users.ListUsers(r.Context(), filter, pageFrom(r))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleBanUser(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeErr(w, r, err)
		return
	}
	user, err := s.svc.Users.BanUser(r.Context(), p.User, id, req.Reason)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUnbanUser(w http.ResponseWriter, r *http.Request, p principal) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	user, err := s.svc.Users.UnbanUser(r.Context(), p.User, id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleRevenueStats(w http.ResponseWriter, r *http.Request, p principal) {
	from, to, err := s.timeRange(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	stats, err := s.svc.Reports.RevenueStats(r.Context(), p.User, from, to)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request, p principal) {
	from, to, err := s.timeRange(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	data, err := s.svc.Reports.ExportBookings(r.Context(), p.User, from, to)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	name := fmt.Sprintf("bookings-%s.xlsx", time.Now().In(s.loc).Format("20060102-150405"))
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", name, data)
}
