package models

import (
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultPage       = 1
	DefaultPageLimit  = 10
	MaxPageLimit      = 100
	DefaultVenueLimit = 6
	MaxVenueLimit     = 50
	DefaultSportLimit = 10
)

// Page is a normalized page request.
type Page struct {
	Page  int
	Limit int
}

// NewPage clamps raw query values into a usable page.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Page: page, Limit: limit}
}

// ParsePage reads page and limit from raw strings; garbage falls back to defaults.
func ParsePage(rawPage, rawLimit string) Page {
	page, _ := strconv.Atoi(rawPage)
	limit, _ := strconv.Atoi(rawLimit)
	return NewPage(page, limit)
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// FormatMinor renders an amount in minor units with two decimals.
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

func NewPageMeta(p Page, total int64) PageMeta {
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return PageMeta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}

// Paginated is the list envelope shared by every list endpoint.
type Paginated[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

func NewPaginated[T any](items []T, p Page, total int64) Paginated[T] {
	if items == nil {
		items = []T{}
	}
	return Paginated[T]{Data: items, Meta: NewPageMeta(p, total)}
}

type PopularVenue struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	AvgRating     float64   `json:"avgRating"`
	ReviewCount   int64     `json:"reviewCount"`
	StartingPrice *int64    `json:"startingPrice"`
	CreatedAt     time.Time `json:"createdAt"`
}

type SportCount struct {
	Sport    string `json:"sport"`
	Bookings int64  `json:"bookings"`
}

type HomePageData struct {
	PopularVenues []PopularVenue `json:"popularVenues"`
	PopularSports []SportCount   `json:"popularSports"`
}

type FacilityRevenue struct {
	FacilityID   int64  `json:"facilityId"`
	FacilityName string `json:"facilityName"`
	Bookings     int64  `json:"bookings"`
	Revenue      int64  `json:"revenue"`
}

type RevenueStats struct {
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Bookings   int64             `json:"bookings"`
	Revenue    int64             `json:"revenue"`
	Cancelled  int64             `json:"cancelled"`
	ByFacility []FacilityRevenue `json:"byFacility"`
}

// BookingReportRow is a denormalized booking used by exports, receipts and the ledger.
type BookingReportRow struct {
	BookingID    int64
	Status       BookingStatus
	Start        time.Time
	End          time.Time
	TotalPrice   int64
	Currency     string
	TxnReference string
	UserName     string
	UserEmail    string
	FacilityName string
	CourtName    string
	SportType    string
	CreatedAt    time.Time
}
