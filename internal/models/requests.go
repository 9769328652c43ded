package models

import "time"

type CreateBookingRequest struct {
	CourtID       int64     `json:"courtId"`
	Start         time.Time `json:"startDatetime"`
	End           time.Time `json:"endDatetime"`
	PaymentMethod string    `json:"paymentMethod"`
}

type FacilityInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	City        string `json:"city"`
}

type CourtInput struct {
	Name         *string `json:"name"`
	SportType    *string `json:"sportType"`
	PricePerHour *int64  `json:"pricePerHour"`
	OpenMinute   *int    `json:"openMinute"`
	CloseMinute  *int    `json:"closeMinute"`
	IsActive     *bool   `json:"isActive"`
}

type BlockRequest struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	Role         string `json:"role"`
	CaptchaToken string `json:"captchaToken"`
	RemoteIP     string `json:"-"`
}

type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
	RemoteIP     string `json:"-"`
}

type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        *User     `json:"user"`
}

// RegisterResult exposes the verification token only when the server is configured to do so.
type RegisterResult struct {
	User              *User  `json:"user"`
	VerificationToken string `json:"verificationToken,omitempty"`
}
