// Package service holds the booking marketplace use cases on top of the repositories.
package service

import "courtbook/internal/domain"

var (
	_ domain.AvailabilityService = (*AvailabilityService)(nil)
	_ domain.BookingService      = (*BookingService)(nil)
	_ domain.FacilityService     = (*FacilityService)(nil)
	_ domain.AuthService         = (*AuthService)(nil)
	_ domain.UserService         = (*UserService)(nil)
	_ domain.ReportService       = (*ReportService)(nil)
	_ domain.PaymentService      = (*PaymentService)(nil)
)
