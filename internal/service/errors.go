package service

import (
	"errors"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// notFoundAs converts a repository miss into a domain NotFoundError and passes anything else through.
func notFoundAs(err error, resource string) error {
	if errors.Is(err, database.ErrNotFound) {
		return domain.NotFoundError{Resource: resource, Err: err}
	}
	return err
}

func isAdmin(u *models.User) bool {
	return u != nil && u.Role == models.RoleAdmin
}

func requireActor(actor *models.User) error {
	if actor == nil {
		return domain.UnauthorizedError{Msg: "login required"}
	}
	return nil
}

type clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
