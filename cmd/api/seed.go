package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"courtbook/internal/auth"
	"courtbook/internal/database"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role"`
}

type seedCourt struct {
	Name         string `yaml:"name"`
	Sport        string `yaml:"sport"`
	PricePerHour int64  `yaml:"price_per_hour"`
	Open         string `yaml:"open"`
	Close        string `yaml:"close"`
}

type seedFacility struct {
	OwnerEmail  string      `yaml:"owner_email"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Address     string      `yaml:"address"`
	City        string      `yaml:"city"`
	Courts      []seedCourt `yaml:"courts"`
}

type seedFile struct {
	Users      []seedUser     `yaml:"users"`
	Facilities []seedFacility `yaml:"facilities"`
}

type seedStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	ListFacilities(ctx context.Context, filter models.FacilityFilter, page models.Page) ([]*models.Facility, int64, error)
	CreateFacility(ctx context.Context, facility *models.Facility) error
	CreateCourt(ctx context.Context, court *models.Court) error
}

// loadSeed applies SEED_PATH when set. Existing users and facilities are left untouched.
func loadSeed(ctx context.Context, store seedStore, bcryptCost int, logger *zerolog.Logger) error {
	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		return nil
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("read seed")
		return err
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("parse seed")
		return err
	}

	created, err := applySeed(ctx, store, &seed, bcryptCost)
	if err != nil {
		return fmt.Errorf("apply seed %s: %w", seedPath, err)
	}
	logger.Info().Str("seed_path", seedPath).Int("created", created).Msg("seed applied")
	return nil
}

func applySeed(ctx context.Context, store seedStore, seed *seedFile, bcryptCost int) (int, error) {
	created := 0
	for _, su := range seed.Users {
		_, err := store.GetUserByEmail(ctx, su.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, database.ErrNotFound) {
			return created, err
		}

		role := models.Role(strings.ToUpper(su.Role))
		if !role.Valid() {
			return created, fmt.Errorf("user %s: unknown role %q", su.Email, su.Role)
		}
		if su.Password == "" {
			return created, fmt.Errorf("user %s: password is required", su.Email)
		}
		hash, err := auth.HashPassword(su.Password, bcryptCost)
		if err != nil {
			return created, err
		}
		if err := store.CreateUser(ctx, &models.User{
			Email:        strings.ToLower(strings.TrimSpace(su.Email)),
			PasswordHash: hash,
			FullName:     su.FullName,
			Phone:        su.Phone,
			Role:         role,
			IsActive:     true,
			IsVerified:   true,
		}); err != nil {
			return created, fmt.Errorf("user %s: %w", su.Email, err)
		}
		created++
	}

	for _, sf := range seed.Facilities {
		owner, err := store.GetUserByEmail(ctx, sf.OwnerEmail)
		if err != nil {
			return created, fmt.Errorf("facility %q owner %s: %w", sf.Name, sf.OwnerEmail, err)
		}
		if owner.Role != models.RoleOwner && owner.Role != models.RoleAdmin {
			return created, fmt.Errorf("facility %q: %s cannot own facilities", sf.Name, sf.OwnerEmail)
		}

		exists, err := ownsFacility(ctx, store, owner.ID, sf.Name)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		facility := &models.Facility{
			OwnerID:     owner.ID,
			Name:        sf.Name,
			Description: sf.Description,
			Address:     sf.Address,
			City:        sf.City,
			Status:      models.FacilityApproved,
		}
		if err := store.CreateFacility(ctx, facility); err != nil {
			return created, fmt.Errorf("facility %q: %w", sf.Name, err)
		}
		created++

		for _, sc := range sf.Courts {
			court, err := sc.toCourt(facility.ID)
			if err != nil {
				return created, fmt.Errorf("facility %q: %w", sf.Name, err)
			}
			if err := store.CreateCourt(ctx, court); err != nil {
				return created, fmt.Errorf("court %q: %w", sc.Name, err)
			}
			created++
		}
	}
	return created, nil
}

func ownsFacility(ctx context.Context, store seedStore, ownerID int64, name string) (bool, error) {
	for page := 1; ; page++ {
		items, total, err := store.ListFacilities(ctx, models.FacilityFilter{OwnerID: ownerID}, models.NewPage(page, models.MaxPageLimit))
		if err != nil {
			return false, err
		}
		for _, f := range items {
			if strings.EqualFold(f.Name, name) {
				return true, nil
			}
		}
		if int64(page*models.MaxPageLimit) >= total || len(items) == 0 {
			return false, nil
		}
	}
}

func (sc seedCourt) toCourt(facilityID int64) (*models.Court, error) {
	if sc.PricePerHour <= 0 {
		return nil, fmt.Errorf("court %q: price_per_hour must be positive", sc.Name)
	}
	open, err := clockMinute(sc.Open)
	if err != nil {
		return nil, fmt.Errorf("court %q open: %w", sc.Name, err)
	}
	closing, err := clockMinute(sc.Close)
	if err != nil {
		return nil, fmt.Errorf("court %q close: %w", sc.Name, err)
	}
	return &models.Court{
		FacilityID:   facilityID,
		Name:         sc.Name,
		SportType:    strings.ToLower(sc.Sport),
		PricePerHour: sc.PricePerHour,
		OpenMinute:   open,
		CloseMinute:  closing,
		IsActive:     true,
	}, nil
}

// clockMinute turns "HH:MM" into minutes after midnight. Empty means midnight.
func clockMinute(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
