// Package media stores facility photos on Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const providerName = "cloudinary"

type Store struct {
	cld *cloudinary.Cloudinary
}

func NewStore(cfg config.MediaConfig) (*Store, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return &Store{cld: cld}, nil
}

func (s *Store) Upload(ctx context.Context, file io.Reader, folder, publicID string) (*models.UploadedMedia, error) {
	res, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   folder,
		PublicID: publicID,
	})
	if err != nil {
		return nil, domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("upload: %w", err)}
	}
	if res.Error.Message != "" {
		return nil, domain.UpstreamError{Provider: providerName, Err: errors.New(res.Error.Message)}
	}
	return &models.UploadedMedia{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

// Delete treats an already missing asset as deleted.
func (s *Store) Delete(ctx context.Context, publicID string) error {
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("destroy: %w", err)}
	}
	if res.Error.Message != "" {
		return domain.UpstreamError{Provider: providerName, Err: errors.New(res.Error.Message)}
	}
	switch res.Result {
	case "ok", "not found":
		return nil
	default:
		return domain.UpstreamError{Provider: providerName, Err: fmt.Errorf("destroy result %q", res.Result)}
	}
}
