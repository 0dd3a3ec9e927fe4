package service

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/storage"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) error
	SetPhoto(ctx context.Context, id, path string) error
}

type fileStore interface {
	SaveStream(relPath string, r io.Reader, limit int64) (int64, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type urlSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string) (storage.Grant, error)
}

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ProfileService manages profiles and their photos.
type ProfileService struct {
	profiles     profileRepository
	files        fileStore
	signer       urlSigner
	validator    *validator.Validate
	logger       *zap.Logger
	downloadBase string
	maxBytes     int64
	allowed      map[string]struct{}
}

// ProfileConfig configures photo handling.
type ProfileConfig struct {
	DownloadBase string
	MaxPhotoSize int64
	AllowedMIMEs []string
}

// NewProfileService constructs the profile service.
func NewProfileService(profiles profileRepository, files fileStore, signer urlSigner, validate *validator.Validate, logger *zap.Logger, cfg ProfileConfig) *ProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPhotoSize <= 0 {
		cfg.MaxPhotoSize = 5 << 20
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &ProfileService{
		profiles:     profiles,
		files:        files,
		signer:       signer,
		validator:    validate,
		logger:       logger,
		downloadBase: strings.TrimRight(cfg.DownloadBase, "/"),
		maxBytes:     cfg.MaxPhotoSize,
		allowed:      allowed,
	}
}

// Get returns the caller's profile with a signed photo link.
func (s *ProfileService) Get(ctx context.Context, principal *models.Principal) (*models.ProfileView, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	profile, err := s.load(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	return s.view(profile), nil
}

// Update edits the caller's profile.
func (s *ProfileService) Update(ctx context.Context, principal *models.Principal, req models.UpdateProfileRequest) (*models.ProfileView, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	profile, err := s.load(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		profile.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.PhoneNumber != nil {
		profile.PhoneNumber = models.StringPtr(strings.TrimSpace(*req.PhoneNumber))
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return s.view(profile), nil
}

// UploadPhoto stores a new profile photo. The content type is sniffed from the
// bytes, not taken from the client.
func (s *ProfileService) UploadPhoto(ctx context.Context, principal *models.Principal, body io.Reader) (*models.ProfileView, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	profile, err := s.load(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(body, 512)
	head, err := reader.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	if len(head) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo is empty")
	}
	mime := http.DetectContentType(head)
	ext, known := photoExtensions[mime]
	if _, ok := s.allowed[mime]; !ok || !known {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unsupported photo type"), map[string]string{"content_type": mime})
	}

	relPath := path.Join("profiles", principal.UserID, "photo"+ext)
	if _, err := s.files.SaveStream(relPath, reader, s.maxBytes); err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "photo is too large"), map[string]int64{"max_bytes": s.maxBytes})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
	}

	previous := profile.ProfilePhotoURL
	if err := s.profiles.SetPhoto(ctx, principal.UserID, relPath); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save photo")
	}
	if previous != nil && *previous != relPath {
		if err := s.files.Delete(*previous); err != nil {
			s.logger.Warn("failed to remove previous photo", zap.String("path", *previous), zap.Error(err))
		}
	}
	profile.ProfilePhotoURL = &relPath
	return s.view(profile), nil
}

// OpenFile resolves a signed download token to the stored file.
func (s *ProfileService) OpenFile(ctx context.Context, token string) (*os.File, storage.Grant, error) {
	grant, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, grant, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, grant, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.files.Open(grant.Path)
	if err != nil {
		return nil, grant, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	return file, grant, nil
}

func (s *ProfileService) load(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return profile, nil
}

func (s *ProfileService) view(profile *models.Profile) *models.ProfileView {
	view := &models.ProfileView{Profile: *profile}
	if profile.ProfilePhotoURL == nil || s.signer == nil {
		return view
	}
	token, expiresAt, err := s.signer.Generate(profile.ID, *profile.ProfilePhotoURL)
	if err != nil {
		s.logger.Warn("failed to sign photo url", zap.String("profile_id", profile.ID), zap.Error(err))
		return view
	}
	view.PhotoURL = s.downloadBase + "/files/" + token
	view.PhotoExpiresAt = &expiresAt
	return view
}
