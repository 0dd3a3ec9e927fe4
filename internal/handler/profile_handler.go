package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/response"
	"github.com/noah-isme/tuition-api/pkg/storage"
)

type profileService interface {
	Get(ctx context.Context, principal *models.Principal) (*models.ProfileView, error)
	Update(ctx context.Context, principal *models.Principal, req models.UpdateProfileRequest) (*models.ProfileView, error)
	UploadPhoto(ctx context.Context, principal *models.Principal, body io.Reader) (*models.ProfileView, error)
	OpenFile(ctx context.Context, token string) (*os.File, storage.Grant, error)
}

// ProfileHandler exposes profile endpoints and signed file downloads.
type ProfileHandler struct {
	profiles profileService
	maxBytes int64
}

// NewProfileHandler constructs ProfileHandler. maxBytes bounds the multipart body.
func NewProfileHandler(profiles profileService, maxBytes int64) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, maxBytes: maxBytes}
}

// Get godoc
// @Summary Caller's profile
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	view, err := h.profiles.Get(c.Request.Context(), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Update godoc
// @Summary Update caller's profile
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateProfileRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /me/profile [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid profile payload"))
		return
	}
	view, err := h.profiles.Update(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// UploadPhoto godoc
// @Summary Upload a profile photo
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param photo formData file true "Image file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /me/profile/photo [post]
func (h *ProfileHandler) UploadPhoto(c *gin.Context) {
	if h.maxBytes > 0 {
		// Allow room for multipart framing around the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64<<10)
	}
	header, err := c.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo is too large"))
			return
		}
		response.Error(c, invalidPayload(err, "photo file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, invalidPayload(err, "failed to read photo"))
		return
	}
	defer file.Close()

	view, err := h.profiles.UploadPhoto(c.Request.Context(), principalFromContext(c), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Download godoc
// @Summary Fetch a file through a signed link
// @Tags Profile
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *ProfileHandler) Download(c *gin.Context) {
	file, grant, err := h.profiles.OpenFile(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, path.Base(grant.Path), info.ModTime(), file)
}
