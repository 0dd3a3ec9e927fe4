package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

func principalFromContext(c *gin.Context) *models.Principal {
	return middleware.CurrentPrincipal(c)
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return middleware.RequestMeta(c)
}

func invalidPayload(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
