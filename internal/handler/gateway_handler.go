package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type accountGateway interface {
	GrantAdminRole(ctx context.Context, caller *models.Principal, req models.AssignAdminRoleRequest, meta models.RequestMeta) (*models.GatewayResult, error)
	DeleteAccount(ctx context.Context, caller *models.Principal, req models.DeleteAccountRequest, meta models.RequestMeta) (*models.GatewayResult, error)
}

type smsGateway interface {
	Send(ctx context.Context, caller *models.Principal, req models.SendSMSRequest, meta models.RequestMeta) (*models.SendSMSResult, error)
}

// GatewayHandler serves the privileged function endpoints. Responses are flat
// JSON objects rather than the envelope.
type GatewayHandler struct {
	accounts accountGateway
	sms      smsGateway
}

// NewGatewayHandler constructs the gateway handler.
func NewGatewayHandler(accounts accountGateway, sms smsGateway) *GatewayHandler {
	return &GatewayHandler{accounts: accounts, sms: sms}
}

// AssignAdminRole godoc
// @Summary Grant the admin role
// @Tags Functions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.AssignAdminRoleRequest true "Target user"
// @Success 200 {object} models.GatewayResult
// @Failure 403 {object} response.GatewayError
// @Failure 404 {object} response.GatewayError
// @Router /functions/assign-admin-role [post]
func (h *GatewayHandler) AssignAdminRole(c *gin.Context) {
	var req models.AssignAdminRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FunctionError(c, appErrors.Clone(appErrors.ErrValidation, "userId is required"))
		return
	}
	res, err := h.accounts.GrantAdminRole(c.Request.Context(), principalFromContext(c), req, requestMeta(c))
	if err != nil {
		response.FunctionError(c, err)
		return
	}
	response.Function(c, res)
}

// DeleteAccount godoc
// @Summary Delete an account
// @Description Deactivates the student record and removes the identity. Omit userId to delete yourself.
// @Tags Functions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.DeleteAccountRequest false "Target user"
// @Success 200 {object} models.GatewayResult
// @Failure 403 {object} response.GatewayError
// @Failure 502 {object} response.GatewayError
// @Router /functions/delete-account [post]
func (h *GatewayHandler) DeleteAccount(c *gin.Context) {
	var req models.DeleteAccountRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.FunctionError(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
	}
	res, err := h.accounts.DeleteAccount(c.Request.Context(), principalFromContext(c), req, requestMeta(c))
	if err != nil {
		response.FunctionError(c, err)
		return
	}
	response.Function(c, res)
}

// SendSMS godoc
// @Summary Send a text message
// @Tags Functions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.SendSMSRequest true "Message"
// @Success 200 {object} models.SendSMSResult
// @Failure 400 {object} response.GatewayError
// @Failure 502 {object} response.GatewayError
// @Router /functions/send-sms [post]
func (h *GatewayHandler) SendSMS(c *gin.Context) {
	var req models.SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FunctionError(c, appErrors.Clone(appErrors.ErrValidation, "phoneNumber and message are required"))
		return
	}
	res, err := h.sms.Send(c.Request.Context(), principalFromContext(c), req, requestMeta(c))
	if err != nil {
		response.FunctionError(c, err)
		return
	}
	response.Function(c, res)
}
