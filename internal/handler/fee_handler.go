package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/service"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/export"
	"github.com/noah-isme/tuition-api/pkg/response"
)

type feeService interface {
	MarkPreviousMonthPaid(ctx context.Context, principal *models.Principal, meta models.RequestMeta) (*models.FeeRecord, error)
	AdminMarkPaid(ctx context.Context, actor *models.Principal, studentID string, req models.MarkFeePaidRequest, meta models.RequestMeta) (*models.FeeRecord, error)
	ListOwn(ctx context.Context, principal *models.Principal) ([]models.FeeRecord, error)
	ListForStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error)
	Report(ctx context.Context, period models.Period, format export.Format) (*service.FeeReport, error)
}

// FeeHandler exposes the fee ledger.
type FeeHandler struct {
	fees feeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// PayPrevious godoc
// @Summary Mark last month's fees paid
// @Description Records the caller's payment for the most recently completed month
// @Tags Fees
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /me/fees/pay [post]
func (h *FeeHandler) PayPrevious(c *gin.Context) {
	record, err := h.fees.MarkPreviousMonthPaid(c.Request.Context(), principalFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// ListOwn godoc
// @Summary Caller's fee history
// @Tags Fees
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /me/fees [get]
func (h *FeeHandler) ListOwn(c *gin.Context) {
	records, err := h.fees.ListOwn(c.Request.Context(), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// AdminMark godoc
// @Summary Mark a student's fees paid
// @Tags Fees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body models.MarkFeePaidRequest true "Period and amount"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/fees [post]
func (h *FeeHandler) AdminMark(c *gin.Context) {
	var req models.MarkFeePaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid fee payload"))
		return
	}
	record, err := h.fees.AdminMarkPaid(c.Request.Context(), principalFromContext(c), c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListForStudent godoc
// @Summary A student's fee history
// @Tags Fees
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/fees [get]
func (h *FeeHandler) ListForStudent(c *gin.Context) {
	records, err := h.fees.ListForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Report godoc
// @Summary Download a period fee report
// @Tags Fees
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param month query int true "Month (1-12)"
// @Param year query int true "Year"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /fees/report [get]
func (h *FeeHandler) Report(c *gin.Context) {
	month, errMonth := strconv.Atoi(c.Query("month"))
	year, errYear := strconv.Atoi(c.Query("year"))
	if errMonth != nil || errYear != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "month and year are required"))
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, invalidPayload(err, "format must be csv or pdf"))
		return
	}

	report, err := h.fees.Report(c.Request.Context(), models.Period{Month: month, Year: year}, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, report.Filename, report.ContentType, report.Body)
}
