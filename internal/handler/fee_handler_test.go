package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/service"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/export"
)

type fakeFeeSrv struct {
	payErr       error
	markStudent  string
	markReq      models.MarkFeePaidRequest
	reportPeriod models.Period
	reportFormat export.Format
}

func (f *fakeFeeSrv) MarkPreviousMonthPaid(_ context.Context, principal *models.Principal, _ models.RequestMeta) (*models.FeeRecord, error) {
	if f.payErr != nil {
		return nil, f.payErr
	}
	return &models.FeeRecord{ID: "fee-1", StudentID: "s-1", Month: 4, Year: 2025, Paid: true}, nil
}

func (f *fakeFeeSrv) AdminMarkPaid(_ context.Context, _ *models.Principal, studentID string, req models.MarkFeePaidRequest, _ models.RequestMeta) (*models.FeeRecord, error) {
	f.markStudent = studentID
	f.markReq = req
	return &models.FeeRecord{ID: "fee-2", StudentID: studentID, Month: req.Month, Year: req.Year, Paid: true}, nil
}

func (f *fakeFeeSrv) ListOwn(context.Context, *models.Principal) ([]models.FeeRecord, error) {
	return []models.FeeRecord{{ID: "fee-1"}}, nil
}

func (f *fakeFeeSrv) ListForStudent(_ context.Context, studentID string) ([]models.FeeRecord, error) {
	return []models.FeeRecord{{ID: "fee-1", StudentID: studentID}}, nil
}

func (f *fakeFeeSrv) Report(_ context.Context, period models.Period, format export.Format) (*service.FeeReport, error) {
	f.reportPeriod = period
	f.reportFormat = format
	return &service.FeeReport{Filename: "fees-2025-04.csv", ContentType: "text/csv", Body: []byte("Student\nAda\n")}, nil
}

func TestFeeHandlerPayPreviousCreated(t *testing.T) {
	h := NewFeeHandler(&fakeFeeSrv{})

	c, rec := newTestContext(http.MethodPost, "/me/fees/pay", nil)
	withPrincipal(c, "user-1", models.RoleStudent)
	h.PayPrevious(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["month"])
}

func TestFeeHandlerPayPreviousConflict(t *testing.T) {
	h := NewFeeHandler(&fakeFeeSrv{payErr: appErrors.Clone(appErrors.ErrConflict, "fees already marked paid for that period")})

	c, rec := newTestContext(http.MethodPost, "/me/fees/pay", nil)
	withPrincipal(c, "user-1", models.RoleStudent)
	h.PayPrevious(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, rec))
}

func TestFeeHandlerAdminMark(t *testing.T) {
	fees := &fakeFeeSrv{}
	h := NewFeeHandler(fees)

	c, rec := newTestContext(http.MethodPost, "/students/s-3/fees", map[string]interface{}{"month": 2, "year": 2025, "amount": 75})
	c.Params = append(c.Params, ginParam("id", "s-3"))
	withPrincipal(c, "admin-1", models.RoleAdmin)
	h.AdminMark(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s-3", fees.markStudent)
	assert.Equal(t, 2, fees.markReq.Month)
	require.NotNil(t, fees.markReq.Amount)
	assert.Equal(t, 75.0, *fees.markReq.Amount)
}

func TestFeeHandlerReportAttachment(t *testing.T) {
	fees := &fakeFeeSrv{}
	h := NewFeeHandler(fees)

	c, rec := newTestContext(http.MethodGet, "/fees/report?month=4&year=2025&format=csv", nil)
	h.Report(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.Period{Month: 4, Year: 2025}, fees.reportPeriod)
	assert.Equal(t, export.FormatCSV, fees.reportFormat)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "fees-2025-04.csv")
	assert.Equal(t, "Student\nAda\n", rec.Body.String())
}

func TestFeeHandlerReportValidation(t *testing.T) {
	h := NewFeeHandler(&fakeFeeSrv{})

	c, rec := newTestContext(http.MethodGet, "/fees/report?month=4", nil)
	h.Report(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/fees/report?month=4&year=2025&format=xlsx", nil)
	h.Report(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
