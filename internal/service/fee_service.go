package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/export"
)

// Fee mark sources recorded in metrics.
const (
	feeSourceStudent = "student"
	feeSourceAdmin   = "admin"
)

type feeRepository interface {
	Insert(ctx context.Context, record *models.FeeRecord) error
	FindByPeriod(ctx context.Context, studentID string, period models.Period) (*models.FeeRecord, error)
	MarkPaid(ctx context.Context, id string, amount float64, paidAt time.Time) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error)
	Report(ctx context.Context, period models.Period) ([]models.FeeReportRow, error)
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// FeeService maintains the fee ledger. The unique (student, month, year) key
// is enforced by the store; a violation surfaces as Conflict.
type FeeService struct {
	fees      feeRepository
	students  studentLookup
	audit     auditRecorder
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
}

// NewFeeService constructs the fee service. Periods are derived in loc.
func NewFeeService(fees feeRepository, students studentLookup, audit auditRecorder, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &FeeService{
		fees:      fees,
		students:  students,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		location:  loc,
		now:       time.Now,
	}
}

// CurrentBillingPeriod is the month a student may pay for right now.
func (s *FeeService) CurrentBillingPeriod() models.Period {
	return models.PreviousPeriod(s.now().In(s.location))
}

// MarkPreviousMonthPaid records the caller's fee for the previous month.
func (s *FeeService) MarkPreviousMonthPaid(ctx context.Context, principal *models.Principal, meta models.RequestMeta) (*models.FeeRecord, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	student, err := s.students.FindByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.IsActive {
		s.metrics.RecordFeeMark(feeSourceStudent, "rejected")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "inactive students cannot mark fees")
	}

	now := s.now()
	period := models.PreviousPeriod(now.In(s.location))
	paidAt := now.UTC()
	record := &models.FeeRecord{
		StudentID: student.ID,
		Month:     period.Month,
		Year:      period.Year,
		Amount:    student.MonthlyFees,
		Paid:      true,
		PaidDate:  &paidAt,
	}
	if err := s.fees.Insert(ctx, record); err != nil {
		if repository.IsDuplicate(err) {
			s.metrics.RecordFeeMark(feeSourceStudent, "conflict")
			return nil, appErrors.Clone(appErrors.ErrConflict, "fees already marked paid for that period")
		}
		s.metrics.RecordFeeMark(feeSourceStudent, "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record fee")
	}

	s.metrics.RecordFeeMark(feeSourceStudent, "paid")
	s.afterMark(ctx, principal.UserID, record, meta)
	return record, nil
}

// AdminMarkPaid records a payment for any student and period. An unpaid record
// for the period is updated in place.
func (s *FeeService) AdminMarkPaid(ctx context.Context, actor *models.Principal, studentID string, req models.MarkFeePaidRequest, meta models.RequestMeta) (*models.FeeRecord, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	amount := student.MonthlyFees
	if req.Amount != nil {
		amount = *req.Amount
	}
	period := models.Period{Month: req.Month, Year: req.Year}
	paidAt := s.now().UTC()
	alreadyPaid := appErrors.Clone(appErrors.ErrConflict, "fees already marked paid for this month")

	existing, err := s.fees.FindByPeriod(ctx, student.ID, period)
	switch {
	case err == nil && existing.Paid:
		s.metrics.RecordFeeMark(feeSourceAdmin, "conflict")
		return nil, alreadyPaid
	case err == nil:
		updated, markErr := s.fees.MarkPaid(ctx, existing.ID, amount, paidAt)
		if markErr != nil {
			s.metrics.RecordFeeMark(feeSourceAdmin, "error")
			return nil, appErrors.Wrap(markErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee")
		}
		if !updated {
			s.metrics.RecordFeeMark(feeSourceAdmin, "conflict")
			return nil, alreadyPaid
		}
		existing.Paid = true
		existing.Amount = amount
		existing.PaidDate = &paidAt
		s.metrics.RecordFeeMark(feeSourceAdmin, "paid")
		s.afterMark(ctx, actor.UserID, existing, meta)
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee record")
	}

	record := &models.FeeRecord{
		StudentID: student.ID,
		Month:     period.Month,
		Year:      period.Year,
		Amount:    amount,
		Paid:      true,
		PaidDate:  &paidAt,
	}
	if err := s.fees.Insert(ctx, record); err != nil {
		if repository.IsDuplicate(err) {
			s.metrics.RecordFeeMark(feeSourceAdmin, "conflict")
			return nil, alreadyPaid
		}
		s.metrics.RecordFeeMark(feeSourceAdmin, "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record fee")
	}
	s.metrics.RecordFeeMark(feeSourceAdmin, "paid")
	s.afterMark(ctx, actor.UserID, record, meta)
	return record, nil
}

func (s *FeeService) afterMark(ctx context.Context, actorID string, record *models.FeeRecord, meta models.RequestMeta) {
	_ = s.cache.Invalidate(ctx, dashboardCachePrefix)
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(record)
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionFeeMarkPaid,
		Resource:   "fee_record",
		ResourceID: &record.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record fee audit log", zap.Error(err))
	}
}

// ListOwn returns the caller's fee history.
func (s *FeeService) ListOwn(ctx context.Context, principal *models.Principal) ([]models.FeeRecord, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	student, err := s.students.FindByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.list(ctx, student.ID)
}

// ListForStudent returns the fee history of any student.
func (s *FeeService) ListForStudent(ctx context.Context, studentID string) ([]models.FeeRecord, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.list(ctx, studentID)
}

func (s *FeeService) list(ctx context.Context, studentID string) ([]models.FeeRecord, error) {
	records, err := s.fees.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee records")
	}
	return records, nil
}

// FeeReport is a rendered period report.
type FeeReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Report renders the payment standing of active students for a period.
func (s *FeeService) Report(ctx context.Context, period models.Period, format export.Format) (*FeeReport, error) {
	if !period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid period")
	}
	rows, err := s.fees.Report(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build fee report")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Fee report %04d-%02d", period.Year, period.Month),
		Headers: []string{"Student", "Class", "Monthly Fee", "Paid", "Amount", "Paid Date"},
	}
	for _, row := range rows {
		amount, paidDate := "", ""
		if row.Amount != nil {
			amount = strconv.FormatFloat(*row.Amount, 'f', 2, 64)
		}
		if row.PaidDate != nil {
			paidDate = row.PaidDate.In(s.location).Format(dateLayout)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":     row.FullName,
			"Class":       row.ClassLevel,
			"Monthly Fee": strconv.FormatFloat(row.MonthlyFees, 'f', 2, 64),
			"Paid":        strconv.FormatBool(row.Paid),
			"Amount":      amount,
			"Paid Date":   paidDate,
		})
	}

	body, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render fee report")
	}
	return &FeeReport{
		Filename:    fmt.Sprintf("fees-%04d-%02d.%s", period.Year, period.Month, format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}
