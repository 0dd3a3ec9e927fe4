package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	Update(ctx context.Context, student *models.Student) error
	Stats(ctx context.Context) (*models.StudentStats, error)
}

type identityChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	accounts  identityChecker
	audit     auditRecorder
	cache     *CacheService
	statsTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, accounts identityChecker, audit auditRecorder, cache *CacheService, statsTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, accounts: accounts, audit: audit, cache: cache, statsTTL: statsTTL, validator: validate, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByUser returns the student record owned by the caller.
func (s *StudentService) GetByUser(ctx context.Context, principal *models.Principal) (*models.Student, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	student, err := s.repo.FindByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Update applies admin edits. Toggling IsActive keeps LeftDate consistent.
func (s *StudentService) Update(ctx context.Context, actor *models.Principal, id string, req models.UpdateStudentRequest, meta models.RequestMeta) (*models.Student, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *student

	if req.IsActive != nil && *req.IsActive && !student.IsActive {
		if err := s.ensureAccount(ctx, student); err != nil {
			return nil, err
		}
	}
	if err := applyStudentUpdate(student, req, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	_ = s.cache.Invalidate(ctx, dashboardCachePrefix)
	s.recordAudit(ctx, actor.UserID, student.ID, &before, student, meta)
	return student, nil
}

// ensureAccount refuses to reactivate the archive row of a deleted account.
func (s *StudentService) ensureAccount(ctx context.Context, student *models.Student) error {
	if s.accounts == nil {
		return nil
	}
	exists, err := s.accounts.Exists(ctx, student.UserID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrConflict, "account was deleted; student cannot be reactivated")
	}
	return nil
}

func applyStudentUpdate(student *models.Student, req models.UpdateStudentRequest, now time.Time) error {
	if req.FullName != nil {
		student.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, *req.DateOfBirth)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "invalid date_of_birth")
		}
		student.DateOfBirth = dob
	}
	if req.GuardianNumber != nil {
		student.GuardianNumber = strings.TrimSpace(*req.GuardianNumber)
	}
	if req.PhoneNumber != nil {
		student.PhoneNumber = models.StringPtr(strings.TrimSpace(*req.PhoneNumber))
	}
	if req.SchoolName != nil {
		student.SchoolName = *req.SchoolName
	}
	if req.ClassLevel != nil {
		student.ClassLevel = *req.ClassLevel
	}
	if req.Year != nil {
		student.Year = *req.Year
	}
	if req.MonthlyFees != nil {
		student.MonthlyFees = *req.MonthlyFees
	}
	if req.JoinedDate != nil {
		joined, err := time.Parse(dateLayout, *req.JoinedDate)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "invalid joined_date")
		}
		student.JoinedDate = joined
	}
	if req.IsActive != nil && *req.IsActive != student.IsActive {
		if *req.IsActive {
			student.Reactivate()
		} else {
			student.Deactivate(now)
		}
	}
	return nil
}

// Stats returns dashboard totals, served from cache when possible. The flag
// reports whether the cache answered.
func (s *StudentService) Stats(ctx context.Context) (*models.StudentStats, bool, error) {
	stats, hit, err := remember(ctx, s.cache, statsCacheKey, s.statsTTL, func(ctx context.Context) (*models.StudentStats, error) {
		return s.repo.Stats(ctx)
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student stats")
	}
	return stats, hit, nil
}

func (s *StudentService) recordAudit(ctx context.Context, actorID, studentID string, before, after *models.Student, meta models.RequestMeta) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(before)
	newValues, _ := json.Marshal(after)
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionStudentUpdate,
		Resource:   "student",
		ResourceID: &studentID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record student audit log", zap.Error(err))
	}
}
