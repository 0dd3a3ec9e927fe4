package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/sms"
)

type accountStore interface {
	Register(ctx context.Context, reg repository.Registration) error
	Purge(ctx context.Context, userID string) (bool, error)
}

type accountIdentities interface {
	Exists(ctx context.Context, id string) (bool, error)
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
}

type roleGranter interface {
	Grant(ctx context.Context, userID string, role models.Role) (bool, error)
}

type studentLifecycle interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	MarkLeft(ctx context.Context, userID string, at time.Time) (int64, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type fileRemover interface {
	Delete(relPath string) error
}

type sessionIssuer interface {
	HashPassword(password string) (string, error)
	IssueSession(ctx context.Context, identity *models.Identity, meta models.RequestMeta) (*models.AuthResponse, error)
}

// RegisterResult is returned by Register. Session is set only when a new
// identity was created.
type RegisterResult struct {
	Student *models.Student      `json:"student"`
	Session *models.AuthResponse `json:"session,omitempty"`
}

// AccountService owns registration and the privileged account operations.
type AccountService struct {
	accounts   accountStore
	identities accountIdentities
	roles      roleGranter
	students   studentLifecycle
	profiles   profileLookup
	files      fileRemover
	sessions   sessionIssuer
	audit      auditRecorder
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// AccountDeps groups AccountService collaborators.
type AccountDeps struct {
	Accounts   accountStore
	Identities accountIdentities
	Roles      roleGranter
	Students   studentLifecycle
	Profiles   profileLookup
	Files      fileRemover
	Sessions   sessionIssuer
	Audit      auditRecorder
	Cache      *CacheService
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// NewAccountService constructs the account service.
func NewAccountService(deps AccountDeps) *AccountService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AccountService{
		accounts:   deps.Accounts,
		identities: deps.Identities,
		roles:      deps.Roles,
		students:   deps.Students,
		profiles:   deps.Profiles,
		files:      deps.Files,
		sessions:   deps.Sessions,
		audit:      deps.Audit,
		cache:      deps.Cache,
		validator:  deps.Validator,
		logger:     deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DeriveUsername lowercases the full name and strips whitespace.
func DeriveUsername(fullName string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, fullName)
}

// Register creates a student account. A signed-in caller without a student
// record is onboarded onto their existing identity instead.
func (s *AccountService) Register(ctx context.Context, principal *models.Principal, req models.RegisterRequest) (*RegisterResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	dob, err := time.Parse(dateLayout, req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date_of_birth")
	}

	fullName := strings.TrimSpace(req.FullName)
	phone := models.StringPtr(strings.TrimSpace(req.PhoneNumber))
	student := &models.Student{
		FullName:       fullName,
		DateOfBirth:    dob,
		GuardianNumber: strings.TrimSpace(req.GuardianNumber),
		PhoneNumber:    phone,
		SchoolName:     strings.TrimSpace(req.SchoolName),
		ClassLevel:     strings.TrimSpace(req.ClassLevel),
		Year:           req.Year,
		MonthlyFees:    req.MonthlyFees,
		IsActive:       true,
	}
	reg := repository.Registration{
		Student: student,
		Profile: &models.Profile{FullName: fullName, PhoneNumber: phone},
	}

	if principal != nil {
		if _, err := s.students.FindByUserID(ctx, principal.UserID); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student record already exists")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		student.UserID = principal.UserID
		reg.Profile.ID = principal.UserID
	} else {
		if req.Password == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "password is required")
		}
		username := strings.ToLower(strings.TrimSpace(req.Username))
		if username == "" {
			username = DeriveUsername(fullName)
		}
		hash, err := s.sessions.HashPassword(req.Password)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		reg.Identity = &models.Identity{Username: &username, PasswordHash: &hash}
	}

	if err := s.accounts.Register(ctx, reg); err != nil {
		if repository.IsDuplicate(err) {
			if reg.Identity != nil {
				return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "student record already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register account")
	}

	_ = s.cache.Invalidate(ctx, dashboardCachePrefix)
	meta := models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent}
	s.recordAudit(ctx, student.UserID, models.AuditActionRegister, "student", student.ID, student, meta)

	result := &RegisterResult{Student: student}
	if reg.Identity != nil {
		session, err := s.sessions.IssueSession(ctx, reg.Identity, meta)
		if err != nil {
			return nil, err
		}
		result.Session = session
	}
	return result, nil
}

// GrantAdminRole grants the admin capability to target. Granting twice is a no-op.
func (s *AccountService) GrantAdminRole(ctx context.Context, caller *models.Principal, req models.AssignAdminRoleRequest, meta models.RequestMeta) (*models.GatewayResult, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	if !caller.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "userId is required")
	}

	exists, err := s.identities.Exists(ctx, req.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	created, err := s.roles.Grant(ctx, req.UserID, models.RoleAdmin)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}
	if !created {
		return &models.GatewayResult{Success: true, Message: "Role already assigned"}, nil
	}

	s.recordAudit(ctx, caller.UserID, models.AuditActionRoleGrant, "user_role", req.UserID, map[string]string{"role": models.RoleAdmin.String()}, meta)
	return &models.GatewayResult{Success: true, Message: "Admin role assigned"}, nil
}

// DeleteAccount deactivates the target's student record and then purges the
// identity. Callers may delete themselves; admins may delete anyone.
func (s *AccountService) DeleteAccount(ctx context.Context, caller *models.Principal, req models.DeleteAccountRequest, meta models.RequestMeta) (*models.GatewayResult, error) {
	if caller == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid userId")
	}
	target := req.UserID
	if target == "" {
		target = caller.UserID
	}
	if target != caller.UserID && !caller.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied. admin only")
	}
	log := s.logger.With(zap.String("target_user_id", target), zap.String("actor_user_id", caller.UserID))

	exists, err := s.identities.Exists(ctx, target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	var photoPath string
	if profile, err := s.profiles.FindByID(ctx, target); err == nil && profile.ProfilePhotoURL != nil {
		photoPath = *profile.ProfilePhotoURL
	}

	marked, err := s.students.MarkLeft(ctx, target, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}

	deleted, err := s.accounts.Purge(ctx, target)
	if err != nil {
		log.Error("account purge failed after student deactivation", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "student deactivated but account deletion failed")
	}
	if !deleted {
		log.Warn("identity already removed by a concurrent deletion")
	}

	_ = s.cache.Invalidate(ctx, dashboardCachePrefix)
	if photoPath != "" && s.files != nil {
		if err := s.files.Delete(photoPath); err != nil {
			log.Warn("failed to remove profile photo", zap.Error(err))
		}
	}
	s.recordAudit(ctx, caller.UserID, models.AuditActionAccountDelete, "identity", target, map[string]interface{}{"student_deactivated": marked > 0}, meta)
	return &models.GatewayResult{Success: true, Message: "Account deleted"}, nil
}

// CreateAdmin provisions a password identity holding the admin role. An
// existing identity with the same username is promoted instead.
func (s *AccountService) CreateAdmin(ctx context.Context, username, phone, password string) (*models.Identity, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if len(username) < 3 || len(password) < 6 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "username needs 3 characters and password 6")
	}
	var phonePtr *string
	if strings.TrimSpace(phone) != "" {
		normalized, err := sms.NormalizePhone(phone)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid phone number")
		}
		phonePtr = &normalized
	}
	hash, err := s.sessions.HashPassword(password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identity := &models.Identity{Username: &username, Phone: phonePtr, PasswordHash: &hash}
	if err := s.identities.Create(ctx, identity); err != nil {
		if !repository.IsDuplicate(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create identity")
		}
		identity, err = s.identities.FindByUsername(ctx, username)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load identity")
		}
	}
	if _, err := s.roles.Grant(ctx, identity.ID, models.RoleAdmin); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign role")
	}
	return identity, nil
}

func (s *AccountService) recordAudit(ctx context.Context, actorID, action, resource, resourceID string, values interface{}, meta models.RequestMeta) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record account audit log", zap.String("action", action), zap.Error(err))
	}
}
