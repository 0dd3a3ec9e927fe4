package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tuition-api/internal/models"
	"github.com/noah-isme/tuition-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/sms"
)

type identityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	FindByUsername(ctx context.Context, username string) (*models.Identity, error)
	FindByPhone(ctx context.Context, phone string) (*models.Identity, error)
	Exists(ctx context.Context, id string) (bool, error)
	UpdateLastSignIn(ctx context.Context, id string, ts time.Time) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type roleLookup interface {
	RolesFor(ctx context.Context, userID string) (models.RoleSet, error)
}

type otpStore interface {
	AcquireCooldown(ctx context.Context, phone string, window time.Duration) (bool, error)
	ReleaseCooldown(ctx context.Context, phone string) error
	Save(ctx context.Context, phone, codeHash string, ttl time.Duration) error
	Get(ctx context.Context, phone string) (string, error)
	IncrementAttempts(ctx context.Context, phone string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, phone string) error
}

type auditRecorder interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	OTPLength          int
	OTPTTL             time.Duration
	OTPCooldown        time.Duration
	OTPMaxAttempts     int
	HashCost           int
}

// AuthService issues and verifies sessions.
type AuthService struct {
	identities identityRepository
	roles      roleLookup
	otps       otpStore
	audit      auditRecorder
	sender     sms.Sender
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	config     AuthConfig
	now        func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(identities identityRepository, roles roleLookup, otps otpStore, audit auditRecorder, sender sms.Sender, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.OTPLength <= 0 {
		config.OTPLength = 6
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	if config.OTPMaxAttempts <= 0 {
		config.OTPMaxAttempts = 5
	}
	if config.HashCost == 0 {
		config.HashCost = bcrypt.DefaultCost
	}
	return &AuthService{
		identities: identities,
		roles:      roles,
		otps:       otps,
		audit:      audit,
		sender:     sender,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// HashPassword hashes a password with the configured cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login authenticates a username and password.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identity, err := s.identities.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(req.Username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAuthAttempt("password", false)
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch identity")
	}

	if identity.PasswordHash == nil || bcrypt.CompareHashAndPassword([]byte(*identity.PasswordHash), []byte(req.Password)) != nil {
		s.metrics.RecordAuthAttempt("password", false)
		return nil, appErrors.ErrInvalidCredentials
	}

	s.metrics.RecordAuthAttempt("password", true)
	return s.IssueSession(ctx, identity, models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
}

// RequestOTP sends a one-time code to a phone number.
func (s *AuthService) RequestOTP(ctx context.Context, req models.OTPRequest) (*models.OTPChallenge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp payload")
	}
	phone, err := sms.NormalizePhone(req.Phone)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid phone number")
	}

	acquired, err := s.otps.AcquireCooldown(ctx, phone, s.config.OTPCooldown)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "verification store unavailable")
	}
	if !acquired {
		return nil, appErrors.Clone(appErrors.ErrTooManyRequests, "please wait before requesting another code")
	}

	code, err := randomDigits(s.config.OTPLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.config.HashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash code")
	}
	if err := s.otps.Save(ctx, phone, string(hash), s.config.OTPTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "verification store unavailable")
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.config.OTPTTL.Minutes()))
	if _, err := s.sender.Send(ctx, sms.Message{To: phone, Body: body}); err != nil {
		s.metrics.RecordSMSDelivery("otp", string(models.NotificationFailed))
		if cleanupErr := s.otps.Delete(ctx, phone); cleanupErr != nil {
			s.logger.Warn("failed to discard undelivered otp", zap.Error(cleanupErr))
		}
		if cleanupErr := s.otps.ReleaseCooldown(ctx, phone); cleanupErr != nil {
			s.logger.Warn("failed to release otp cooldown", zap.Error(cleanupErr))
		}
		return nil, carrierError(err, "failed to send verification code")
	}
	s.metrics.RecordSMSDelivery("otp", string(models.NotificationSent))

	return &models.OTPChallenge{
		Phone:       phone,
		ExpiresIn:   int64(s.config.OTPTTL.Seconds()),
		ResendAfter: int64(s.config.OTPCooldown.Seconds()),
	}, nil
}

// VerifyOTP exchanges a valid code for a session. Unknown phones get a new identity without roles.
func (s *AuthService) VerifyOTP(ctx context.Context, req models.OTPVerifyRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp payload")
	}
	phone, err := sms.NormalizePhone(req.Phone)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid phone number")
	}

	hash, err := s.otps.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			s.metrics.RecordAuthAttempt("otp", false)
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "code expired or was never requested")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "verification store unavailable")
	}

	attempts, err := s.otps.IncrementAttempts(ctx, phone, s.config.OTPTTL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "verification store unavailable")
	}
	if attempts > int64(s.config.OTPMaxAttempts) {
		if err := s.otps.Delete(ctx, phone); err != nil {
			s.logger.Warn("failed to discard exhausted otp", zap.Error(err))
		}
		s.metrics.RecordAuthAttempt("otp", false)
		return nil, appErrors.Clone(appErrors.ErrTooManyRequests, "too many attempts, request a new code")
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(req.Code))) != nil {
		s.metrics.RecordAuthAttempt("otp", false)
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid verification code")
	}
	if err := s.otps.Delete(ctx, phone); err != nil {
		s.logger.Warn("failed to discard used otp", zap.Error(err))
	}

	identity, err := s.findOrCreatePhoneIdentity(ctx, phone)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthAttempt("otp", true)
	return s.IssueSession(ctx, identity, models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
}

func (s *AuthService) findOrCreatePhoneIdentity(ctx context.Context, phone string) (*models.Identity, error) {
	identity, err := s.identities.FindByPhone(ctx, phone)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch identity")
	}

	identity = &models.Identity{Phone: &phone}
	if err := s.identities.Create(ctx, identity); err != nil {
		if !repository.IsDuplicate(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create identity")
		}
		// Lost a race with a concurrent verification for the same phone.
		identity, err = s.identities.FindByPhone(ctx, phone)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch identity")
		}
	}
	return identity, nil
}

// IssueSession mints an access and refresh token pair for identity.
func (s *AuthService) IssueSession(ctx context.Context, identity *models.Identity, meta models.RequestMeta) (*models.AuthResponse, error) {
	now := s.now()
	accessToken, err := s.generateAccessToken(identity.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshTokenValue, err := generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	refreshToken := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    identity.ID,
		Token:     refreshTokenValue,
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.identities.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if err := s.identities.UpdateLastSignIn(ctx, identity.ID, now); err != nil {
		s.logger.Warn("failed to update last sign in", zap.Error(err))
	}
	s.recordAudit(ctx, identity.ID, models.AuditActionLogin, meta, `{"status":"success"}`)

	principal := s.loadPrincipal(ctx, identity.ID)
	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
		Session:      sessionInfo(identity, principal),
	}, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	storedToken, err := s.identities.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}
	if storedToken.Revoked || s.now().After(storedToken.ExpiresAt) {
		s.metrics.RecordAuthAttempt("refresh", false)
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "refresh token is expired or revoked")
	}

	identity, err := s.identities.FindByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load identity")
	}

	if err := s.identities.RevokeRefreshToken(ctx, storedToken.ID, s.now()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	s.metrics.RecordAuthAttempt("refresh", true)
	return s.IssueSession(ctx, identity, models.RequestMeta{IP: req.IP, UserAgent: req.UserAgent})
}

// Logout revokes the caller's refresh token. An omitted or unknown token is
// ignored.
func (s *AuthService) Logout(ctx context.Context, principal *models.Principal, req models.LogoutRequest, meta models.RequestMeta) error {
	if principal == nil {
		return appErrors.ErrUnauthenticated
	}
	if req.RefreshToken == "" {
		s.recordAudit(ctx, principal.UserID, models.AuditActionLogout, meta, `{"status":"logout"}`)
		return nil
	}

	storedToken, err := s.identities.FindRefreshToken(ctx, req.RefreshToken)
	switch {
	case err != nil:
		s.logger.Warn("logout refresh token lookup failed", zap.String("user_id", principal.UserID), zap.Error(err))
	case storedToken.UserID != principal.UserID:
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	default:
		if err := s.identities.RevokeRefreshToken(ctx, storedToken.ID, s.now()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
		}
	}

	s.recordAudit(ctx, principal.UserID, models.AuditActionLogout, meta, `{"status":"logout"}`)
	return nil
}

// Authenticate verifies a bearer token and loads the caller's roles fresh.
// A failed role lookup yields an empty role set.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Principal, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	exists, err := s.identities.Exists(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to verify session")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "session is no longer valid")
	}
	return s.loadPrincipal(ctx, claims.UserID), nil
}

func (s *AuthService) loadPrincipal(ctx context.Context, userID string) *models.Principal {
	roles, err := s.roles.RolesFor(ctx, userID)
	if err != nil {
		s.logger.Warn("role lookup failed, treating caller as roleless", zap.String("user_id", userID), zap.Error(err))
		roles = 0
	}
	return &models.Principal{UserID: userID, Roles: roles}
}

// Session describes the caller and where they should land.
func (s *AuthService) Session(ctx context.Context, principal *models.Principal) (*models.SessionInfo, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthenticated
	}
	identity, err := s.identities.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "session is no longer valid")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load identity")
	}
	info := sessionInfo(identity, principal)
	return &info, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) recordAudit(ctx context.Context, userID, action string, meta models.RequestMeta, payload string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(payload),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuthService) generateAccessToken(userID string, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

func generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func sessionInfo(identity *models.Identity, principal *models.Principal) models.SessionInfo {
	return models.SessionInfo{
		UserID:   identity.ID,
		Username: identity.Username,
		Phone:    identity.Phone,
		Roles:    principal.Roles,
		Landing:  Landing(principal),
	}
}

// carrierError maps an SMS delivery failure onto an upstream error with details.
func carrierError(err error, message string) *appErrors.Error {
	upstream := appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, message)
	var delivery *sms.DeliveryError
	switch {
	case errors.Is(err, sms.ErrNotConfigured):
		upstream.Message = "SMS service not configured"
		upstream.Details = "carrier credentials are missing on the server"
	case errors.As(err, &delivery):
		upstream.Details = map[string]interface{}{"status": delivery.Status, "code": delivery.Code, "message": delivery.Message}
	}
	return upstream
}
