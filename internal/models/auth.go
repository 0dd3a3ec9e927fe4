package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Landing routes returned by the session endpoint and in redirect hints.
const (
	RouteAuth     = "/auth"
	RouteHome     = "/"
	RouteAdmin    = "/admin"
	RouteStudent  = "/student"
	RouteRegister = "/register"
)

// Principal is the verified caller of a request. Roles are loaded fresh per request.
type Principal struct {
	UserID string
	Roles  RoleSet
}

// IsAdmin reports whether the principal holds the admin capability.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Roles.Has(RoleAdmin)
}

// LoginRequest holds credentials for password sign in.
type LoginRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// OTPRequest starts a phone sign in.
type OTPRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=20"`
}

// OTPChallenge tells the client how long the code lives.
type OTPChallenge struct {
	Phone       string `json:"phone"`
	ExpiresIn   int64  `json:"expires_in"`
	ResendAfter int64  `json:"resend_after"`
}

// OTPVerifyRequest completes a phone sign in.
type OTPVerifyRequest struct {
	Phone     string `json:"phone" validate:"required,min=8,max=20"`
	Code      string `json:"code" validate:"required,numeric,min=4,max=10"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest creates (or onboards) a student account.
type RegisterRequest struct {
	FullName       string  `json:"full_name" validate:"required,min=2,max=100"`
	Username       string  `json:"username" validate:"omitempty,min=3,max=64"`
	Password       string  `json:"password" validate:"omitempty,min=6,max=72"`
	DateOfBirth    string  `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	GuardianNumber string  `json:"guardian_number" validate:"required,min=10,max=15"`
	PhoneNumber    string  `json:"phone_number" validate:"omitempty,min=8,max=20"`
	SchoolName     string  `json:"school_name" validate:"required,max=200"`
	ClassLevel     string  `json:"class_level" validate:"required,max=50"`
	Year           int     `json:"year" validate:"required,min=1000,max=9999"`
	MonthlyFees    float64 `json:"monthly_fees" validate:"min=0"`
	IP             string  `json:"-"`
	UserAgent      string  `json:"-"`
}

// AuthResponse returns the issued tokens and session info.
type AuthResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	IssuedAt     time.Time   `json:"issued_at"`
	Session      SessionInfo `json:"session"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// LogoutRequest revokes a refresh token. The token is optional.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionInfo describes the caller and where the client should land.
type SessionInfo struct {
	UserID   string  `json:"user_id"`
	Username *string `json:"username,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Roles    RoleSet `json:"roles"`
	Landing  string  `json:"landing"`
}

// JWTClaims is the access token payload. Roles are deliberately absent.
type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// RequestMeta carries client details recorded in the audit trail.
type RequestMeta struct {
	IP        string
	UserAgent string
}
