package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest holds the self-registration payload.
type RegisterRequest struct {
	FullName             string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	IP                   string `json:"-"`
	UserAgent            string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	FullName    string           `json:"full_name"`
	Roles       []RoleSlug       `json:"roles"`
	Permissions []PermissionSlug `json:"permissions"`
}

// JWTClaims represents the JWT payload for access tokens. Role and permission
// slugs are resolved at issuance so route gates can check capability
// membership without a database round trip.
type JWTClaims struct {
	UserID      string           `json:"user_id"`
	Email       string           `json:"email"`
	FullName    string           `json:"full_name"`
	Roles       []RoleSlug       `json:"roles"`
	Permissions []PermissionSlug `json:"permissions"`
	jwt.RegisteredClaims
}

// HasRole reports direct role membership in the claims.
func (c *JWTClaims) HasRole(slug RoleSlug) bool {
	for _, r := range c.Roles {
		if r == slug {
			return true
		}
	}
	return false
}

// PermissionSet materializes the claim permissions as a capability set.
func (c *JWTClaims) PermissionSet() PermissionSet {
	return NewPermissionSet(c.Permissions...)
}
