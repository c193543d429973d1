package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "resource-monitor"
	dashboardRole = "dashboard"

	authMethodKey = "auth_method"
	claimsKey     = "claims"
)

// AuthMethod names the credential that authenticated a request
type AuthMethod string

const (
	MethodAPIKey AuthMethod = "api_key"
	MethodToken  AuthMethod = "jwt"
)

var (
	ErrNoCredential  = errors.New("missing authentication token")
	ErrBadCredential = errors.New("invalid authentication token")
)

// Claims carried by dashboard tokens
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// AuthService checks the API key and signs short-lived dashboard tokens
type AuthService struct {
	apiKey []byte
	secret []byte
	now    func() time.Time
}

// NewAuthService creates an auth service for apiKey; tokens are signed with secret.
func NewAuthService(apiKey, secret string) *AuthService {
	return &AuthService{
		apiKey: []byte(apiKey),
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (a *AuthService) matchesKey(credential string) bool {
	if len(a.apiKey) == 0 || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), a.apiKey) == 1
}

// Authenticate resolves credential to the method that accepts it. The API key
// is tried first; anything else must be a token this service signed.
func (a *AuthService) Authenticate(credential string) (AuthMethod, *Claims, error) {
	if credential == "" {
		return "", nil, ErrNoCredential
	}
	if a.matchesKey(credential) {
		return MethodAPIKey, nil, nil
	}
	claims, err := a.ParseToken(credential)
	if err != nil {
		return "", nil, err
	}
	return MethodToken, claims, nil
}

// IssueToken signs a dashboard token valid for ttl and returns its expiry.
func (a *AuthService) IssueToken(ttl time.Duration) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   dashboardRole,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: dashboardRole,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires.UTC(), nil
}

// ParseToken verifies signature, issuer and expiry of raw.
func (a *AuthService) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	return claims, nil
}

// credential pulls the caller's key or token from the request. Browsers
// cannot set headers on EventSource and WebSocket, so ?token= is accepted too.
func credential(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
		return header
	}
	return c.Query("token")
}

func authMethod(c *gin.Context) AuthMethod {
	v, _ := c.Get(authMethodKey)
	m, _ := v.(AuthMethod)
	return m
}
