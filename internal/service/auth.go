package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// AuthService validates Supabase access tokens and the capture-agent
// intake token.
type AuthService struct {
	jwtSecret       []byte
	intakeTokenHash []byte
	logger          *zap.Logger
}

// NewAuthService creates the service. intakeTokenHash is the bcrypt hash
// produced by HashIntakeToken; empty disables token intake (the agent
// must then send a Supabase JWT).
func NewAuthService(jwtSecret, intakeTokenHash string, logger *zap.Logger) *AuthService {
	return &AuthService{
		jwtSecret:       []byte(jwtSecret),
		intakeTokenHash: []byte(intakeTokenHash),
		logger:          logger,
	}
}

// ============================================================
// Supabase JWT
// ============================================================

// SupabaseClaims are the claims GoTrue puts in access tokens.
type SupabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateAccessToken verifies an HS256 Supabase token and returns the caller.
func (s *AuthService) ValidateAccessToken(tokenString string) (*domain.Principal, error) {
	if len(s.jwtSecret) == 0 {
		return nil, &domain.ErrUnauthorized{Message: "authentication is not configured"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &SupabaseClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}

	switch claims.Role {
	case domain.RoleAuthenticated:
		if claims.Subject == "" {
			return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
		}
	case domain.RoleServiceRole:
	default:
		return nil, &domain.ErrUnauthorized{Message: "token role not allowed"}
	}

	return &domain.Principal{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// ============================================================
// Intake token
// ============================================================

// IntakeEnabled reports whether an intake token hash is configured.
func (s *AuthService) IntakeEnabled() bool {
	return len(s.intakeTokenHash) > 0
}

// ValidateIntakeToken compares token with the configured bcrypt hash.
func (s *AuthService) ValidateIntakeToken(token string) (*domain.Principal, error) {
	if !s.IntakeEnabled() || strings.TrimSpace(token) == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid intake token"}
	}
	if err := bcrypt.CompareHashAndPassword(s.intakeTokenHash, []byte(prehash(token))); err != nil {
		s.logger.Warn("intake: token mismatch")
		return nil, &domain.ErrUnauthorized{Message: "invalid intake token"}
	}
	return &domain.Principal{Role: domain.RoleIntake}, nil
}

// HashIntakeToken returns the bcrypt hash to put in INTAKE_TOKEN_HASH.
func HashIntakeToken(token string) (string, error) {
	if len(token) < 16 {
		return "", &domain.ErrValidation{Field: "token", Message: "must have at least 16 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(prehash(token)), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash intake token: %w", err)
	}
	return string(hash), nil
}

// prehash keeps long tokens under bcrypt's 72-byte input limit.
func prehash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
