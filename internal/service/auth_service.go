package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
)

// Token errors.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrNoActiveLogin    = errors.New("no active login")
	ErrLoginInvalidated = errors.New("login invalidated by a newer session")
	ErrNotStudentToken  = errors.New("token is not a student token")
)

// TokenTypeStudent is the only token type this service accepts.
const TokenTypeStudent = "student"

// Claims extends JWT standard claims with the student identity.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
	UserID    int    `json:"user_id"`
}

// AuthService validates student bearer tokens. Logins are issued by the
// portal; each student has at most one live login, whose JTI is kept in Redis.
type AuthService struct {
	secret []byte
	expiry time.Duration
	rdb    *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{secret: []byte(cfg.JWTSecret), expiry: cfg.JWTExpiry, rdb: rdb}
}

// IssueStudentToken signs a student token and registers it as the student's
// active login, replacing any previous one. Used by operator tooling and tests.
func (s *AuthService) IssueStudentToken(ctx context.Context, studentID int) (string, error) {
	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(studentID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		TokenType: TokenTypeStudent,
		UserID:    studentID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.StudentSessionKey(studentID), jti, s.expiry).Err(); err != nil {
		return "", fmt.Errorf("store login: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a student JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeStudent {
		return nil, ErrNotStudentToken
	}
	return claims, nil
}

// ValidateStudentSession checks that the token's JTI is the student's active login.
func (s *AuthService) ValidateStudentSession(ctx context.Context, studentID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.StudentSessionKey(studentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveLogin
		}
		return fmt.Errorf("check login: %w", err)
	}
	if stored != jti {
		return ErrLoginInvalidated
	}
	return nil
}

// RevokeStudentSession removes a student's active login.
func (s *AuthService) RevokeStudentSession(ctx context.Context, studentID int) error {
	return s.rdb.Del(ctx, config.CacheKey.StudentSessionKey(studentID)).Err()
}
