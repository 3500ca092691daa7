package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Buildeployship/Advanced-Task-Manager/internal/models"
)

// ErrInvalidToken はトークンが不正または期限切れの場合に返されます。
var ErrInvalidToken = errors.New("invalid token")

// JWTService はJWTトークンの生成と検証を扱います。
// サインアウトしたトークンは期限が切れるまでこのプロセス内で無効として扱います。
type JWTService struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> 期限
}

// NewJWTService は新しいJWTServiceを作成します。
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, revoked: make(map[string]time.Time)}
}

// TTL はトークンの有効期間を返します。
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// GenerateToken はJWTトークンを生成します。
func (s *JWTService) GenerateToken(userID, email, role string) (string, error) {
	now := time.Now()
	claims := &jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"role":    role,
		"jti":     uuid.NewString(),
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken はJWTトークンを検証し、クレームを返します。
func (s *JWTService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("%w: invalid user_id", ErrInvalidToken)
	}
	email, ok := claims["email"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidToken)
	}
	role, ok := claims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: invalid role", ErrInvalidToken)
	}
	tokenID, ok := claims["jti"].(string)
	if !ok || tokenID == "" {
		return nil, fmt.Errorf("%w: invalid jti", ErrInvalidToken)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: invalid exp", ErrInvalidToken)
	}
	if s.isRevoked(tokenID) {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return &models.JWTClaims{
		TokenID:   tokenID,
		UserID:    userID,
		Email:     email,
		Role:      role,
		ExpiresAt: exp.Time,
	}, nil
}

// Revoke はトークンを無効にします。すでに無効なトークンは何もせず nil を返します。
func (s *JWTService) Revoke(tokenString string) error {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.TokenID] = claims.ExpiresAt
	return nil
}

func (s *JWTService) isRevoked(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[tokenID]
	return ok
}
