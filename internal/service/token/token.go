package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/avdonin/marketplace/internal/models"
)

const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("refresh token revoked")
	ErrExpired      = errors.New("refresh token expired")
)

type Service struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
}

// Pair is a freshly signed access/refresh token pair.
type Pair struct {
	Access  string
	Refresh string
}

func (s *Service) Issue(userID uint, role string) (Pair, error) {
	access, err := SignAccessToken(userID, role, s.JWTSecret)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := SignRefreshToken(userID, role, s.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}
	if err := s.saveRefresh(refresh, userID, role); err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Rotate exchanges a valid stored refresh token for a new pair and revokes
// the old one.
func (s *Service) Rotate(rawToken string) (Pair, error) {
	claims, err := s.validateRefresh(rawToken)
	if err != nil {
		return Pair{}, err
	}

	sub, ok := claims["sub"].(float64)
	if !ok {
		return Pair{}, fmt.Errorf("bad subject claim: %w", ErrInvalidToken)
	}
	role, ok := claims["role"].(string)
	if !ok {
		return Pair{}, fmt.Errorf("bad role claim: %w", ErrInvalidToken)
	}

	if err := s.Revoke(rawToken); err != nil {
		return Pair{}, err
	}
	return s.Issue(uint(sub), role)
}

func (s *Service) Revoke(rawToken string) error {
	err := s.DB.Model(&models.RefreshToken{}).
		Where("token = ?", rawToken).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// ParseAccess verifies the access token signature and returns its claims.
func (s *Service) ParseAccess(rawToken string) (jwt.MapClaims, error) {
	t, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) validateRefresh(rawToken string) (jwt.MapClaims, error) {
	t, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.RefreshSecret, nil
	})
	if err != nil || !t.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if typ, ok := claims["typ"]; !ok || typ != "refresh" {
		return nil, fmt.Errorf("not a refresh token: %w", ErrInvalidToken)
	}

	var stored models.RefreshToken
	if err := s.DB.Where("token = ?", rawToken).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("refresh token not found: %w", ErrInvalidToken)
		}
		return nil, fmt.Errorf("refresh token lookup: %w", err)
	}
	if stored.Revoked {
		return nil, ErrRevoked
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrExpired
	}
	return claims, nil
}

func (s *Service) saveRefresh(rawToken string, userID uint, role string) error {
	row := models.RefreshToken{
		Token:     rawToken,
		UserID:    userID,
		Role:      role,
		ExpiresAt: time.Now().Add(RefreshTTL),
		Revoked:   false,
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func SignAccessToken(userID uint, role string, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(AccessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func SignRefreshToken(userID uint, role string, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(RefreshTTL).Unix(),
		"typ":  "refresh",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
