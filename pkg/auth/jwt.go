package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/health-records/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingKey   = errors.New("signing secret is required")
)

const fileAudience = "file-download"

type JWTService interface {
	GenerateAccessToken(user *model.User) (string, time.Duration, error)
	ValidateToken(token string) (*model.TokenClaims, error)
	// GenerateFileToken signs a short lived grant for downloading one blob.
	GenerateFileToken(key string, ttl time.Duration) (string, error)
	ValidateFileToken(token string) (string, error)
}

type Config struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

type jwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJWTService(cfg Config) (JWTService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingKey
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	return &jwtService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expiry: cfg.Expiry,
		now:    time.Now,
	}, nil
}

func (s *jwtService) GenerateAccessToken(user *model.User) (string, time.Duration, error) {
	now := s.now()
	claims := model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, s.expiry, nil
}

func (s *jwtService) ValidateToken(token string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	if err := s.parse(token, claims); err != nil {
		return nil, err
	}
	if len(claims.Audience) > 0 {
		return nil, ErrInvalidToken
	}
	if !model.ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

func (s *jwtService) GenerateFileToken(key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	now := s.now()
	claims := model.FileClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{fileAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Key: key,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign file token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateFileToken(token string) (string, error) {
	claims := &model.FileClaims{}
	if err := s.parse(token, claims, jwt.WithAudience(fileAudience)); err != nil {
		return "", err
	}
	if claims.Key == "" {
		return "", ErrInvalidToken
	}
	return claims.Key, nil
}

func (s *jwtService) parse(token string, claims jwt.Claims, extra ...jwt.ParserOption) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	opts = append(opts, extra...)

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
