package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/health-records/internal/model"
	"github.com/jwalitptl/health-records/internal/repository"
	"github.com/jwalitptl/health-records/internal/service"
	"github.com/jwalitptl/health-records/pkg/auth"
	apperrors "github.com/jwalitptl/health-records/pkg/errors"
	"github.com/jwalitptl/health-records/pkg/logger"
	"github.com/jwalitptl/health-records/pkg/security"
)

type Service struct {
	users    repository.UserRepository
	patients repository.PatientRepository
	hasher   security.PasswordHasher
	jwtSvc   auth.JWTService
	logger   *logger.Logger
}

func NewService(users repository.UserRepository, patients repository.PatientRepository, hasher security.PasswordHasher, jwtSvc auth.JWTService, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		users:    users,
		patients: patients,
		hasher:   hasher,
		jwtSvc:   jwtSvc,
		logger:   log.With("auth"),
	}
}

// Register creates an account and signs it in. Patients also get an empty
// profile keyed by their user id.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.TokenResponse, error) {
	role := req.Role
	if role == "" {
		role = model.RolePatient
	}
	if !model.ValidRole(role) {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown role %q", role), nil)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, apperrors.BadRequest(fmt.Sprintf("password must be at least %d characters long", security.MinPasswordLen), err)
		}
		return nil, apperrors.Internal(err)
	}

	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hashed,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict(model.ErrEmailTaken.Error(), err)
		}
		return nil, service.RepoError("user", err)
	}

	if role == model.RolePatient {
		patient := &model.Patient{Base: model.Base{ID: user.ID}, FullName: user.FullName, Email: user.Email}
		if err := s.patients.Upsert(ctx, patient); err != nil {
			return nil, service.RepoError("patient", err)
		}
	}

	s.logger.Info("user registered", "user_id", user.ID.String(), "role", role)
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
		}
		return nil, service.RepoError("user", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.logger.Warn("failed login", "user_id", user.ID.String())
		return nil, apperrors.Unauthorized(model.ErrInvalidCredentials)
	}
	return s.issue(user)
}

// Authenticate validates a bearer token.
func (s *Service) Authenticate(token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

func (s *Service) Me(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, service.RepoError("user", err)
	}
	return user, nil
}

func (s *Service) issue(user *model.User) (*model.TokenResponse, error) {
	token, ttl, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to generate token: %w", err))
	}
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		User:        user,
	}, nil
}
