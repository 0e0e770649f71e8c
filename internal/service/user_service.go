package service

import (
	"context"
	"strings"

	"github.com/campusdesk/ticket-sla/internal/domain"
	"github.com/campusdesk/ticket-sla/internal/repository"
	apperrors "github.com/campusdesk/ticket-sla/pkg/util/errorutil"
)

// Profile is what the identity provider tells us about a user.
type Profile struct {
	Name  string
	Email string
	Role  domain.Role
}

// UserService mirrors identity provider accounts into the users table.
type UserService struct {
	users repository.UserRepository
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// EnsureUser returns the internal user for externalID, creating it on first
// sight. The role from the profile only applies to new users.
func (s *UserService) EnsureUser(ctx context.Context, externalID string, profile Profile) (*domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperrors.NewUnauthorized("token subject missing")
	}
	role := profile.Role
	if !role.Valid() {
		role = domain.RoleStudent
	}
	user := &domain.User{
		ExternalID: externalID,
		Name:       strings.TrimSpace(profile.Name),
		Email:      strings.ToLower(strings.TrimSpace(profile.Email)),
		Role:       role,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Role returns the stored role of userID.
func (s *UserService) Role(ctx context.Context, userID string) (domain.Role, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", apperrors.MapError(err, "user", map[string]any{"id": userID})
	}
	return user.Role, nil
}

// GetByID returns a user.
func (s *UserService) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err, "user", map[string]any{"id": userID})
	}
	return user, nil
}
