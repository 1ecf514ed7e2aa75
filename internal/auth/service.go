// Package auth registers users, checks their passwords and issues the bearer
// tokens the stock API expects.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/safar/qr-stock/internal/apperr"
	"github.com/safar/qr-stock/internal/database"
	"github.com/safar/qr-stock/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

type Service struct {
	users           UserRepository
	tokens          *Manager
	allowRoleSignup bool
	cost            int
}

type Option func(*Service)

// WithRoleSignup lets registrants pick their own role.
func WithRoleSignup(allow bool) Option {
	return func(s *Service) { s.allowRoleSignup = allow }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(users UserRepository, tokens *Manager, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, apperr.Validation("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}

	role := models.RoleShopkeeper
	if req.Role != "" {
		parsed, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, apperr.Validation("%v", err)
		}
		if parsed != models.RoleShopkeeper && !s.allowRoleSignup {
			return nil, apperr.Validation("role %q cannot be self-assigned", parsed)
		}
		role = parsed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        strings.ToLower(addr.Address),
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, apperr.Wrap(apperr.KindDuplicate, err, "user already exists")
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "could not create user")
	}

	return user, nil
}

// Login checks the credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return "", nil, apperr.New(apperr.KindUnauthorized, "invalid email or password")
		}
		return "", nil, apperr.Wrap(apperr.KindUnavailable, err, "could not load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.New(apperr.KindUnauthorized, "invalid email or password")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Verify resolves a bearer token into the caller identity.
func (s *Service) Verify(token string) (models.Identity, error) {
	return s.tokens.Verify(token)
}
