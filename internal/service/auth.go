// Package service holds the dashboard use cases on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

const minPasswordLength = 8

type AuthService struct {
	users *repository.UserRepository
	cost  int
	now   func() time.Time
}

func NewAuthService(users *repository.UserRepository) *AuthService {
	return &AuthService{
		users: users,
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
	}
}

// Register creates a dashboard user.
func (s *AuthService) Register(ctx context.Context, email, password, confirm string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, invalid("email", "invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, invalid("password", "password must be at least %d characters", minPasswordLength)
	}
	if password != confirm {
		return nil, invalid("confirm_password", "passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, email, string(hash))
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, invalid("email", "email already registered")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and records the login time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return user, nil
}

func (s *AuthService) User(ctx context.Context, id uint) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}
