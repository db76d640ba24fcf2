package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// TokenPort issues and revokes bearer tokens.
type TokenPort interface {
	Issue(ctx context.Context, ownerID string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens TokenPort
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens TokenPort) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Register creates an account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, email, name, password string) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || len(password) < 8 {
		return Account{}, fmt.Errorf("%w: email and a password of at least 8 characters are required", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}
	return s.repo.Create(ctx, Account{Email: email, Name: strings.TrimSpace(name), PasswordHash: string(hash)})
}

// Login validates credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Account, string, error) {
	account, err := s.authenticate(ctx, email, password)
	if err != nil {
		return Account{}, "", err
	}
	token, err := s.tokens.Issue(ctx, account.ID)
	if err != nil {
		return Account{}, "", err
	}
	return account, token, nil
}

// Logout revokes the bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

func (s *Service) authenticate(ctx context.Context, email, password string) (Account, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return Account{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	return account, nil
}
