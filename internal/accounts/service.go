// Package accounts implements registration, login and profile search on top
// of an IdentityStore, the credential hasher and the token manager. It has no
// knowledge of HTTP; handlers translate its sentinel errors into responses.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/identityhub/internal/domain/user"
)

// IdentityStore persists users. Username and email uniqueness is enforced by
// the store itself; Create returns user.ErrDuplicateUser on a collision.
type IdentityStore interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	FindProfile(ctx context.Context, query string) (user.PublicProfile, error)
	Create(ctx context.Context, u user.NewUser) (string, error)
}

type PasswordHasher interface {
	HashPassword(ctx context.Context, plain string) (string, error)
	CheckPassword(ctx context.Context, plain, hash string) (bool, error)
	CheckMissing(ctx context.Context, plain string)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// ProfileCache holds public profiles by search query. Profiles never change
// once created, so a cached entry stays correct until it expires.
type ProfileCache interface {
	Get(ctx context.Context, key string) (user.PublicProfile, bool)
	Set(ctx context.Context, key string, p user.PublicProfile)
}

type Observer interface {
	ObserveAuth(flow, result string)
	ObserveCache(hit bool)
}

type Service struct {
	store  IdentityStore
	hasher PasswordHasher
	tokens TokenIssuer
	cache  ProfileCache
	obs    Observer
}

type Option func(*Service)

func WithProfileCache(c ProfileCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.obs = o
	}
}

func NewService(store IdentityStore, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register creates the account and returns a token for it. The existence
// check only exists to fail fast; two concurrent registrations can both pass
// it, and the loser is rejected by the store's unique constraint.
func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (user.TokenResponse, error) {
	if len(req.Password) > user.MaxPasswordBytes {
		return user.TokenResponse{}, user.ErrPasswordTooLong
	}

	exists, err := s.store.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)

	if err != nil {
		return user.TokenResponse{}, fmt.Errorf("check existing user: %w", err)
	}

	if exists {
		s.observeAuth("register", "duplicate")
		return user.TokenResponse{}, user.ErrDuplicateUser
	}

	hash, err := s.hasher.HashPassword(ctx, req.Password)

	if err != nil {
		return user.TokenResponse{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.Create(ctx, user.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Gender:       req.Gender,
		DateOfBirth:  req.DateOfBirth,
		Country:      req.Country,
	})

	if err != nil {
		if errors.Is(err, user.ErrDuplicateUser) {
			s.observeAuth("register", "duplicate")
			return user.TokenResponse{}, user.ErrDuplicateUser
		}

		return user.TokenResponse{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(id)

	if err != nil {
		return user.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	s.observeAuth("register", "ok")

	return user.TokenResponse{Token: token}, nil
}

// Login returns user.ErrInvalidCredentials both for an unknown username and a
// wrong password, after paying for one bcrypt compare in either case.
func (s *Service) Login(ctx context.Context, req user.LoginRequest) (user.TokenResponse, error) {
	// no stored hash can match it, whoever the user is
	if len(req.Password) > user.MaxPasswordBytes {
		s.observeAuth("login", "invalid_credentials")
		return user.TokenResponse{}, user.ErrInvalidCredentials
	}

	found, err := s.store.GetByUsername(ctx, req.Username)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.CheckMissing(ctx, req.Password)
			s.observeAuth("login", "invalid_credentials")
			return user.TokenResponse{}, user.ErrInvalidCredentials
		}

		return user.TokenResponse{}, fmt.Errorf("get user: %w", err)
	}

	ok, err := s.hasher.CheckPassword(ctx, req.Password, found.PasswordHash)

	if err != nil {
		return user.TokenResponse{}, fmt.Errorf("check password: %w", err)
	}

	if !ok {
		s.observeAuth("login", "invalid_credentials")
		return user.TokenResponse{}, user.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(found.ID)

	if err != nil {
		return user.TokenResponse{}, fmt.Errorf("issue token: %w", err)
	}

	s.observeAuth("login", "ok")

	return user.TokenResponse{Token: token}, nil
}

// Search finds a user whose username or email equals query.
func (s *Service) Search(ctx context.Context, query string) (user.PublicProfile, error) {
	if strings.TrimSpace(query) == "" {
		return user.PublicProfile{}, user.ErrNotFound
	}

	if s.cache != nil {
		p, ok := s.cache.Get(ctx, query)
		s.observeCache(ok)

		if ok {
			return p, nil
		}
	}

	p, err := s.store.FindProfile(ctx, query)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.PublicProfile{}, user.ErrNotFound
		}

		return user.PublicProfile{}, fmt.Errorf("find profile: %w", err)
	}

	// only hits are cached: a miss may be registered a moment later
	if s.cache != nil {
		s.cache.Set(ctx, query, p)
	}

	return p, nil
}

func (s *Service) observeAuth(flow, result string) {
	if s.obs != nil {
		s.obs.ObserveAuth(flow, result)
	}
}

func (s *Service) observeCache(hit bool) {
	if s.obs != nil {
		s.obs.ObserveCache(hit)
	}
}
