package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

const passwordCost = 12

type UserService struct {
	users  port.UserRepository
	tokens port.TokenIssuer
	cost   int
}

func NewUserService(users port.UserRepository, tokens port.TokenIssuer) *UserService {
	return &UserService{
		users:  users,
		tokens: tokens,
		cost:   passwordCost,
	}
}

// WithHashCost overrides the bcrypt cost, mostly to keep tests fast.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

func (s *UserService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	user, err := domain.NewUser(name, email, password)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, user.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, errors.Wrap(err, "check existing user")
	}
	if existing != nil {
		log.Warn().Str("email", user.Email).Msg("User already exists")
		return nil, errors.Wrapf(domain.ErrUserExists, "email %s", user.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	user.PasswordHash = string(hash)

	if err := s.users.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	log.Info().Str("user_id", user.ID.String()).Msg("User created")
	return user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, port.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, port.TokenPair{}, errors.Mark(errors.New("email and password are required"), domain.ErrInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			log.Warn().Str("email", email).Msg("User not found")
		}
		return nil, port.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn().Str("email", email).Msg("Password is incorrect")
		return nil, port.TokenPair{}, errors.Mark(err, domain.ErrInvalidCredentials)
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, port.TokenPair{}, errors.Wrap(err, "issue tokens")
	}
	return user, pair, nil
}

func (s *UserService) Details(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if id.IsZero() {
		return nil, errors.Mark(errors.New("user id is not provided"), domain.ErrInvalidInput)
	}
	return s.users.FindByID(ctx, id)
}

// Refresh mints a new access token from a refresh token whose user still
// exists.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (domain.UserID, string, error) {
	id, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", "", errors.Mark(err, domain.ErrUnauthorized)
	}
	exists, err := s.users.Exists(ctx, id)
	if err != nil {
		return "", "", errors.Wrap(err, "look up user")
	}
	if !exists {
		return "", "", errors.Mark(errors.Wrapf(domain.ErrUserNotFound, "user %s", id), domain.ErrUnauthorized)
	}
	access, err := s.tokens.IssueAccess(id)
	if err != nil {
		return "", "", errors.Wrap(err, "issue access token")
	}
	return id, access, nil
}

// Authenticate resolves an access token to an existing user.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (domain.UserID, error) {
	id, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return "", errors.Mark(err, domain.ErrUnauthorized)
	}
	return id, nil
}
