package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/cache"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/pkg/logger"
	"taskmanager/pkg/util"
)

const (
	usernameMaxLen    = 150
	passwordMinLength = 8
)

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	Password2 string
	FirstName string
	LastName  string
	Phone     *string
	Bio       string
}

type AuthService struct {
	tx        repository.TxManager
	cache     *cache.UserCache
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthService(tx repository.TxManager, userCache *cache.UserCache, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		tx:        tx,
		cache:     userCache,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// Register creates a new user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	log := logger.WithTrace(ctx, s.logger)
	users := s.tx.Repos().Users

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := &apperr.ValidationError{}
	requiredText(verr, "username", &in.Username, usernameMaxLen)
	if in.Email == "" {
		verr.Add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		verr.Add("email", "Enter a valid email address.")
	}
	if len(in.Password) < passwordMinLength {
		verr.Add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if in.Password2 != "" && in.Password2 != in.Password {
		verr.Add("password2", "Password fields didn't match.")
	}
	if in.Phone != nil && len(*in.Phone) > 15 {
		verr.Add("phone", "Ensure this field has no more than 15 characters.")
	}
	if len([]rune(in.Bio)) > 500 {
		verr.Add("bio", "Ensure this field has no more than 500 characters.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := users.FindByUsername(ctx, in.Username); err == nil {
		verr.Add("username", "A user with that username already exists.")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if _, err := users.FindByEmail(ctx, in.Email); err == nil {
		verr.Add("email", "user with this email already exists.")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := util.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Bio:          in.Bio,
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, mapWriteError(err, "username", "A user with that username already exists.")
	}

	log.Info("User registered", zap.Int64("user_id", u.ID))
	return u, nil
}

// Login checks user credentials and returns a JWT.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	u, err := s.tx.Repos().Users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil, apperr.ErrUnauthorized
		}
		return "", nil, err
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		logger.WithTrace(ctx, s.logger).Info("Login rejected", zap.Int64("user_id", u.ID))
		return "", nil, apperr.ErrUnauthorized
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, err
	}
	s.cache.Set(ctx, u)
	return token, u, nil
}

// Authenticate resolves a bearer token to its user, consulting the cache first.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return nil, apperr.ErrUnauthorized
	}

	if u, ok := s.cache.Get(ctx, userID); ok {
		return u, nil
	}

	u, err := s.tx.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	s.cache.Set(ctx, u)
	return u, nil
}
