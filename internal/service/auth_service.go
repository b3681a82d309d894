package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"autovpn-backend/internal/config"
	"autovpn-backend/internal/pkg/logger"
	"autovpn-backend/internal/store"
	"autovpn-backend/pkg/utils"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error)
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	CountUsers(ctx context.Context) (int, error)
}

type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type Tokens struct {
	Access  string
	Refresh string
}

type AuthService struct {
	users      UserStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

func NewAuthService(cfg config.AuthConfig, users UserStore, logger *logger.Logger) *AuthService {
	return &AuthService{
		users:      users,
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

func (a *AuthService) AccessTTL() time.Duration  { return a.accessTTL }
func (a *AuthService) RefreshTTL() time.Duration { return a.refreshTTL }

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SeedAdmin creates the first user when the table is empty.
func (a *AuthService) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := a.users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if !utils.IsEmail(email) {
		return fmt.Errorf("admin email %q is not valid", email)
	}
	if err := utils.ValidateAdminPassword(password, ""); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := a.users.CreateUser(ctx, email, hash); err != nil && !errors.Is(err, store.ErrExists) {
		return err
	}
	a.logger.Infof("Seeded admin user %s", email)
	return nil
}

func (a *AuthService) Login(ctx context.Context, email, password string) (*Tokens, error) {
	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	access, err := a.sign(user.Email, TokenAccess, a.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.sign(user.Email, TokenRefresh, a.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Tokens{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (a *AuthService) Refresh(refreshToken string) (string, error) {
	email, err := a.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	return a.sign(email, TokenAccess, a.accessTTL)
}

// Verify checks signature, expiry and kind, and returns the subject.
func (a *AuthService) Verify(tokenString, kind string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	if claims.Kind != kind || claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

func (a *AuthService) sign(subject, kind string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
