package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicteam/plancompras/internal/config"
	"github.com/civicteam/plancompras/internal/plan/entity"
	"github.com/civicteam/plancompras/internal/plan/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// AuthService issues and refreshes JWT token pairs for local accounts.
type AuthService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, rdb *redis.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		rdb:      rdb,
		cfg:      cfg,
	}
}

// TokenPair is an access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login verifies the password and issues a token pair. Inactive accounts
// cannot log in.
func (s *AuthService) Login(ctx context.Context, username, password string) (*entity.User, *TokenPair, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if user.Status != "active" {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	perms, err := s.userRepo.ListPermissionCodes(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load permissions: %w", err)
	}

	pair, err := s.generateTokenPair(user, perms)
	if err != nil {
		return nil, nil, fmt.Errorf("generate token: %w", err)
	}
	return user, pair, nil
}

func (s *AuthService) generateTokenPair(user *entity.User, perms []string) (*TokenPair, error) {
	now := time.Now()
	jti := uuid.New().String()

	accessClaims := jwt.MapClaims{
		"sub":   user.ID,
		"uid":   user.ID,
		"name":  user.Name,
		"perms": perms,
		"iss":   s.cfg.JWT.Issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(s.cfg.JWT.AccessTokenExpire).Unix(),
		"jti":   jti,
	}
	if user.DirectionID != nil {
		accessClaims["direction_id"] = *user.DirectionID
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshJti := uuid.New().String()
	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"type": "refresh",
		"iss":  s.cfg.JWT.Issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.JWT.RefreshTokenExpire).Unix(),
		"jti":  refreshJti,
	}
	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if s.rdb != nil {
		s.rdb.Set(context.Background(), "token:refresh:"+refreshJti, user.ID, s.cfg.JWT.RefreshTokenExpire)
	}

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire.Seconds()),
	}, nil
}

// RefreshToken rotates a refresh token into a fresh pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	token, err := jwt.Parse(refreshTokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims["type"] != "refresh" {
		return nil, fmt.Errorf("invalid token type")
	}

	jti, _ := claims["jti"].(string)
	if s.rdb == nil {
		return nil, fmt.Errorf("refresh token store unavailable")
	}
	userID, err := s.rdb.Get(ctx, "token:refresh:"+jti).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh token expired or invalid")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	perms, err := s.userRepo.ListPermissionCodes(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}

	s.rdb.Del(ctx, "token:refresh:"+jti)
	return s.generateTokenPair(user, perms)
}

// GetCurrentUser returns the authenticated user with roles preloaded.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*entity.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

// Permissions returns the permission codes granted to a user.
func (s *AuthService) Permissions(ctx context.Context, userID string) ([]string, error) {
	return s.userRepo.ListPermissionCodes(ctx, userID)
}

// RBACAuthorizer answers capability checks from the role-permission store.
// Directors additionally need to belong to the plan's direction for the
// send capability.
type RBACAuthorizer struct {
	userRepo *repository.UserRepository
}

func NewRBACAuthorizer(userRepo *repository.UserRepository) *RBACAuthorizer {
	return &RBACAuthorizer{userRepo: userRepo}
}

func (a *RBACAuthorizer) HasCapability(ctx context.Context, actor Actor, capability string, plan *entity.PurchasePlan) (bool, error) {
	ok, err := a.userRepo.HasPermission(ctx, actor.ID, capability)
	if err != nil || !ok {
		return false, err
	}

	// Sending is scoped: a direction-bound user may only send plans of
	// its own direction. Users without a direction act municipality-wide.
	if capability == CapabilitySend {
		user, err := a.userRepo.FindByID(ctx, actor.ID)
		if err != nil {
			return false, err
		}
		if user.DirectionID != nil && *user.DirectionID != plan.DirectionID {
			return false, nil
		}
	}
	return true, nil
}
