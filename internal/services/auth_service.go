package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/repositories"
	"github.com/prudhvinik1/edgerelay/internal/utils"
	"github.com/samber/lo"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAccountNotFound    = errors.New("account not found")
)

var validate = validator.New()

// AuthService issues and checks the identities the relay trusts.
type AuthService struct {
	accountRepo  repositories.AccountRepository
	sessionRepo  repositories.SessionRepository
	presenceRepo repositories.PresenceRepository
	jwtSecret    string
	jwtExpiry    time.Duration
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// ProfilePhoto is the URL of an already stored upload.
	ProfilePhoto string `json:"-" validate:"omitempty,url"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *models.Account `json:"user"`
}

type TokenClaims struct {
	UserID    models.UserID
	SessionID string
}

// UserSummary is an account as listed to other users.
type UserSummary struct {
	ID           models.UserID `json:"_id"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	ProfilePhoto string        `json:"profilePhoto"`
	Online       bool          `json:"online"`
}

func NewAuthService(
	accountRepo repositories.AccountRepository,
	sessionRepo repositories.SessionRepository,
	presenceRepo repositories.PresenceRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
) *AuthService {
	return &AuthService{
		accountRepo:  accountRepo,
		sessionRepo:  sessionRepo,
		presenceRepo: presenceRepo,
		jwtSecret:    jwtSecret,
		jwtExpiry:    jwtExpiry,
	}
}

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	// Check if email already exists
	existing, err := s.accountRepo.GetByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		return nil, ErrEmailExists
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		ProfilePhoto: req.ProfilePhoto,
	}
	err = s.accountRepo.Create(ctx, account)
	// A concurrent registration can win between the check and the insert
	if errors.Is(err, repositories.ErrAlreadyExists) {
		return nil, ErrEmailExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return s.startSession(ctx, account)
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	account, err := s.accountRepo.GetByEmail(ctx, req.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !utils.CheckPassword(account.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	return s.startSession(ctx, account)
}

func (s *AuthService) startSession(ctx context.Context, account *models.Account) (*LoginResponse, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    account.UserID(),
		ExpiresAt: now.Add(s.jwtExpiry),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.generateToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      account,
	}, nil
}

func (s *AuthService) generateToken(session *models.Session) (string, error) {
	claims := jwt.MapClaims{
		"sub": string(session.UserID),
		"jti": session.ID,
		"exp": session.ExpiresAt.Unix(),
		"iat": session.CreatedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken checks the signature and expiry of tokenString. It does not
// check whether the session was logged out; see Authenticate.
func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	sessionID, ok := claims["jti"].(string)
	if !ok || sessionID == "" {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		UserID:    models.UserID(userID),
		SessionID: sessionID,
	}, nil
}

// Authenticate resolves a bearer token to the identity it was issued for.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (models.UserID, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return "", err
	}

	session, err := s.sessionRepo.GetByID(ctx, claims.SessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != claims.UserID {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return err
	}

	err = s.sessionRepo.Delete(ctx, claims.SessionID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// ListUsers returns every account with its mirrored online status.
func (s *AuthService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	ids := lo.Map(accounts, func(a *models.Account, _ int) models.UserID { return a.UserID() })
	presence, err := s.presenceRepo.GetBulkPresence(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	return lo.Map(accounts, func(a *models.Account, _ int) UserSummary {
		return UserSummary{
			ID:           a.UserID(),
			Username:     a.Username,
			Email:        a.Email,
			ProfilePhoto: a.ProfilePhoto,
			Online:       presence[a.UserID()].Status == string(models.StatusOnline),
		}
	}), nil
}

// SetProfilePhoto points the account's photo at url, or clears it when url is
// empty, and returns the updated account.
func (s *AuthService) SetProfilePhoto(ctx context.Context, userID models.UserID, url string) (*models.Account, error) {
	if url != "" {
		if err := validate.Var(url, "url"); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	id, err := uuid.Parse(string(userID))
	if err != nil {
		return nil, ErrAccountNotFound
	}

	err = s.accountRepo.UpdateProfilePhoto(ctx, id, url)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile photo: %w", err)
	}

	account, err := s.accountRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}
