package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	codeLength      = 6
	codeChars       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeMaxAttempts = 10
	jwtExpDays      = 365
)

// UserService issues identities and chat tokens
type UserService struct {
	users     repository.UserStore
	jwtSecret string
	now       func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users repository.UserStore, jwtSecret string) *UserService {
	return &UserService{
		users:     users,
		jwtSecret: jwtSecret,
		now:       time.Now,
	}
}

// CreateUser creates a new anonymous user with a signed token
func (s *UserService) CreateUser(ctx context.Context) (*models.User, error) {
	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	userID := uuid.New().String()
	token, err := s.GenerateJWT(userID)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:        userID,
		Code:      code,
		Token:     token,
		CreatedAt: s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// UpdatePushToken stores or clears the APNs device token of a user
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	var token *string
	if pushToken != "" {
		token = &pushToken
	}
	if err := s.users.UpdatePushToken(ctx, userID, token); err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	return nil
}

func (s *UserService) uniqueCode(ctx context.Context) (string, error) {
	for range codeMaxAttempts {
		code := generateCode()
		exists, err := s.users.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code existence: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", codeMaxAttempts)
}

func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

// GenerateJWT signs a token whose subject is the user id
func (s *UserService) GenerateJWT(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.AddDate(0, 0, jwtExpDays)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateJWT validates a token and returns the user id it was issued to
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("subject not found in token")
	}
	return claims.Subject, nil
}
