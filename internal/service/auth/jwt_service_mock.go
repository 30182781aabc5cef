package auth

import (
	"context"

	"github.com/google/uuid"
)

// MockJWTService is a JWTService for handler tests. Tokens of the form
// "user:<uuid>" validate to that user unless ValidateTokenFn is set.
type MockJWTService struct {
	GenerateTokenFn func(ctx context.Context, userID uuid.UUID) (string, error)
	ValidateTokenFn func(ctx context.Context, tokenString string) (*Claims, error)
}

var _ JWTService = (*MockJWTService)(nil)

// MockTokenPrefix prefixes the tokens understood by MockJWTService.
const MockTokenPrefix = "user:"

// GenerateToken returns "user:<uuid>" unless GenerateTokenFn is set.
func (m *MockJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, userID)
	}
	return MockTokenPrefix + userID.String(), nil
}

// ValidateToken parses "user:<uuid>" unless ValidateTokenFn is set.
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	if len(tokenString) <= len(MockTokenPrefix) || tokenString[:len(MockTokenPrefix)] != MockTokenPrefix {
		return nil, ErrInvalidToken
	}
	id, err := uuid.Parse(tokenString[len(MockTokenPrefix):])
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: id, TokenType: AccessTokenType, Subject: id.String()}, nil
}
