package auth

import (
	"context"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
)

// GetUserIDFromContext extracts the authenticated user ID from the context.
// The user ID is the JWT subject claim. Returns empty string and false when
// no claims are present or the subject is empty.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := GetClaims(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// RequireUserIDFromContext extracts the authenticated user ID from the
// context, returning ErrForbidden when authentication is missing.
func RequireUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := GetUserIDFromContext(ctx)
	if !ok {
		return "", apperrors.ErrForbidden
	}
	return userID, nil
}
