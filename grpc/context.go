// Package grpc lets gRPC services sitting behind the smlogin HTTP layer see
// who is logged in: gateways forward either a resolved user id or the
// smlogin auth-token JWT as metadata, and the interceptors authenticate
// requests from it.
package grpc

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

// Default metadata keys for authentication context.
// These can be customized via Config if needed.
const (
	// DefaultMetadataKeyUserID is the default gRPC metadata key for the authenticated user ID
	DefaultMetadataKeyUserID = "x-user-id"

	// DefaultMetadataKeyAuthToken is the default gRPC metadata key carrying
	// the smlogin auth-token JWT (the same token the HTTP layer sets as a
	// cookie), for gateways that forward it instead of resolving the user.
	DefaultMetadataKeyAuthToken = "x-auth-token"

	// DefaultMetadataKeySwitchUser is the default gRPC metadata key for switching to a different user (testing only)
	DefaultMetadataKeySwitchUser = "x-switch-user"
)

// TokenVerifierFunc turns a forwarded auth token into a user id.
type TokenVerifierFunc func(token string) (userId string, err error)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyUserID is the gRPC metadata key for the authenticated user ID.
	// Defaults to "x-user-id".
	MetadataKeyUserID string

	// MetadataKeyAuthToken is the gRPC metadata key for the forwarded auth
	// token.  Only consulted when VerifyToken is set.  Defaults to
	// "x-auth-token".
	MetadataKeyAuthToken string

	// MetadataKeySwitchUser is the gRPC metadata key for switching to a different user.
	// Only used when switch auth is enabled. Defaults to "x-switch-user".
	MetadataKeySwitchUser string

	// VerifyToken, when set, authenticates requests whose metadata carries a
	// token instead of a resolved user id.
	VerifyToken TokenVerifierFunc

	// EnableSwitchAuth when true allows the switch-user key to override the user ID.
	// Should only be enabled in development/testing environments.
	EnableSwitchAuth bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyUserID:     DefaultMetadataKeyUserID,
		MetadataKeyAuthToken:  DefaultMetadataKeyAuthToken,
		MetadataKeySwitchUser: DefaultMetadataKeySwitchUser,
		EnableSwitchAuth:      false,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
	if c.MetadataKeyAuthToken == "" {
		c.MetadataKeyAuthToken = DefaultMetadataKeyAuthToken
	}
	if c.MetadataKeySwitchUser == "" {
		c.MetadataKeySwitchUser = DefaultMetadataKeySwitchUser
	}
}

// JWTVerifier builds a TokenVerifierFunc for the HS256 auth tokens the
// smlogin App mints: the subject claim is the user id.
func JWTVerifier(secretKey []byte) TokenVerifierFunc {
	return func(tokenString string) (string, error) {
		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secretKey, nil
		})
		if err != nil {
			return "", err
		}
		return token.Claims.GetSubject()
	}
}

// UserIDFromContext extracts the authenticated user ID from the gRPC context metadata.
// Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	return UserIDFromContextWithConfig(ctx, nil)
}

// UserIDFromContextWithConfig extracts the authenticated user ID using the specified config.
func UserIDFromContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	// Check for switch user first (only if enabled)
	if config.EnableSwitchAuth {
		if values := md.Get(config.MetadataKeySwitchUser); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}

	// Get the actual user ID
	if values := md.Get(config.MetadataKeyUserID); len(values) > 0 {
		return values[0]
	}

	// Fall back to a forwarded token if we know how to verify one
	if config.VerifyToken != nil {
		if values := md.Get(config.MetadataKeyAuthToken); len(values) > 0 {
			if userId, err := config.VerifyToken(values[0]); err == nil {
				return userId
			}
		}
	}

	return ""
}

// UserIDToOutgoingContext adds the user ID to outgoing gRPC context metadata.
func UserIDToOutgoingContext(ctx context.Context, userID string) context.Context {
	return UserIDToOutgoingContextWithKey(ctx, userID, DefaultMetadataKeyUserID)
}

// UserIDToOutgoingContextWithKey adds the user ID to outgoing gRPC context metadata with a custom key.
func UserIDToOutgoingContextWithKey(ctx context.Context, userID string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, userID)
}

// AuthTokenToOutgoingContext forwards the smlogin auth token to a gRPC
// backend for verification there.
func AuthTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthToken, token)
}

// SwitchUserToOutgoingContext adds a switch-user header to outgoing gRPC context metadata.
// This is only effective when EnableSwitchAuth is set on the server.
func SwitchUserToOutgoingContext(ctx context.Context, switchToUserID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeySwitchUser, switchToUserID)
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// IsAuthenticatedWithConfig returns true if there is an authenticated user using the specified config.
func IsAuthenticatedWithConfig(ctx context.Context, config *Config) bool {
	return UserIDFromContextWithConfig(ctx, config) != ""
}
