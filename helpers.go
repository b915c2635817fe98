package smlogin

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewUserID generates a cryptographically secure user ID
func NewUserID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewUserHandle generates an opaque WebAuthn user handle.  Handles are
// random, stable per user and never derived from the username, so renames
// never leak through the protocol.
func NewUserHandle() []byte {
	b := make([]byte, 16)
	rand.Read(b)
	return b
}

// UserFromProviderProfile builds a User record from the userinfo map an
// OAuth/OIDC provider returned.  Used by stores implementing
// EnsureProviderUser on first login for a provider identity.
func UserFromProviderProfile(provider, providerID string, profile map[string]any) *User {
	user := &User{
		ID:         NewUserID(),
		Provider:   provider,
		ProviderID: providerID,
		Handle:     NewUserHandle(),
		Profile:    profile,
	}
	if name, ok := profile["name"].(string); ok && name != "" {
		user.DisplayName = name
	}
	if email, ok := profile["email"].(string); ok && email != "" {
		user.Email = email
	}
	user.Username = usernameForProviderUser(user)
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	return user
}

// usernameForProviderUser picks a human-readable username for an OAuth user.
// Emails win; otherwise fall back to provider-qualified subject so two
// providers can never collide on the same handle.
func usernameForProviderUser(user *User) string {
	if user.Email != "" {
		return strings.ToLower(user.Email)
	}
	return fmt.Sprintf("%s:%s", user.Provider, user.ProviderID)
}
