//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	sl "github.com/panyam/smlogin"
)

// UserEntity is the Datastore entity for users.  Key name is the user ID.
type UserEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	Username    string         `datastore:"username"`
	DisplayName string         `datastore:"display_name,noindex"`
	Email       string         `datastore:"email"`
	Provider    string         `datastore:"provider"`
	ProviderID  string         `datastore:"provider_id"`
	Handle      []byte         `datastore:"handle,noindex"`
	Profile     []byte         `datastore:"profile,noindex"` // JSON encoded
	CreatedAt   time.Time      `datastore:"created_at"`
	UpdatedAt   time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *sl.User {
	var profile map[string]any
	if e.Profile != nil {
		json.Unmarshal(e.Profile, &profile)
	}
	return &sl.User{
		ID:          e.Key.Name,
		Username:    e.Username,
		DisplayName: e.DisplayName,
		Email:       e.Email,
		Provider:    e.Provider,
		ProviderID:  e.ProviderID,
		Handle:      e.Handle,
		Profile:     profile,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func UserToEntity(u *sl.User, key *datastore.Key) *UserEntity {
	var profileBytes []byte
	if u.Profile != nil {
		profileBytes, _ = json.Marshal(u.Profile)
	}
	return &UserEntity{
		Key:         key,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Provider:    u.Provider,
		ProviderID:  u.ProviderID,
		Handle:      u.Handle,
		Profile:     profileBytes,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// UsernameEntity maps a username to its user ID.  Reserving it inside the
// CreateUser transaction is what makes usernames unique.
type UsernameEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// CredentialEntity is the Datastore entity for registered WebAuthn
// credentials.  Key name is the base64url credential id.
type CredentialEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	PublicKey []byte         `datastore:"public_key,noindex"`
	SignCount int64          `datastore:"sign_count,noindex"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}

// ChallengeEntity is the Datastore entity for pending ceremony challenges.
// Key name is username + ":" + kind.
type ChallengeEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Challenge []byte         `datastore:"challenge,noindex"`
	ExpiresAt time.Time      `datastore:"expires_at"`
	CreatedAt time.Time      `datastore:"created_at"`
}
