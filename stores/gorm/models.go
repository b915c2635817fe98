//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"time"

	sl "github.com/panyam/smlogin"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// UserModel is the GORM model for users
type UserModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Username    string `gorm:"uniqueIndex;size:255"`
	DisplayName string `gorm:"size:255"`
	Email       string `gorm:"size:255"`
	Provider    string `gorm:"size:32;index:idx_provider_subject"`
	ProviderID  string `gorm:"size:255;index:idx_provider_subject"`
	Handle      []byte
	Profile     JSONMap   `gorm:"type:jsonb"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *sl.User {
	return &sl.User{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Provider:    m.Provider,
		ProviderID:  m.ProviderID,
		Handle:      m.Handle,
		Profile:     m.Profile,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func UserToModel(u *sl.User) *UserModel {
	return &UserModel{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Provider:    u.Provider,
		ProviderID:  u.ProviderID,
		Handle:      u.Handle,
		Profile:     JSONMap(u.Profile),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// CredentialModel is the GORM model for registered WebAuthn credentials.
// The binary credential id becomes the primary key via base64url so it works
// across every SQL backend.
type CredentialModel struct {
	ID        string `gorm:"primaryKey;size:1024"`
	PublicKey []byte
	SignCount uint32
	UserID    string    `gorm:"size:64;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (CredentialModel) TableName() string {
	return "credentials"
}

func credentialKey(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func (m *CredentialModel) ToCredential() (*sl.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(m.ID)
	if err != nil {
		return nil, err
	}
	return &sl.Credential{
		ID:        id,
		PublicKey: m.PublicKey,
		SignCount: m.SignCount,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func CredentialToModel(c *sl.Credential) *CredentialModel {
	return &CredentialModel{
		ID:        credentialKey(c.ID),
		PublicKey: c.PublicKey,
		SignCount: c.SignCount,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ChallengeModel is the GORM model for pending ceremony challenges
type ChallengeModel struct {
	Username  string `gorm:"primaryKey;size:255"`
	Kind      string `gorm:"primaryKey;size:32"`
	Challenge []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ChallengeModel) TableName() string {
	return "webauthn_challenges"
}
