//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	sl "github.com/panyam/smlogin"
)

// AutoMigrate runs database migrations for all smlogin tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&CredentialModel{},
		&ChallengeModel{},
	)
}

// =============================================================================
// UserStore
// =============================================================================

// UserStore implements sl.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUserById(userId string) (*sl.User, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", userId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sl.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) FindUserByUsername(username string) (*sl.User, error) {
	var model UserModel
	if err := s.db.First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sl.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) CreateUser(user *sl.User) (*sl.User, error) {
	model := UserToModel(user)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing UserModel
		err := tx.First(&existing, "username = ?", user.Username).Error
		if err == nil {
			return sl.ErrUserExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(model).Error
	})
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *UserStore) EnsureProviderUser(provider, providerID string, profile map[string]any) (*sl.User, error) {
	var model UserModel
	err := s.db.First(&model, "provider = ? AND provider_id = ?", provider, providerID).Error
	if err == nil {
		return model.ToUser(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return s.CreateUser(sl.UserFromProviderProfile(provider, providerID, profile))
}

// =============================================================================
// CredentialStore
// =============================================================================

// CredentialStore implements sl.CredentialStore using GORM
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Credentials(userId string) ([]*sl.Credential, error) {
	var models []CredentialModel
	if err := s.db.Where("user_id = ?", userId).Find(&models).Error; err != nil {
		return nil, err
	}
	creds := make([]*sl.Credential, 0, len(models))
	for _, m := range models {
		cred, err := m.ToCredential()
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (s *CredentialStore) GetCredential(id []byte) (*sl.Credential, error) {
	var model CredentialModel
	if err := s.db.First(&model, "id = ?", credentialKey(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sl.ErrCredentialNotFound
		}
		return nil, err
	}
	return model.ToCredential()
}

func (s *CredentialStore) CreateCredential(cred *sl.Credential) error {
	model := CredentialToModel(cred)
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return sl.ErrCredentialExists
	}
	return nil
}

// UpdateSignCount is a single conditional UPDATE, so the compare-and-set is
// atomic at the database without an explicit transaction.
func (s *CredentialStore) UpdateSignCount(id []byte, prev, next uint32) error {
	res := s.db.Model(&CredentialModel{}).
		Where("id = ? AND sign_count = ?", credentialKey(id), prev).
		Update("sign_count", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var model CredentialModel
		if err := s.db.First(&model, "id = ?", credentialKey(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sl.ErrCredentialNotFound
			}
			return err
		}
		return sl.ErrCounterConflict
	}
	return nil
}

// =============================================================================
// ChallengeStore
// =============================================================================

// ChallengeStore implements sl.ChallengeStore using GORM.  One row per
// (username, kind); Put overwrites, Take deletes inside a transaction so a
// challenge can only ever be redeemed once.
type ChallengeStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewChallengeStore(db *gorm.DB, ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChallengeStore{db: db, ttl: ttl}
}

func (s *ChallengeStore) PutChallenge(username string, kind sl.ChallengeKind, challenge []byte) error {
	model := &ChallengeModel{
		Username:  username,
		Kind:      string(kind),
		Challenge: challenge,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}, {Name: "kind"}},
		UpdateAll: true,
	}).Create(model).Error
}

func (s *ChallengeStore) TakeChallenge(username string, kind sl.ChallengeKind) ([]byte, error) {
	var challenge []byte
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model ChallengeModel
		if err := tx.First(&model, "username = ? AND kind = ?", username, string(kind)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sl.ErrNoPendingChallenge
			}
			return err
		}
		res := tx.Delete(&ChallengeModel{}, "username = ? AND kind = ?", username, string(kind))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Someone else consumed it between our read and our delete.
			return sl.ErrNoPendingChallenge
		}
		if time.Now().After(model.ExpiresAt) {
			return sl.ErrNoPendingChallenge
		}
		challenge = model.Challenge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

// CleanupExpiredChallenges deletes challenges past their TTL.  Run it
// periodically from the app; correctness does not depend on it.
func (s *ChallengeStore) CleanupExpiredChallenges() error {
	return s.db.Delete(&ChallengeModel{}, "expires_at < ?", time.Now()).Error
}
