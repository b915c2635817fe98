package stores

import (
	"bytes"
	"sync"
	"time"

	"github.com/panyam/smlogin"
)

// MemUserStore is a mutex-guarded in-memory UserStore.  The default for the
// demo binary and for tests; swap in stores/gorm or stores/gae for anything
// that must survive a restart.
type MemUserStore struct {
	mu         sync.RWMutex
	byID       map[string]*smlogin.User
	byUsername map[string]*smlogin.User
	byProvider map[string]*smlogin.User
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{
		byID:       map[string]*smlogin.User{},
		byUsername: map[string]*smlogin.User{},
		byProvider: map[string]*smlogin.User{},
	}
}

func providerKey(provider, providerID string) string {
	return provider + "/" + providerID
}

func (s *MemUserStore) GetUserById(userId string) (*smlogin.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[userId]
	if !ok {
		return nil, smlogin.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (s *MemUserStore) FindUserByUsername(username string) (*smlogin.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byUsername[username]
	if !ok {
		return nil, smlogin.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (s *MemUserStore) CreateUser(user *smlogin.User) (*smlogin.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[user.Username]; ok {
		return nil, smlogin.ErrUserExists
	}
	if _, ok := s.byID[user.ID]; ok {
		return nil, smlogin.ErrUserExists
	}
	stored := copyUser(user)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.byID[stored.ID] = stored
	s.byUsername[stored.Username] = stored
	if stored.Provider != "" && stored.ProviderID != "" {
		s.byProvider[providerKey(stored.Provider, stored.ProviderID)] = stored
	}
	return copyUser(stored), nil
}

func (s *MemUserStore) EnsureProviderUser(provider, providerID string, profile map[string]any) (*smlogin.User, error) {
	s.mu.Lock()
	if user, ok := s.byProvider[providerKey(provider, providerID)]; ok {
		defer s.mu.Unlock()
		return copyUser(user), nil
	}
	s.mu.Unlock()
	return s.CreateUser(smlogin.UserFromProviderProfile(provider, providerID, profile))
}

func copyUser(user *smlogin.User) *smlogin.User {
	out := *user
	return &out
}

// MemCredentialStore is an in-memory CredentialStore keyed by the binary
// credential id.  UpdateSignCount is a compare-and-set, matching what the
// database-backed stores do in a transaction.
type MemCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*smlogin.Credential
}

func NewMemCredentialStore() *MemCredentialStore {
	return &MemCredentialStore{creds: map[string]*smlogin.Credential{}}
}

func (s *MemCredentialStore) Credentials(userId string) ([]*smlogin.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*smlogin.Credential
	for _, cred := range s.creds {
		if cred.UserID == userId {
			out = append(out, copyCredential(cred))
		}
	}
	return out, nil
}

func (s *MemCredentialStore) GetCredential(id []byte) (*smlogin.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[string(id)]
	if !ok {
		return nil, smlogin.ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

func (s *MemCredentialStore) CreateCredential(cred *smlogin.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[string(cred.ID)]; ok {
		return smlogin.ErrCredentialExists
	}
	stored := copyCredential(cred)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.creds[string(cred.ID)] = stored
	return nil
}

func (s *MemCredentialStore) UpdateSignCount(id []byte, prev, next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[string(id)]
	if !ok {
		return smlogin.ErrCredentialNotFound
	}
	if cred.SignCount != prev {
		return smlogin.ErrCounterConflict
	}
	cred.SignCount = next
	cred.UpdatedAt = time.Now()
	return nil
}

func copyCredential(cred *smlogin.Credential) *smlogin.Credential {
	out := *cred
	out.ID = bytes.Clone(cred.ID)
	out.PublicKey = bytes.Clone(cred.PublicKey)
	return &out
}
