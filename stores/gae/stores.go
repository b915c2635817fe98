//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"encoding/base64"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	sl "github.com/panyam/smlogin"
)

// Kind constants for Datastore entities
const (
	KindUser       = "User"
	KindUsername   = "Username"
	KindCredential = "Credential"
	KindChallenge  = "WebauthnChallenge"
)

// ============================================================================
// UserStore
// ============================================================================

// UserStore implements sl.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context
func (s *UserStore) WithContext(ctx context.Context) *UserStore {
	return &UserStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *UserStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *UserStore) GetUserById(userId string) (*sl.User, error) {
	var entity UserEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(KindUser, userId), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, sl.ErrUserNotFound
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *UserStore) FindUserByUsername(username string) (*sl.User, error) {
	var reservation UsernameEntity
	if err := s.client.Get(s.ctx, s.namespacedKey(KindUsername, username), &reservation); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, sl.ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUserById(reservation.UserID)
}

// CreateUser reserves the username and writes the user entity in one
// transaction, so two racing signups for the same name cannot both win.
func (s *UserStore) CreateUser(user *sl.User) (*sl.User, error) {
	userKey := s.namespacedKey(KindUser, user.ID)
	nameKey := s.namespacedKey(KindUsername, user.Username)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing UsernameEntity
		err := tx.Get(nameKey, &existing)
		if err == nil {
			return sl.ErrUserExists
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}
		if _, err := tx.Put(nameKey, &UsernameEntity{Key: nameKey, UserID: user.ID, CreatedAt: now}); err != nil {
			return err
		}
		_, err = tx.Put(userKey, UserToEntity(user, userKey))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserStore) EnsureProviderUser(provider, providerID string, profile map[string]any) (*sl.User, error) {
	query := datastore.NewQuery(KindUser).
		FilterField("provider", "=", provider).
		FilterField("provider_id", "=", providerID).
		Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(s.ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == nil {
		return entity.ToUser(), nil
	}
	if err != iterator.Done {
		return nil, err
	}
	return s.CreateUser(sl.UserFromProviderProfile(provider, providerID, profile))
}

// ============================================================================
// CredentialStore
// ============================================================================

// CredentialStore implements sl.CredentialStore using Google Cloud Datastore
type CredentialStore struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewCredentialStore creates a new Datastore-backed CredentialStore
func NewCredentialStore(client *datastore.Client, namespace string) *CredentialStore {
	return &CredentialStore{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

func (s *CredentialStore) WithContext(ctx context.Context) *CredentialStore {
	return &CredentialStore{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *CredentialStore) credentialKey(id []byte) *datastore.Key {
	key := datastore.NameKey(KindCredential, base64.RawURLEncoding.EncodeToString(id), nil)
	key.Namespace = s.namespace
	return key
}

func (s *CredentialStore) entityToCredential(entity *CredentialEntity) (*sl.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(entity.Key.Name)
	if err != nil {
		return nil, err
	}
	return &sl.Credential{
		ID:        id,
		PublicKey: entity.PublicKey,
		SignCount: uint32(entity.SignCount),
		UserID:    entity.UserID,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}, nil
}

func (s *CredentialStore) Credentials(userId string) ([]*sl.Credential, error) {
	query := datastore.NewQuery(KindCredential).
		FilterField("user_id", "=", userId)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var creds []*sl.Credential
	it := s.client.Run(s.ctx, query)
	for {
		var entity CredentialEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		entity.Key = key
		cred, err := s.entityToCredential(&entity)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func (s *CredentialStore) GetCredential(id []byte) (*sl.Credential, error) {
	var entity CredentialEntity
	if err := s.client.Get(s.ctx, s.credentialKey(id), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, sl.ErrCredentialNotFound
		}
		return nil, err
	}
	return s.entityToCredential(&entity)
}

func (s *CredentialStore) CreateCredential(cred *sl.Credential) error {
	key := s.credentialKey(cred.ID)
	now := time.Now()

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var existing CredentialEntity
		err := tx.Get(key, &existing)
		if err == nil {
			return sl.ErrCredentialExists
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}
		entity := &CredentialEntity{
			Key:       key,
			PublicKey: cred.PublicKey,
			SignCount: int64(cred.SignCount),
			UserID:    cred.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.Put(key, entity)
		return err
	})
	return err
}

// UpdateSignCount rechecks the stored counter inside the transaction, so two
// racing logins observe each other and only one can advance it.
func (s *CredentialStore) UpdateSignCount(id []byte, prev, next uint32) error {
	key := s.credentialKey(id)
	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity CredentialEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return sl.ErrCredentialNotFound
			}
			return err
		}
		if uint32(entity.SignCount) != prev {
			return sl.ErrCounterConflict
		}
		entity.SignCount = int64(next)
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

// ============================================================================
// ChallengeStore
// ============================================================================

// ChallengeStore implements sl.ChallengeStore using Google Cloud Datastore
type ChallengeStore struct {
	client    *datastore.Client
	namespace string
	ttl       time.Duration
	ctx       context.Context
}

// NewChallengeStore creates a new Datastore-backed ChallengeStore
func NewChallengeStore(client *datastore.Client, namespace string, ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChallengeStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		ctx:       context.Background(),
	}
}

func (s *ChallengeStore) WithContext(ctx context.Context) *ChallengeStore {
	return &ChallengeStore{
		client:    s.client,
		namespace: s.namespace,
		ttl:       s.ttl,
		ctx:       ctx,
	}
}

func (s *ChallengeStore) challengeKey(username string, kind sl.ChallengeKind) *datastore.Key {
	key := datastore.NameKey(KindChallenge, username+":"+string(kind), nil)
	key.Namespace = s.namespace
	return key
}

func (s *ChallengeStore) PutChallenge(username string, kind sl.ChallengeKind, challenge []byte) error {
	key := s.challengeKey(username, kind)
	now := time.Now()
	entity := &ChallengeEntity{
		Key:       key,
		Challenge: challenge,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	_, err := s.client.Put(s.ctx, key, entity)
	return err
}

// TakeChallenge deletes the entity in the same transaction that reads it, so
// of any number of concurrent takers exactly one gets the challenge.
func (s *ChallengeStore) TakeChallenge(username string, kind sl.ChallengeKind) ([]byte, error) {
	key := s.challengeKey(username, kind)
	var challenge []byte

	_, err := s.client.RunInTransaction(s.ctx, func(tx *datastore.Transaction) error {
		var entity ChallengeEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return sl.ErrNoPendingChallenge
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		if time.Now().After(entity.ExpiresAt) {
			return sl.ErrNoPendingChallenge
		}
		challenge = entity.Challenge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

// CleanupExpiredChallenges deletes challenges past their TTL.
func (s *ChallengeStore) CleanupExpiredChallenges() error {
	query := datastore.NewQuery(KindChallenge).
		FilterField("expires_at", "<", time.Now()).
		KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	keys, err := s.client.GetAll(s.ctx, query, nil)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(s.ctx, keys)
}
