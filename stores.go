package smlogin

import (
	"errors"
	"time"
)

// User is a unified account record.  Users are created either by an external
// identity provider login (Provider/ProviderID set) or by a WebAuthn
// registration (Provider "webauthn").  Handle is the opaque byte identifier
// used inside the WebAuthn protocol; it is stable per user and never reused.
type User struct {
	ID          string         `json:"id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email,omitempty"`
	Provider    string         `json:"provider,omitempty"`     // "google", "facebook", "okta", "webauthn"
	ProviderID  string         `json:"provider_id,omitempty"`  // subject/id at the provider
	Handle      []byte         `json:"handle"`                 // WebAuthn user handle
	Profile     map[string]any `json:"profile,omitempty"`      // raw provider profile
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Credential is a registered public-key credential owned by a User.
// PublicKey holds the COSE-encoded key exactly as the authenticator returned
// it.  SignCount is monotonically non-decreasing across successful logins.
type Credential struct {
	ID        []byte    `json:"id"`
	PublicKey []byte    `json:"public_key"`
	SignCount uint32    `json:"sign_count"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChallengeKind distinguishes the two ceremony types a pending challenge can
// belong to.  At most one challenge is live per (username, kind).
type ChallengeKind string

const (
	ChallengeRegistration   ChallengeKind = "registration"
	ChallengeAuthentication ChallengeKind = "authentication"
)

// Store errors.  Implementations return these (possibly wrapped) so callers
// can branch with errors.Is.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExists   = errors.New("credential already registered")

	// ErrCounterConflict is returned by UpdateSignCount when the stored
	// counter no longer matches the expected previous value - another login
	// won the race.
	ErrCounterConflict = errors.New("sign counter conflict")

	// ErrNoPendingChallenge is returned by TakeChallenge when no live,
	// unexpired challenge exists for the (username, kind) pair.
	ErrNoPendingChallenge = errors.New("no pending challenge")
)

// UserStore manages unified user accounts
type UserStore interface {
	// GetUserById retrieves a user by their ID
	GetUserById(userId string) (*User, error)

	// FindUserByUsername looks a user up by username
	FindUserByUsername(username string) (*User, error)

	// CreateUser creates a new user.  Fails with ErrUserExists if the
	// username is taken.
	CreateUser(user *User) (*User, error)

	// EnsureProviderUser finds the user previously created for this
	// provider identity, or creates one from the provider profile.
	// This is the entry point for OAuth/OIDC logins.
	EnsureProviderUser(provider, providerID string, profile map[string]any) (*User, error)
}

// CredentialStore manages registered public-key credentials.
// Credential IDs are globally unique across all users.
type CredentialStore interface {
	// Credentials returns all credentials owned by a user
	Credentials(userId string) ([]*Credential, error)

	// GetCredential retrieves a credential by its (binary) ID
	GetCredential(id []byte) (*Credential, error)

	// CreateCredential persists a new credential.  Fails with
	// ErrCredentialExists if the ID is already registered to any user.
	CreateCredential(cred *Credential) error

	// UpdateSignCount sets the stored counter to next if and only if it is
	// still prev (compare-and-set).  Returns ErrCounterConflict otherwise.
	UpdateSignCount(id []byte, prev, next uint32) error
}

// ChallengeStore holds short-lived pending challenges for in-flight WebAuthn
// ceremonies.  State between begin and finish lives only here, never in
// memory held across the network boundary.
type ChallengeStore interface {
	// PutChallenge stores a challenge for (username, kind), overwriting any
	// prior one.  Last write wins.
	PutChallenge(username string, kind ChallengeKind, challenge []byte) error

	// TakeChallenge atomically removes and returns the pending challenge.
	// Exactly one caller can take a given challenge; everyone else (and any
	// caller after expiry) gets ErrNoPendingChallenge.
	TakeChallenge(username string, kind ChallengeKind) ([]byte, error)
}
