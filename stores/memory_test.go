package stores

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/panyam/smlogin"
)

func TestUserStoreCreateAndLookup(t *testing.T) {
	store := NewMemUserStore()
	user, err := store.CreateUser(&smlogin.User{
		ID:       smlogin.NewUserID(),
		Username: "alice",
		Provider: "webauthn",
		Handle:   smlogin.NewUserHandle(),
	})
	if err != nil {
		t.Fatal(err)
	}

	byID, err := store.GetUserById(user.ID)
	if err != nil || byID.Username != "alice" {
		t.Fatalf("GetUserById = %v, %v", byID, err)
	}
	byName, err := store.FindUserByUsername("alice")
	if err != nil || byName.ID != user.ID {
		t.Fatalf("FindUserByUsername = %v, %v", byName, err)
	}

	if _, err := store.FindUserByUsername("bob"); !errors.Is(err, smlogin.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.CreateUser(&smlogin.User{ID: smlogin.NewUserID(), Username: "alice"}); !errors.Is(err, smlogin.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestUserStoreEnsureProviderUser(t *testing.T) {
	store := NewMemUserStore()
	profile := map[string]any{"name": "Carol C", "email": "Carol@Example.com"}

	first, err := store.EnsureProviderUser("google", "sub-123", profile)
	if err != nil {
		t.Fatal(err)
	}
	if first.Username != "carol@example.com" {
		t.Errorf("username = %q", first.Username)
	}
	if first.DisplayName != "Carol C" {
		t.Errorf("display name = %q", first.DisplayName)
	}

	// Second login with the same provider identity returns the same user.
	again, err := store.EnsureProviderUser("google", "sub-123", profile)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("expected same user, got %s and %s", first.ID, again.ID)
	}

	// Same subject at a different provider is a different identity.
	other, err := store.EnsureProviderUser("okta", "sub-123", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Error("providers must not share identities")
	}
}

func TestCredentialStoreCRUD(t *testing.T) {
	store := NewMemCredentialStore()
	cred := &smlogin.Credential{
		ID:        []byte("cred-1"),
		PublicKey: []byte{1, 2, 3},
		SignCount: 0,
		UserID:    "user-1",
	}
	if err := store.CreateCredential(cred); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateCredential(cred); !errors.Is(err, smlogin.ErrCredentialExists) {
		t.Errorf("expected ErrCredentialExists, got %v", err)
	}

	got, err := store.GetCredential([]byte("cred-1"))
	if err != nil || !bytes.Equal(got.PublicKey, cred.PublicKey) {
		t.Fatalf("GetCredential = %v, %v", got, err)
	}
	if _, err := store.GetCredential([]byte("cred-2")); !errors.Is(err, smlogin.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}

	if err := store.CreateCredential(&smlogin.Credential{ID: []byte("cred-2"), UserID: "user-2"}); err != nil {
		t.Fatal(err)
	}
	mine, err := store.Credentials("user-1")
	if err != nil || len(mine) != 1 {
		t.Fatalf("Credentials(user-1) = %v, %v", mine, err)
	}
}

func TestCredentialStoreCounterCAS(t *testing.T) {
	store := NewMemCredentialStore()
	id := []byte("cred-cas")
	if err := store.CreateCredential(&smlogin.Credential{ID: id, UserID: "u", SignCount: 3}); err != nil {
		t.Fatal(err)
	}

	if err := store.UpdateSignCount(id, 3, 7); err != nil {
		t.Fatal(err)
	}
	// Stale previous value: someone else already advanced the counter.
	if err := store.UpdateSignCount(id, 3, 9); !errors.Is(err, smlogin.ErrCounterConflict) {
		t.Errorf("expected ErrCounterConflict, got %v", err)
	}

	got, _ := store.GetCredential(id)
	if got.SignCount != 7 {
		t.Errorf("sign count = %d, want 7", got.SignCount)
	}
}

func TestCredentialStoreCASRace(t *testing.T) {
	store := NewMemCredentialStore()
	id := []byte("cred-race")
	if err := store.CreateCredential(&smlogin.Credential{ID: id, UserID: "u"}); err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.UpdateSignCount(id, 0, 1) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for range wins {
		total++
	}
	if total != 1 {
		t.Errorf("%d racers won the CAS, want exactly 1", total)
	}
}

func TestCredentialStoreReturnsCopies(t *testing.T) {
	store := NewMemCredentialStore()
	id := []byte("cred-copy")
	if err := store.CreateCredential(&smlogin.Credential{ID: id, PublicKey: []byte{9}, UserID: "u"}); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetCredential(id)
	got.PublicKey[0] = 0
	again, _ := store.GetCredential(id)
	if again.PublicKey[0] != 9 {
		t.Error("store handed out its internal slice")
	}
}
