package stores

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/panyam/smlogin"
)

func TestChallengePutAndTake(t *testing.T) {
	store := NewMemChallengeStore(0)
	challenge := []byte("a-32-byte-challenge-for-testing!")

	if err := store.PutChallenge("alice", smlogin.ChallengeRegistration, challenge); err != nil {
		t.Fatal(err)
	}
	got, err := store.TakeChallenge("alice", smlogin.ChallengeRegistration)
	if err != nil || !bytes.Equal(got, challenge) {
		t.Fatalf("TakeChallenge = %v, %v", got, err)
	}

	// Consumed: a second take finds nothing.
	if _, err := store.TakeChallenge("alice", smlogin.ChallengeRegistration); !errors.Is(err, smlogin.ErrNoPendingChallenge) {
		t.Errorf("expected ErrNoPendingChallenge, got %v", err)
	}
}

func TestChallengeKindsAreIndependent(t *testing.T) {
	store := NewMemChallengeStore(0)
	reg := []byte("registration-challenge")
	login := []byte("authentication-challenge")

	store.PutChallenge("bob", smlogin.ChallengeRegistration, reg)
	store.PutChallenge("bob", smlogin.ChallengeAuthentication, login)

	got, err := store.TakeChallenge("bob", smlogin.ChallengeAuthentication)
	if err != nil || !bytes.Equal(got, login) {
		t.Fatalf("authentication challenge = %v, %v", got, err)
	}
	// Taking one kind leaves the other pending.
	got, err = store.TakeChallenge("bob", smlogin.ChallengeRegistration)
	if err != nil || !bytes.Equal(got, reg) {
		t.Fatalf("registration challenge = %v, %v", got, err)
	}
}

func TestChallengeLastWriteWins(t *testing.T) {
	store := NewMemChallengeStore(0)
	store.PutChallenge("carol", smlogin.ChallengeRegistration, []byte("first"))
	store.PutChallenge("carol", smlogin.ChallengeRegistration, []byte("second"))

	got, err := store.TakeChallenge("carol", smlogin.ChallengeRegistration)
	if err != nil || string(got) != "second" {
		t.Fatalf("TakeChallenge = %q, %v", got, err)
	}
	if _, err := store.TakeChallenge("carol", smlogin.ChallengeRegistration); !errors.Is(err, smlogin.ErrNoPendingChallenge) {
		t.Errorf("superseded challenge still redeemable: %v", err)
	}
}

func TestChallengeExpiresAtReadTime(t *testing.T) {
	store := NewMemChallengeStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	store.PutChallenge("dave", smlogin.ChallengeAuthentication, []byte("ch"))
	now = now.Add(2 * time.Minute)

	if _, err := store.TakeChallenge("dave", smlogin.ChallengeAuthentication); !errors.Is(err, smlogin.ErrNoPendingChallenge) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestChallengeConcurrentTake(t *testing.T) {
	store := NewMemChallengeStore(0)
	store.PutChallenge("erin", smlogin.ChallengeAuthentication, []byte("ch"))

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.TakeChallenge("erin", smlogin.ChallengeAuthentication); err == nil {
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
		t.Errorf("%d racers took the challenge, want exactly 1", total)
	}
}

func TestChallengeReaper(t *testing.T) {
	store := NewMemChallengeStore(10 * time.Millisecond)
	store.StartReaper(5 * time.Millisecond)
	defer store.Stop()

	store.PutChallenge("frank", smlogin.ChallengeRegistration, []byte("ch"))
	time.Sleep(50 * time.Millisecond)

	store.mu.Lock()
	remaining := len(store.pending)
	store.mu.Unlock()
	if remaining != 0 {
		t.Errorf("%d entries survived the reaper", remaining)
	}
}
