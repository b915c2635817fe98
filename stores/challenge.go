package stores

import (
	"bytes"
	"sync"
	"time"

	"github.com/panyam/smlogin"
)

// DefaultChallengeTTL bounds how long a begin* challenge stays redeemable.
const DefaultChallengeTTL = 5 * time.Minute

type pendingChallenge struct {
	challenge []byte
	expiresAt time.Time
}

// MemChallengeStore is the in-memory challenge cache: one live challenge per
// (username, kind), last write wins, consumed atomically on read.  Expiry is
// enforced at read time, so the store is correct without the reaper; the
// reaper only keeps abandoned ceremonies from accumulating.
type MemChallengeStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]pendingChallenge

	stopReaper chan struct{}
	reaperOnce sync.Once

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewMemChallengeStore(ttl time.Duration) *MemChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &MemChallengeStore{
		ttl:     ttl,
		pending: map[string]pendingChallenge{},
		now:     time.Now,
	}
}

func challengeKey(username string, kind smlogin.ChallengeKind) string {
	return username + "/" + string(kind)
}

func (s *MemChallengeStore) PutChallenge(username string, kind smlogin.ChallengeKind, challenge []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[challengeKey(username, kind)] = pendingChallenge{
		challenge: bytes.Clone(challenge),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemChallengeStore) TakeChallenge(username string, kind smlogin.ChallengeKind) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := challengeKey(username, kind)
	entry, ok := s.pending[key]
	if !ok {
		return nil, smlogin.ErrNoPendingChallenge
	}
	delete(s.pending, key)
	if s.now().After(entry.expiresAt) {
		return nil, smlogin.ErrNoPendingChallenge
	}
	return entry.challenge, nil
}

// StartReaper begins periodically evicting expired entries.  Call Stop when
// done.  Safe to skip entirely for short-lived processes and tests.
func (s *MemChallengeStore) StartReaper(interval time.Duration) {
	s.reaperOnce.Do(func() {
		s.stopReaper = make(chan struct{})
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.reap()
				case <-s.stopReaper:
					return
				}
			}
		}()
	})
}

func (s *MemChallengeStore) Stop() {
	if s.stopReaper != nil {
		close(s.stopReaper)
	}
}

func (s *MemChallengeStore) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, entry := range s.pending {
		if now.After(entry.expiresAt) {
			delete(s.pending, key)
		}
	}
}
