package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"slack-claude-runner/internal/auth"
)

// installStore keeps in-flight GitHub install results between the OAuth
// callback and the repository-selection confirmation, addressed by a random
// state token carried through the redirect.
type installStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]installEntry
}

type installEntry struct {
	install auth.GitHubInstall
	expires time.Time
}

func newInstallStore(ttl time.Duration) *installStore {
	return &installStore{ttl: ttl, entries: make(map[string]installEntry)}
}

func (s *installStore) Put(install auth.GitHubInstall) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
	state := uuid.NewString()
	s.entries[state] = installEntry{install: install, expires: now.Add(s.ttl)}
	return state
}

func (s *installStore) Get(state string) (auth.GitHubInstall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	if !ok || time.Now().After(e.expires) {
		return auth.GitHubInstall{}, false
	}
	return e.install, true
}

func (s *installStore) Delete(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, state)
}
