package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Slack holds the OAuth tokens granted during app installation.
type Slack struct {
	AccessToken string `json:"access_token"`
	BotToken    string `json:"bot_token"`
	TeamID      string `json:"team_id"`
}

// GitHub binds the deployment to exactly one repository.
type GitHub struct {
	InstallationID string `json:"installation_id"`
	AccessToken    string `json:"access_token"`
	Repository     string `json:"repository"`
}

type payload struct {
	Slack  *Slack  `json:"slack,omitempty"`
	GitHub *GitHub `json:"github,omitempty"`
}

// Store persists credentials in a single JSON file. Reads always hit the
// file so that an OAuth flow completing in the server process is visible to
// a running worker.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Slack() (Slack, bool) {
	p, err := s.load()
	if err != nil || p.Slack == nil {
		return Slack{}, false
	}
	return *p.Slack, true
}

func (s *Store) GitHub() (GitHub, bool) {
	p, err := s.load()
	if err != nil || p.GitHub == nil {
		return GitHub{}, false
	}
	c := *p.GitHub
	if c.Repository == "" || c.AccessToken == "" {
		return GitHub{}, false
	}
	return c, true
}

// BotToken satisfies the slack client's token source.
func (s *Store) BotToken() (string, bool) {
	c, ok := s.Slack()
	if !ok || c.BotToken == "" {
		return "", false
	}
	return c.BotToken, true
}

func (s *Store) SetSlack(c Slack) error {
	return s.update(func(p *payload) { p.Slack = &c })
}

func (s *Store) SetGitHub(c GitHub) error {
	return s.update(func(p *payload) { p.GitHub = &c })
}

func (s *Store) Clear() error {
	return s.update(func(p *payload) { *p = payload{} })
}

func (s *Store) load() (payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) read() (payload, error) {
	var p payload
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return payload{}, fmt.Errorf("parse credentials: %w", err)
	}
	return p, nil
}

func (s *Store) update(apply func(*payload)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return err
	}
	apply(&p)
	data, _ := json.MarshalIndent(p, "", "  ")
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
