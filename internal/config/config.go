package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Runtime holds all environment-derived settings shared by the web server
// and the queue worker.
type Runtime struct {
	ListenAddr        string
	RedisURL          string
	BaseDir           string
	CredentialsFile   string
	ClaudeBin         string
	ClaudeTimeout     time.Duration
	AnthropicAPIKey   string
	WorkerConcurrency int

	SlackClientID      string
	SlackClientSecret  string
	SlackRedirectURI   string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURI  string
}

func Load() (Runtime, error) {
	// Optional .env file for local development; absence is not an error.
	_ = godotenv.Load()

	base := os.Getenv("CLAUDE_BOT_DIR")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Runtime{}, fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, ".claude-bot")
	}

	timeoutSec := readIntEnv("CLAUDE_TIMEOUT_SEC", 300)
	cfg := Runtime{
		ListenAddr:        getenvDefault("LISTEN_ADDR", ":8000"),
		RedisURL:          getenvDefault("REDIS_URL", "redis://localhost:6379/0"),
		BaseDir:           base,
		CredentialsFile:   getenvDefault("CREDENTIALS_FILE", "credentials.json"),
		ClaudeBin:         getenvDefault("CLAUDE_BIN", "claude"),
		ClaudeTimeout:     time.Duration(timeoutSec) * time.Second,
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		WorkerConcurrency: readIntEnv("WORKER_CONCURRENCY", 4),

		SlackClientID:      os.Getenv("SLACK_CLIENT_ID"),
		SlackClientSecret:  os.Getenv("SLACK_CLIENT_SECRET"),
		SlackRedirectURI:   getenvDefault("SLACK_REDIRECT_URI", "http://localhost:8000/slack/callback"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubRedirectURI:  getenvDefault("GITHUB_REDIRECT_URI", "http://localhost:8000/github/callback"),
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return Runtime{}, fmt.Errorf("create base dir: %w", err)
	}
	if abs, err := filepath.Abs(cfg.BaseDir); err == nil {
		cfg.BaseDir = abs
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
