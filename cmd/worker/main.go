package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"slack-claude-runner/internal/claude"
	"slack-claude-runner/internal/config"
	"slack-claude-runner/internal/credentials"
	"slack-claude-runner/internal/orchestrator"
	"slack-claude-runner/internal/slack"
	"slack-claude-runner/internal/taskqueue"
	"slack-claude-runner/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "worker")
	slog.SetDefault(logger)

	creds := credentials.NewStore(cfg.CredentialsFile)
	pipeline := &orchestrator.Pipeline{
		Creds:      creds,
		Slack:      slack.NewClient(creds, logger),
		Workspaces: workspace.NewManager(cfg.BaseDir, logger),
		Claude: claude.Runner{
			Bin:       cfg.ClaudeBin,
			APIKey:    cfg.AnthropicAPIKey,
			Timeout:   cfg.ClaudeTimeout,
			MaxOutput: claude.DefaultMaxOutput,
		},
		Log: logger,
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: cfg.WorkerConcurrency})

	logger.Info("worker started", "concurrency", cfg.WorkerConcurrency, "base_dir", cfg.BaseDir)
	if err := srv.Run(taskqueue.NewMux(pipeline, logger)); err != nil {
		log.Fatalf("worker stopped: %v", err)
	}
}
