package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"slack-claude-runner/internal/auth"
	"slack-claude-runner/internal/config"
	"slack-claude-runner/internal/credentials"
	"slack-claude-runner/internal/slack"
	"slack-claude-runner/internal/taskqueue"
	"slack-claude-runner/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "server")
	slog.SetDefault(logger)

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	creds := credentials.NewStore(cfg.CredentialsFile)
	slackOAuth := auth.SlackOAuth{
		ClientID:     cfg.SlackClientID,
		ClientSecret: cfg.SlackClientSecret,
		RedirectURI:  cfg.SlackRedirectURI,
	}
	githubOAuth := auth.GitHubOAuth{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURI:  cfg.GitHubRedirectURI,
	}
	if !slackOAuth.Configured() {
		logger.Warn("SLACK_CLIENT_ID and SLACK_CLIENT_SECRET not set; Slack install flow disabled")
	}
	if !githubOAuth.Configured() {
		logger.Warn("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET not set; GitHub install flow disabled")
	}

	server := web.New(creds, taskqueue.ClientEnqueuer{Client: queue}, slack.NewClient(creds, logger), slackOAuth, githubOAuth, logger)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server started", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server exited")
}
