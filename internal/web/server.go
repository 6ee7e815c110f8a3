package web

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"slack-claude-runner/internal/auth"
	"slack-claude-runner/internal/credentials"
	"slack-claude-runner/internal/model"
)

// Enqueuer submits an accepted event for background processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, event model.InboundEvent) error
}

// Reactor acknowledges inbound messages with a status emoji.
type Reactor interface {
	AddReaction(ctx context.Context, channel, timestamp, name string) error
}

// Server hosts the Slack events webhook, the OAuth install flows and a
// small status dashboard.
type Server struct {
	creds       *credentials.Store
	queue       Enqueuer
	slack       Reactor
	slackOAuth  auth.SlackOAuth
	githubOAuth auth.GitHubOAuth
	installs    *installStore
	log         *slog.Logger
}

func New(creds *credentials.Store, queue Enqueuer, slack Reactor, so auth.SlackOAuth, gho auth.GitHubOAuth, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		creds:       creds,
		queue:       queue,
		slack:       slack,
		slackOAuth:  so,
		githubOAuth: gho,
		installs:    newInstallStore(10 * time.Minute),
		log:         log,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleStatus)
	r.POST("/slack/webhook", s.handleWebhook)
	r.GET("/slack/install", s.handleSlackInstall)
	r.GET("/slack/callback", s.handleSlackCallback)
	r.GET("/github/install", s.handleGitHubInstall)
	r.GET("/github/callback", s.handleGitHubCallback)
	r.GET("/github/select-repository", s.handleSelectRepository)
	r.POST("/github/confirm-repository", s.handleConfirmRepository)
	return r
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	root := gjson.ParseBytes(body)

	switch root.Get("type").String() {
	case "url_verification":
		c.JSON(http.StatusOK, gin.H{"challenge": root.Get("challenge").String()})
		return
	case "event_callback":
		event := root.Get("event")
		etype := event.Get("type").String()
		if etype != "app_mention" && etype != "message" {
			break
		}
		// The bot's own messages and subtype events (file uploads without
		// text, edits) are never tasks.
		if event.Get("bot_id").Exists() || event.Get("subtype").Exists() {
			break
		}
		isDM := event.Get("channel_type").String() == "im"
		if !isDM && etype != "app_mention" {
			break
		}

		ev := parseEvent(event)
		s.log.Info("accepted slack event", "type", etype, "channel", ev.Channel)
		if err := s.slack.AddReaction(c.Request.Context(), ev.Channel, ev.Timestamp, "eyes"); err != nil {
			s.log.Warn("failed to acknowledge message", "error", err)
		}
		if err := s.queue.Enqueue(c.Request.Context(), ev); err != nil {
			s.log.Error("failed to enqueue task", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ignored"})
}

func (s *Server) handleSlackInstall(c *gin.Context) {
	u := s.slackOAuth.InstallURL()
	if u == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Slack OAuth not configured. Set SLACK_CLIENT_ID and SLACK_CLIENT_SECRET."})
		return
	}
	c.Redirect(http.StatusFound, u)
}

func (s *Server) handleSlackCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	install, err := s.slackOAuth.Exchange(c.Request.Context(), code)
	if err != nil {
		s.log.Error("slack oauth failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to complete Slack OAuth flow"})
		return
	}
	if err := s.creds.SetSlack(credentials.Slack{
		AccessToken: install.AccessToken,
		BotToken:    install.BotToken,
		TeamID:      install.TeamID,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleGitHubInstall(c *gin.Context) {
	u := s.githubOAuth.InstallURL()
	if u == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GitHub OAuth not configured. Set GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET."})
		return
	}
	c.Redirect(http.StatusFound, u)
}

func (s *Server) handleGitHubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	install, err := s.githubOAuth.Exchange(c.Request.Context(), code)
	if err != nil {
		s.log.Error("github oauth failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to complete GitHub OAuth flow"})
		return
	}
	if len(install.Repositories) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "no repositories found for this account"})
		return
	}
	state := s.installs.Put(install)
	c.Redirect(http.StatusFound, "/github/select-repository?state="+state)
}

func (s *Server) handleSelectRepository(c *gin.Context) {
	install, ok := s.installs.Get(c.Query("state"))
	if !ok {
		c.Redirect(http.StatusFound, "/github/install")
		return
	}
	var options strings.Builder
	for _, repo := range install.Repositories {
		name := html.EscapeString(repo.FullName)
		desc := ""
		if repo.Description != "" {
			desc = " - " + html.EscapeString(repo.Description)
		}
		fmt.Fprintf(&options, `<div class="repo-option"><label><input type="radio" name="repository" value="%s" required> <strong>%s</strong>%s <small>(%s)</small></label></div>`,
			name, name, desc, html.EscapeString(repo.Visibility))
	}
	page := fmt.Sprintf(selectRepositoryPage, html.EscapeString(c.Query("state")), options.String())
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func (s *Server) handleConfirmRepository(c *gin.Context) {
	state := c.PostForm("state")
	selected := c.PostForm("repository")
	install, ok := s.installs.Get(state)
	if !ok || selected == "" {
		c.Redirect(http.StatusFound, "/github/install")
		return
	}
	if !containsRepo(install.Repositories, selected) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown repository"})
		return
	}
	if err := s.creds.SetGitHub(credentials.GitHub{
		InstallationID: strconv.FormatInt(install.UserID, 10),
		AccessToken:    install.AccessToken,
		Repository:     selected,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
		return
	}
	s.installs.Delete(state)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) handleStatus(c *gin.Context) {
	slackStatus := "❌ Not Connected"
	if _, ok := s.creds.Slack(); ok {
		slackStatus = "✅ Connected"
	}
	githubStatus := "❌ Not Connected"
	if gh, ok := s.creds.GitHub(); ok {
		githubStatus = "✅ Connected to " + html.EscapeString(gh.Repository)
	}
	page := fmt.Sprintf(statusPage, slackStatus, githubStatus)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

func containsRepo(repos []auth.Repo, fullName string) bool {
	for _, r := range repos {
		if r.FullName == fullName {
			return true
		}
	}
	return false
}

const statusPage = `<!DOCTYPE html>
<html>
<head><title>Slack Claude Runner</title></head>
<body>
<h1>Slack Claude Runner</h1>
<div><h3>Slack Connection</h3><span>%s</span> <a href="/slack/install">Install Slack App</a></div>
<div><h3>GitHub Connection</h3><span>%s</span> <a href="/github/install">Install GitHub App</a></div>
</body>
</html>`

const selectRepositoryPage = `<!DOCTYPE html>
<html>
<head><title>Select Repository</title></head>
<body>
<h1>Select Repository</h1>
<p>Choose which repository you want to connect:</p>
<form action="/github/confirm-repository" method="post">
<input type="hidden" name="state" value="%s">
%s
<button type="submit">Connect Repository</button>
</form>
</body>
</html>`
