package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	slackapi "github.com/slack-go/slack"
)

// Scopes requested during Slack app installation.
const slackScopes = "chat:write,files:read,channels:read,groups:read,im:read,mpim:read"

// SlackInstall is the result of a completed OAuth v2 exchange. In OAuth v2
// the workspace access token is the bot token.
type SlackInstall struct {
	AccessToken string
	BotToken    string
	TeamID      string
	TeamName    string
	BotUserID   string
}

// SlackOAuth drives the Slack app installation flow.
type SlackOAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client
}

func (o SlackOAuth) Configured() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// InstallURL returns the authorize URL, or "" when OAuth is not configured.
func (o SlackOAuth) InstallURL() string {
	if o.ClientID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("scope", slackScopes)
	q.Set("redirect_uri", o.RedirectURI)
	return "https://slack.com/oauth/v2/authorize?" + q.Encode()
}

// Exchange trades the callback code for workspace tokens.
func (o SlackOAuth) Exchange(ctx context.Context, code string) (SlackInstall, error) {
	if !o.Configured() {
		return SlackInstall{}, fmt.Errorf("slack oauth not configured")
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := slackapi.GetOAuthV2ResponseContext(ctx, client, o.ClientID, o.ClientSecret, code, o.RedirectURI)
	if err != nil {
		return SlackInstall{}, fmt.Errorf("slack oauth exchange: %w", err)
	}
	return SlackInstall{
		AccessToken: resp.AccessToken,
		BotToken:    resp.AccessToken,
		TeamID:      resp.Team.ID,
		TeamName:    resp.Team.Name,
		BotUserID:   resp.BotUserID,
	}, nil
}
