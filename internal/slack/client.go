package slack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	slackapi "github.com/slack-go/slack"

	"slack-claude-runner/internal/format"
	"slack-claude-runner/internal/model"
)

// ErrNotConnected is returned when no bot token has been installed yet.
var ErrNotConnected = errors.New("slack workspace not connected")

// TokenSource resolves the current bot token. Tokens are looked up per call
// so an installation completing mid-flight is picked up without restarts.
type TokenSource interface {
	BotToken() (string, bool)
}

// Client wraps the Slack Web API for the needs of the pipeline: posting
// responses, annotating messages with reactions, reading thread history and
// downloading shared files.
type Client struct {
	tokens TokenSource
	http   *http.Client
	log    *slog.Logger

	// apiURL overrides the Slack endpoint in tests.
	apiURL string
}

func NewClient(tokens TokenSource, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		tokens: tokens,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

func (c *Client) api() (*slackapi.Client, string, error) {
	token, ok := c.tokens.BotToken()
	if !ok {
		return nil, "", ErrNotConnected
	}
	opts := []slackapi.Option{slackapi.OptionHTTPClient(c.http)}
	if c.apiURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(c.apiURL))
	}
	return slackapi.New(token, opts...), token, nil
}

// PostMessage delivers text to a channel, threading under threadTS. Complex
// output goes through Block Kit, everything else as converted mrkdwn.
func (c *Client) PostMessage(ctx context.Context, channel, text, threadTS string) error {
	api, _, err := c.api()
	if err != nil {
		return err
	}
	opts := []slackapi.MsgOption{}
	if threadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(threadTS))
	}
	if format.ShouldUseBlocks(text) {
		// Plain text stays as the notification fallback.
		opts = append(opts, slackapi.MsgOptionBlocks(format.Blocks(text)...), slackapi.MsgOptionText(text, false))
	} else {
		opts = append(opts, slackapi.MsgOptionText(format.ToMrkdwn(text), false))
	}
	if _, _, err := api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// AddReaction annotates a message with a status emoji.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, name string) error {
	api, _, err := c.api()
	if err != nil {
		return err
	}
	if err := api.AddReactionContext(ctx, name, slackapi.NewRefToMessage(channel, timestamp)); err != nil {
		return fmt.Errorf("add reaction %s: %w", name, err)
	}
	return nil
}

// ThreadHistory returns up to the 10 most recent turns of a thread, oldest
// first. Bot messages map to the assistant role.
func (c *Client) ThreadHistory(ctx context.Context, channel, threadTS string) ([]model.Turn, error) {
	api, _, err := c.api()
	if err != nil {
		return nil, err
	}
	msgs, _, _, err := api.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: channel,
		Timestamp: threadTS,
		Limit:     10,
	})
	if err != nil {
		return nil, fmt.Errorf("thread history: %w", err)
	}
	turns := make([]model.Turn, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Text == "" {
			continue
		}
		role := model.RoleUser
		if msg.BotID != "" {
			role = model.RoleAssistant
		}
		turns = append(turns, model.Turn{Role: role, Text: msg.Text, Timestamp: msg.Timestamp})
	}
	return turns, nil
}

// DownloadFile fetches a Slack private download URL into destPath, retrying
// transient failures a couple of times before giving up.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string) error {
	_, token, err := c.api()
	if err != nil {
		return err
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		res, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("download status=%d", res.StatusCode)
		}
		f, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		_, err = io.Copy(f, res.Body)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(op, policy)
}
