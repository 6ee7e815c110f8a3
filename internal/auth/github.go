package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"
	"github.com/tidwall/gjson"
)

const githubTokenURL = "https://github.com/login/oauth/access_token"

// Repo is one candidate repository offered during installation.
type Repo struct {
	FullName    string
	Description string
	Visibility  string
}

// GitHubInstall is the result of a completed OAuth exchange plus the list of
// repositories the user can bind the deployment to.
type GitHubInstall struct {
	AccessToken  string
	UserID       int64
	Username     string
	Repositories []Repo
}

// GitHubOAuth drives the GitHub app installation flow.
type GitHubOAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	HTTPClient   *http.Client

	// test endpoints
	tokenURL string
	apiURL   string
}

func (o GitHubOAuth) Configured() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

// InstallURL returns the authorize URL, or "" when OAuth is not configured.
func (o GitHubOAuth) InstallURL() string {
	if o.ClientID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("redirect_uri", o.RedirectURI)
	q.Set("scope", "repo")
	return "https://github.com/login/oauth/authorize?" + q.Encode()
}

// Exchange trades the callback code for an access token, verifies it against
// the user endpoint and lists the repositories it can reach.
func (o GitHubOAuth) Exchange(ctx context.Context, code string) (GitHubInstall, error) {
	if !o.Configured() {
		return GitHubInstall{}, fmt.Errorf("github oauth not configured")
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	token, err := o.exchangeCode(ctx, client, code)
	if err != nil {
		return GitHubInstall{}, err
	}

	gh := github.NewClient(client).WithAuthToken(token)
	if o.apiURL != "" {
		base, err := url.Parse(o.apiURL + "/")
		if err != nil {
			return GitHubInstall{}, err
		}
		gh.BaseURL = base
	}

	user, _, err := gh.Users.Get(ctx, "")
	if err != nil {
		return GitHubInstall{}, fmt.Errorf("verify github token: %w", err)
	}
	repos, _, err := gh.Repositories.List(ctx, "", &github.RepositoryListOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return GitHubInstall{}, fmt.Errorf("list repositories: %w", err)
	}

	install := GitHubInstall{
		AccessToken: token,
		UserID:      user.GetID(),
		Username:    user.GetLogin(),
	}
	for _, r := range repos {
		install.Repositories = append(install.Repositories, Repo{
			FullName:    r.GetFullName(),
			Description: r.GetDescription(),
			Visibility:  r.GetVisibility(),
		})
	}
	return install, nil
}

func (o GitHubOAuth) exchangeCode(ctx context.Context, client *http.Client, code string) (string, error) {
	endpoint := o.tokenURL
	if endpoint == "" {
		endpoint = githubTokenURL
	}
	form := url.Values{}
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", o.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("github token exchange: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", fmt.Errorf("github token exchange failed: %s", gjson.GetBytes(body, "error").String())
	}
	return token, nil
}
