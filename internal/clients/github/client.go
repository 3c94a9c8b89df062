// Package github exchanges GitHub OAuth codes for user identities.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

const (
	DefaultAPIURL    = "https://api.github.com"
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Scopes requested at the GitHub consent screen.
var Scopes = []string{"read:user", "user:email"}

// ErrNoVerifiedEmail is returned when the account exposes no usable email.
var ErrNoVerifiedEmail = errors.New("github account has no verified email")

// Client implements interfaces.IdentityProvider for GitHub.
type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

var _ interfaces.IdentityProvider = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL points both the OAuth endpoints and the REST API at baseURL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		base := strings.TrimRight(baseURL, "/")
		c.apiURL = base
		c.oauth.Endpoint = oauth2.Endpoint{
			AuthURL:   base + "/login/oauth/authorize",
			TokenURL:  base + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a GitHub identity client.
func NewClient(clientID, clientSecret, callbackURL string, opts ...ClientOption) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       Scopes,
			Endpoint:     githubendpoint.Endpoint,
		},
		apiURL:     DefaultAPIURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the [federation.github] section.
func NewFromConfig(cfg common.ProviderConfig, logger *common.Logger) *Client {
	opts := []ClientOption{
		WithLogger(logger),
		WithRateLimit(cfg.RateLimit),
		WithTimeout(cfg.GetTimeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return NewClient(cfg.ClientID, cfg.ClientSecret, cfg.CallbackURL, opts...)
}

func (c *Client) Provider() models.Provider { return models.ProviderGitHub }
func (c *Client) ClientID() string          { return c.oauth.ClientID }
func (c *Client) CallbackURL() string       { return c.oauth.RedirectURL }

// AuthorizeURL returns the GitHub consent URL carrying state.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// APIError represents a GitHub API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

type userResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type emailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the login code for a token, then loads the profile and the
// email list concurrently.
func (c *Client) Exchange(ctx context.Context, code string) (*models.FederatedIdentity, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	tok, err := c.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange failed: %w", err)
	}

	var (
		user   userResponse
		emails []emailResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, tok.AccessToken, "/user", &user)
	})
	g.Go(func() error {
		// The emails endpoint needs the user:email scope; a failure here only
		// matters when the profile has no public email.
		if err := c.get(gctx, tok.AccessToken, "/user/emails", &emails); err != nil {
			c.logger.Debug().Err(err).Msg("GitHub emails fetch failed")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	email := user.Email
	if email == "" {
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}
	if email == "" {
		return nil, ErrNoVerifiedEmail
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return &models.FederatedIdentity{
		Provider:     models.ProviderGitHub,
		ProviderID:   strconv.FormatInt(user.ID, 10),
		Email:        email,
		Name:         name,
		Avatar:       user.AvatarURL,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, accessToken, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	c.logger.Debug().Str("url", path).Msg("GitHub API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
