// Package dingtalk exchanges DingTalk login codes for user identities.
package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

const (
	DefaultBaseURL   = "https://api.dingtalk.com"
	DefaultAuthURL   = "https://login.dingtalk.com/oauth2/auth"
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 10 // requests per second

	// PlaceholderEmailDomain is used when DingTalk does not disclose an email.
	PlaceholderEmailDomain = "dingtalk.placeholder"
)

// ErrNoIdentity is returned when the user info response carries no unionId.
var ErrNoIdentity = errors.New("dingtalk user info missing unionId")

// Client implements interfaces.IdentityProvider for DingTalk.
type Client struct {
	baseURL     string
	authURL     string
	appKey      string
	appSecret   string
	callbackURL string
	httpClient  *http.Client
	logger      *common.Logger
	limiter     *rate.Limiter
}

var _ interfaces.IdentityProvider = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the API base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
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

// NewClient creates a DingTalk identity client.
func NewClient(appKey, appSecret, callbackURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		authURL:     DefaultAuthURL,
		appKey:      appKey,
		appSecret:   appSecret,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:      common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the [federation.dingtalk] section.
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

func (c *Client) Provider() models.Provider { return models.ProviderDingTalk }
func (c *Client) ClientID() string          { return c.appKey }
func (c *Client) CallbackURL() string       { return c.callbackURL }

// AuthorizeURL returns the DingTalk consent URL carrying state.
func (c *Client) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("redirect_uri", c.callbackURL)
	q.Set("response_type", "code")
	q.Set("client_id", c.appKey)
	q.Set("scope", "openid")
	q.Set("prompt", "consent")
	if state != "" {
		q.Set("state", state)
	}
	return c.authURL + "?" + q.Encode()
}

// APIError represents a DingTalk API error
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("DingTalk API error: %s %s (status: %d, endpoint: %s)", e.Code, e.Message, e.StatusCode, e.Endpoint)
}

type tokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	GrantType    string `json:"grantType"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpireIn     int    `json:"expireIn"`
}

type userInfoResponse struct {
	Nick      string `json:"nick"`
	UnionID   string `json:"unionId"`
	OpenID    string `json:"openId"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Exchange trades the login code for a user token and loads the user.
func (c *Client) Exchange(ctx context.Context, code string) (*models.FederatedIdentity, error) {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/v1.0/oauth2/userAccessToken", "", tokenRequest{
		ClientID:     c.appKey,
		ClientSecret: c.appSecret,
		Code:         code,
		GrantType:    "authorization_code",
	}, &tok)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "empty access token", Endpoint: "/v1.0/oauth2/userAccessToken"}
	}

	var info userInfoResponse
	if err := c.do(ctx, http.MethodGet, "/v1.0/contact/users/me", tok.AccessToken, nil, &info); err != nil {
		return nil, err
	}
	if info.UnionID == "" {
		return nil, ErrNoIdentity
	}

	email := info.Email
	if email == "" {
		email = info.UnionID + "@" + PlaceholderEmailDomain
	}
	return &models.FederatedIdentity{
		Provider:     models.ProviderDingTalk,
		ProviderID:   info.UnionID,
		Email:        strings.ToLower(email),
		Name:         info.Nick,
		Avatar:       info.AvatarURL,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}, nil
}

// do performs a rate-limited JSON request.
func (c *Client) do(ctx context.Context, method, path, accessToken string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("x-acs-dingtalk-access-token", accessToken)
	}

	c.logger.Debug().Str("url", path).Msg("DingTalk API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(raw), Endpoint: path}
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Code != "" {
			apiErr.Code, apiErr.Message = e.Code, e.Message
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
