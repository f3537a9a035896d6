// Package directline is a client for the Bot Framework Direct Line v3 REST API.
//
// The client is stateless between calls: each method issues exactly one HTTP
// request, authenticates it with a bearer token from the injected
// oauth2.TokenSource and either decodes the 2xx body or returns an *APIError
// classifying the failure.
package directline

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

	"github.com/soyeahso/dlscribe/internal/logging"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the global Direct Line endpoint. Regional deployments use
// their own host.
const DefaultBaseURL = "https://directline.botframework.com"

// ErrEmptyConversationID is returned when a conversation id is required but blank.
var ErrEmptyConversationID = errors.New("directline: conversation id is empty")

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client calls the Direct Line API.
type Client struct {
	baseURL   string
	userAgent string
	tokens    oauth2.TokenSource
	http      *http.Client
	log       *logging.Logger
}

// NewClient creates a Client that authenticates every call with tokens.
func NewClient(cfg ClientConfig, tokens oauth2.TokenSource, log *logging.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   base,
		userAgent: cfg.UserAgent,
		tokens:    tokens,
		http:      hc,
		log:       log.Sub("directline"),
	}
}

// WithTokenSource returns a copy of c that authenticates with tokens.
func (c *Client) WithTokenSource(tokens oauth2.TokenSource) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// GetActivities fetches one page of activities newer than watermark.
//
// An empty watermark sends no cursor. Whether the service then answers from
// the start of the retained history or only with recent activities is
// defined by the service, not by this client.
func (c *Client) GetActivities(ctx context.Context, conversationID, watermark string) (*ActivitySet, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	q := url.Values{}
	if watermark != "" {
		q.Set("watermark", watermark)
	}

	var set ActivitySet
	path := "/v3/directline/conversations/" + url.PathEscape(conversationID) + "/activities"
	if _, err := c.do(ctx, "get activities", http.MethodGet, path, q, nil, &set); err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("conversation", conversationID).
		Str("watermark", watermark).
		Int("activities", len(set.Activities)).
		Str("next", set.Watermark).
		Msg("page fetched")
	return &set, nil
}

// StartConversation opens a new conversation. The returned token is scoped to
// that conversation.
func (c *Client) StartConversation(ctx context.Context) (*Conversation, error) {
	var conv Conversation
	if _, err := c.do(ctx, "start conversation", http.MethodPost, "/v3/directline/conversations", nil, nil, &conv); err != nil {
		return nil, err
	}
	c.log.Info().Str("conversation", conv.ConversationID).Int("expiresIn", conv.ExpiresIn).Msg("conversation started")
	return &conv, nil
}

// ReconnectConversation obtains a fresh stream URL for an existing
// conversation, resuming after watermark.
func (c *Client) ReconnectConversation(ctx context.Context, conversationID, watermark string) (*Conversation, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	q := url.Values{}
	if watermark != "" {
		q.Set("watermark", watermark)
	}
	var conv Conversation
	path := "/v3/directline/conversations/" + url.PathEscape(conversationID)
	if _, err := c.do(ctx, "reconnect", http.MethodGet, path, q, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// PostActivity sends an activity to the bot. A 204 response yields an empty
// ResourceResponse.
func (c *Client) PostActivity(ctx context.Context, conversationID string, act Activity) (*ResourceResponse, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}
	var rr ResourceResponse
	path := "/v3/directline/conversations/" + url.PathEscape(conversationID) + "/activities"
	if _, err := c.do(ctx, "post activity", http.MethodPost, path, nil, act, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// GenerateToken exchanges the configured secret for a conversation token.
// A non-empty userID binds the token to that user.
func (c *Client) GenerateToken(ctx context.Context, userID string) (*Conversation, error) {
	var body any
	if userID != "" {
		body = TokenParameters{User: &ChannelAccount{ID: userID}}
	}
	var conv Conversation
	if _, err := c.do(ctx, "generate token", http.MethodPost, "/v3/directline/tokens/generate", nil, body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// RefreshToken extends the lifetime of the token the client authenticates with.
func (c *Client) RefreshToken(ctx context.Context) (*Conversation, error) {
	var conv Conversation
	if _, err := c.do(ctx, "refresh token", http.MethodPost, "/v3/directline/tokens/refresh", nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// do performs one authenticated request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, in, out any) (int, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("directline %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, fmt.Errorf("directline %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens == nil {
		return 0, &APIError{Op: op, Kind: KindUnauthorized, Message: "no token source configured"}
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return 0, &APIError{Op: op, Kind: KindUnauthorized, Message: "token supplier failed", Err: err}
	}
	tok.SetAuthHeader(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("directline %s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("directline %s: read response: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, newAPIError(op, resp, respBody)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("directline %s: parse response: %w", op, err)
	}
	return resp.StatusCode, nil
}
