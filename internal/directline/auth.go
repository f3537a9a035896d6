package directline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// SecretTokenSource supplies a Direct Line secret (or a pre-issued token) as a
// non-expiring bearer token.
func SecretTokenSource(secret string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: secret,
		TokenType:   "Bearer",
	})
}

// ConversationToken converts a token issued by the service into an oauth2
// token whose expiry follows expires_in.
func ConversationToken(conv *Conversation, now time.Time) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: conv.Token, TokenType: "Bearer"}
	if conv.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(conv.ExpiresIn) * time.Second)
	}
	return tok
}

// refresher obtains a new token from /tokens/refresh using the previous one.
type refresher struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	current *oauth2.Token
}

// NewRefreshingTokenSource returns a token source that reuses initial until it
// is about to expire and then exchanges it at the refresh endpoint.
func NewRefreshingTokenSource(httpClient *http.Client, baseURL string, initial *oauth2.Token) oauth2.TokenSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	r := &refresher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		current: initial,
	}
	return oauth2.ReuseTokenSource(initial, r)
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v3/directline/tokens/refresh", nil)
	if err != nil {
		return nil, err
	}
	r.current.SetAuthHeader(req)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError("refresh token", resp, body)
	}

	var conv Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, fmt.Errorf("parsing refresh response: %w", err)
	}
	r.current = ConversationToken(&conv, time.Now())
	return r.current, nil
}
