package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenSource is a source of OAuth2 access tokens. Its methods are safe to
// call concurrently.
type TokenSource interface {
	// Token retrieves a token value, refreshing it if it has expired.
	// The result is always non-nil if the error is nil.
	Token(ctx context.Context) (*oauth2.Token, error)
	// Refresh forces a refresh of the token if its current value is identical
	// to old in the sense of [Equal].
	// The result is the refreshed token.
	// The requirement to provide the old token allows Refresh to be called
	// concurrently without flooding refresh requests.
	Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error)
}

// Equal compares two OAuth2 tokens by access token, refresh token, token type,
// and expiry.
func Equal(a, b *oauth2.Token) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.AccessToken == b.AccessToken &&
		a.TokenType == b.TokenType &&
		a.RefreshToken == b.RefreshToken &&
		a.Expiry.Equal(b.Expiry)
}

// ErrNoToken is returned when a Refresher has neither a stored token nor a
// seed refresh token.
var ErrNoToken = errors.New("no token provisioned")

// Refresher is a TokenSource that refreshes a stored token through
// the refresh token grant. Initial tokens are provisioned out of band.
type Refresher struct {
	mu sync.Mutex

	cfg    oauth2.Config
	st     Storage
	client *http.Client
	seed   string
}

// NewRefresher creates a token source over the given storage.
// If the storage is empty, seed is used as the refresh token for the first
// request. If client is nil, [http.DefaultClient] is used instead.
func NewRefresher(cfg oauth2.Config, st Storage, client *http.Client, seed string) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Refresher{
		cfg:    cfg,
		st:     st,
		client: client,
		seed:   seed,
	}
}

// Token returns the stored token, refreshing it if it has expired.
func (s *Refresher) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.currentLocked(ctx)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != "" && tok.Valid() {
		return tok, nil
	}
	return s.refreshLocked(ctx, tok.RefreshToken)
}

// Refresh refreshes the token if old is still current.
func (s *Refresher) Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, err := s.currentLocked(ctx)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != "" && !Equal(tok, old) {
		slog.InfoContext(ctx, "token not current, won't refresh")
		return tok, nil
	}
	return s.refreshLocked(ctx, tok.RefreshToken)
}

func (s *Refresher) currentLocked(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.st.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't retrieve current token: %w", err)
	}
	if tok == nil {
		if s.seed == "" {
			return nil, ErrNoToken
		}
		tok = &oauth2.Token{RefreshToken: s.seed}
	}
	if tok.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return tok, nil
}

func (s *Refresher) refreshLocked(ctx context.Context, rt string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	// An expired token with no access token forces x/oauth2 to use the grant.
	old := &oauth2.Token{RefreshToken: rt, Expiry: time.Unix(1, 0)}
	tok, err := s.cfg.TokenSource(ctx, old).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if err := s.st.Store(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to store new token: %w", err)
	}
	slog.InfoContext(ctx, "refreshed token", slog.Time("expiry", tok.Expiry))
	return tok, nil
}
