package twitch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

// Validation describes an access token's validation status.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int      `json:"expires_in"`

	Message string `json:"message"`
	Status  int    `json:"status"`
}

// validateURL is the token validation endpoint.
const validateURL = "https://id.twitch.tv/oauth2/validate"

// Validate checks the status of an access token and identifies its owner.
// If the API response indicates that the access token is invalid, the
// returned error wraps [ErrNeedRefresh].
// The returned Validation may be non-nil even if the error is also non-nil.
func Validate(ctx context.Context, client Client, tok *oauth2.Token) (*Validation, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", validateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("couldn't make validate request: %w", err)
	}
	tok.SetAuthHeader(req)
	resp, err := client.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("couldn't validate access token: %w", err)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("couldn't read token validation response: %w", err)
	}
	var s Validation
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal token validation response: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return &s, nil
	case http.StatusUnauthorized:
		return &s, fmt.Errorf("token validation failed: %s (%w)", s.Message, ErrNeedRefresh)
	default:
		return &s, fmt.Errorf("token validation failed: %s (%s)", s.Message, resp.Status)
	}
}

// HasScopes reports whether the validated token grants all of the given
// scopes.
func (v *Validation) HasScopes(scopes ...string) bool {
outer:
	for _, want := range scopes {
		for _, s := range v.Scopes {
			if s == want {
				continue outer
			}
		}
		return false
	}
	return true
}
