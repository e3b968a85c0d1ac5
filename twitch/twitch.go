// Package twitch implements the parts of the Twitch API that the bot uses.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

// Client holds the context for requests to the Twitch API.
type Client struct {
	// HTTP is the HTTP client for performing requests.
	// If nil, http.DefaultClient is used.
	HTTP *http.Client
	// ID is the application's client ID.
	ID string
}

func (c Client) http() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

// reqjson performs an HTTP request and decodes the data field of the
// response as JSON into u. If u is nil, the response is not decoded.
// The response body is truncated to 2 MB.
// The result is the pagination cursor, if the response has one.
func reqjson[Resp any](ctx context.Context, client Client, tok *oauth2.Token, method, url string, body io.Reader, u *Resp) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("couldn't make request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Client-Id", client.ID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("couldn't %s: %w", method, err)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("couldn't read response: %w", err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK: // do nothing
	case http.StatusNoContent:
		return "", nil
	case http.StatusUnauthorized:
		return "", fmt.Errorf("request failed: %s (%w)", b, ErrNeedRefresh)
	default:
		return "", fmt.Errorf("request failed: %s (%s)", b, resp.Status)
	}
	if u == nil {
		return "", nil
	}
	r := struct {
		Data       *Resp `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
	}{Data: u}
	if err := json.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("couldn't decode JSON response: %w", err)
	}
	return r.Pagination.Cursor, nil
}

// apiurl creates an api.twitch.tv URL for the given endpoint and with the
// given URL parameters.
func apiurl(ep string, values url.Values) string {
	u, err := url.JoinPath("https://api.twitch.tv/", ep)
	if err != nil {
		panic("twitch: bad url join with " + ep)
	}
	if len(values) == 0 {
		return u
	}
	return u + "?" + values.Encode()
}

// ErrNeedRefresh is an error indicating that the access token needs to be refreshed.
// It must be checked using [errors.Is].
var ErrNeedRefresh = errors.New("need refresh")
