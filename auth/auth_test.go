package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

type memStorage struct {
	mu sync.Mutex
	v  *oauth2.Token
}

func (s *memStorage) Load(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v, nil
}

func (s *memStorage) Store(ctx context.Context, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = tok
	return nil
}

type tokenEndpoint struct {
	hits    atomic.Int64
	refresh string
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.hits.Add(1)
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("refresh_token") != e.refresh {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":400,"message":"Invalid refresh token"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"access_token":"nijika","expires_in":14400,"refresh_token":"kita","token_type":"bearer"}`)
}

func refresherFixture(t *testing.T, seed string) (*tokenEndpoint, *memStorage, *Refresher) {
	t.Helper()
	ep := &tokenEndpoint{refresh: "kita"}
	srv := httptest.NewServer(ep)
	t.Cleanup(srv.Close)
	cfg := oauth2.Config{
		ClientID:     "bocchi",
		ClientSecret: "ryou",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	st := new(memStorage)
	return ep, st, NewRefresher(cfg, st, srv.Client(), seed)
}

func TestRefresherSeed(t *testing.T) {
	ep, st, src := refresherFixture(t, "kita")
	ctx := context.Background()
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("couldn't get token: %v", err)
	}
	if tok.AccessToken != "nijika" || tok.RefreshToken != "kita" {
		t.Errorf("wrong token %+v", tok)
	}
	if !Equal(tok, st.v) {
		t.Errorf("token wasn't stored: %+v", st.v)
	}
	// A valid token is reused.
	if _, err := src.Token(ctx); err != nil {
		t.Errorf("couldn't get second token: %v", err)
	}
	if got := ep.hits.Load(); got != 1 {
		t.Errorf("wrong number of refreshes: want 1, got %d", got)
	}
}

func TestRefresherNoToken(t *testing.T) {
	ep, _, src := refresherFixture(t, "")
	_, err := src.Token(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("wrong error: want ErrNoToken, got %v", err)
	}
	if got := ep.hits.Load(); got != 0 {
		t.Errorf("hit token endpoint without a token")
	}
}

func TestRefresherInvalid(t *testing.T) {
	_, st, src := refresherFixture(t, "hitori")
	if _, err := src.Token(context.Background()); err == nil {
		t.Errorf("refresh with a bad token succeeded")
	}
	if st.v != nil {
		t.Errorf("stored a token after a failed refresh: %+v", st.v)
	}
}

func TestRefresherExpired(t *testing.T) {
	ep, st, src := refresherFixture(t, "")
	st.v = &oauth2.Token{AccessToken: "ikuyo", RefreshToken: "kita", Expiry: time.Now().Add(-time.Hour)}
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "nijika" || ep.hits.Load() != 1 {
		t.Errorf("expired token wasn't refreshed: %+v after %d hits", tok, ep.hits.Load())
	}
}

func TestRefreshConcurrent(t *testing.T) {
	ep, st, src := refresherFixture(t, "")
	start := &oauth2.Token{AccessToken: "ikuyo", RefreshToken: "kita", Expiry: time.Now().Add(time.Hour)}
	st.v = start
	grp, ctx := errgroup.WithContext(context.Background())
	for range 100 {
		grp.Go(func() error {
			tok, err := src.Refresh(ctx, start)
			if err != nil {
				return err
			}
			if tok.AccessToken != "nijika" {
				return errors.New("wrong access token " + tok.AccessToken)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		t.Error(err)
	}
	// Only the first refresh sees start as current.
	if got := ep.hits.Load(); got != 1 {
		t.Errorf("wrong number of refreshes: want 1, got %d", got)
	}
}

func TestEqual(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		a, b *oauth2.Token
		want bool
	}{
		{"nil", nil, nil, true},
		{"one-nil", &oauth2.Token{}, nil, false},
		{"same", &oauth2.Token{AccessToken: "a", RefreshToken: "b", Expiry: now}, &oauth2.Token{AccessToken: "a", RefreshToken: "b", Expiry: now}, true},
		{"access", &oauth2.Token{AccessToken: "a"}, &oauth2.Token{AccessToken: "b"}, false},
		{"expiry", &oauth2.Token{Expiry: now}, &oauth2.Token{Expiry: now.Add(time.Second)}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Equal(c.a, c.b); got != c.want {
				t.Errorf("wrong result: want %t, got %t", c.want, got)
			}
		})
	}
}
