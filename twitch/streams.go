package twitch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Stream is the response type from https://dev.twitch.tv/docs/api/reference/#get-streams.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsMature     bool      `json:"is_mature"`
}

// Live reports whether the channel with the given login is streaming.
func Live(ctx context.Context, client Client, tok *oauth2.Token, login string) (*Stream, bool, error) {
	v := url.Values{
		"user_login": {strings.ToLower(strings.TrimPrefix(login, "#"))},
		"type":       {"live"},
	}
	var s []Stream
	if _, err := reqjson(ctx, client, tok, "GET", apiurl("/helix/streams", v), nil, &s); err != nil {
		return nil, false, fmt.Errorf("couldn't get stream info: %w", err)
	}
	if len(s) == 0 {
		return nil, false, nil
	}
	return &s[0], true, nil
}
