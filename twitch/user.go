package twitch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// User is the response type from https://dev.twitch.tv/docs/api/reference/#get-users.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	ViewCount       int    `json:"view_count"`
	Email           string `json:"email"`
	CreatedAt       string `json:"created_at"`
}

// Users gets information about up to 100 users. Each user is queried by ID
// if it has one and otherwise by login. Users with neither are ignored.
// The result may be shorter than users and in any order.
func Users(ctx context.Context, client Client, tok *oauth2.Token, users []User) ([]User, error) {
	v := url.Values{}
	for _, u := range users {
		switch {
		case u.ID != "":
			v.Add("id", u.ID)
		case u.Login != "":
			v.Add("login", strings.ToLower(u.Login))
		}
	}
	if len(v) == 0 {
		return nil, nil
	}
	r := make([]User, 0, len(users))
	if _, err := reqjson(ctx, client, tok, "GET", apiurl("/helix/users", v), nil, &r); err != nil {
		return nil, fmt.Errorf("couldn't get users info: %w", err)
	}
	return r, nil
}

// follower is an element of the response from
// https://dev.twitch.tv/docs/api/reference/#get-channel-followers.
type follower struct {
	UserID     string `json:"user_id"`
	UserLogin  string `json:"user_login"`
	FollowedAt string `json:"followed_at"`
}

// Following reports whether the user with ID user follows broadcaster.
// The token must belong to the broadcaster or one of their moderators and
// have the moderator:read:followers scope.
func Following(ctx context.Context, client Client, tok *oauth2.Token, broadcaster, user string) (bool, error) {
	v := url.Values{
		"broadcaster_id": {broadcaster},
		"user_id":        {user},
	}
	var f []follower
	if _, err := reqjson(ctx, client, tok, "GET", apiurl("/helix/channels/followers", v), nil, &f); err != nil {
		return false, fmt.Errorf("couldn't get follow status: %w", err)
	}
	return len(f) > 0, nil
}
