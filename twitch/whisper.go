package twitch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/go-json-experiment/json"
	"golang.org/x/oauth2"
)

// Whisper sends a whisper from the user with ID from to the user with ID to.
// The token must belong to the sender and have the user:manage:whispers scope.
//
// See https://dev.twitch.tv/docs/api/reference/#send-whisper.
func Whisper(ctx context.Context, client Client, tok *oauth2.Token, from, to, text string) error {
	v := url.Values{
		"from_user_id": {from},
		"to_user_id":   {to},
	}
	b, err := json.Marshal(struct {
		Message string `json:"message"`
	}{text})
	if err != nil {
		return fmt.Errorf("couldn't encode whisper: %w", err)
	}
	if _, err := reqjson[struct{}](ctx, client, tok, "POST", apiurl("/helix/whispers", v), bytes.NewReader(b), nil); err != nil {
		return fmt.Errorf("couldn't send whisper: %w", err)
	}
	return nil
}
