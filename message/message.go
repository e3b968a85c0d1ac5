package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/zephyrtronium/themer/access"
)

// Received is a chat message received from Twitch.
type Received struct {
	// ID is the unique ID of the message.
	ID string
	// To is the channel to which the message was sent.
	To string
	// Sender is the user ID of the message sender.
	Sender string
	// Login is the sender's login name.
	Login string
	// Name is the display name of the message sender.
	Name string
	// Text is the text of the message.
	Text string
	// Timestamp is the timestamp of the message as milliseconds since the
	// Unix epoch.
	Timestamp int64
	// Flags are the sender's roles in the channel.
	Flags access.Flags
	// Reward is the ID of the channel points reward redeemed with the
	// message, if any.
	Reward string
}

func (m *Received) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Sent is a message to be sent to a service.
type Sent struct {
	// Reply is a message to reply to. If empty, the message is not interpreted
	// as a reply.
	Reply string
	// To is the channel to whom the message is sent.
	To string
	// Text is the message text.
	Text string
}

// formatString is a type to prevent misuse of format strings passed to [Format].
type formatString string

// Format constructs a message to send from a format string literal and
// formatting arguments.
func Format(reply, to string, f formatString, args ...any) Sent {
	return Sent{
		Reply: reply,
		To:    to,
		Text:  strings.TrimSpace(fmt.Sprintf(string(f), args...)),
	}
}
