package message

import (
	"strconv"
	"strings"

	"gitlab.com/zephyrtronium/tmi"

	"github.com/zephyrtronium/themer/access"
)

// FromTMI adapts a TMI IRC message.
func FromTMI(m *tmi.Message) *Received {
	id, _ := m.Tag("id")
	sender, _ := m.Tag("user-id")
	ts, _ := m.Tag("tmi-sent-ts")
	reward, _ := m.Tag("custom-reward-id")
	u, _ := strconv.ParseInt(ts, 10, 64)
	r := Received{
		ID:        id,
		To:        m.To(),
		Sender:    sender,
		Login:     m.Nick,
		Name:      m.DisplayName(),
		Text:      m.Trailing,
		Timestamp: u,
		Flags:     flags(m),
		Reward:    reward,
	}
	return &r
}

func flags(m *tmi.Message) access.Flags {
	var f access.Flags
	if b, _ := m.Tag("badges"); b != "" {
		for _, badge := range strings.Split(b, ",") {
			name, _, _ := strings.Cut(badge, "/")
			switch name {
			case "broadcaster":
				f.Broadcaster = true
			case "moderator":
				f.Moderator = true
			case "vip":
				f.VIP = true
			case "subscriber", "founder":
				f.Subscriber = true
			}
		}
	}
	// The broadcaster gets mod=0, but their nick is equal to the channel name.
	if to := m.To(); len(to) > 1 && to[0] == '#' && to[1:] == m.Nick {
		f.Broadcaster = true
	}
	if t, _ := m.Tag("mod"); t == "1" {
		f.Moderator = true
	}
	if t, _ := m.Tag("vip"); t == "1" {
		f.VIP = true
	}
	if t, _ := m.Tag("subscriber"); t == "1" {
		f.Subscriber = true
	}
	return f
}

// ToTMI creates a message to send to TMI. If reply is not empty, then the
// result is a reply to the message with that ID.
func ToTMI(reply, to, text string) *tmi.Message {
	r := tmi.Privmsg(to, text)
	if reply != "" {
		r.Tags = "reply-parent-msg-id=" + reply
	}
	return r
}
