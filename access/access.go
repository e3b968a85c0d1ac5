// Package access implements privilege tiers and their resolution for chat
// users, including memoized follower lookups.
package access

import (
	"context"
	"fmt"
	"strings"
)

// Tier is a privilege level in a chat room. Tiers are totally ordered;
// a greater tier has every capability of a lesser one.
type Tier int

const (
	Viewer Tier = iota
	Follower
	Subscriber
	VIP
	Moderator
	Broadcaster
)

// Tiers is the list of all tiers in ascending order.
var Tiers = []Tier{Viewer, Follower, Subscriber, VIP, Moderator, Broadcaster}

var tierNames = [...]string{
	Viewer:      "viewer",
	Follower:    "follower",
	Subscriber:  "subscriber",
	VIP:         "vip",
	Moderator:   "moderator",
	Broadcaster: "broadcaster",
}

func (t Tier) String() string {
	if t < Viewer || t > Broadcaster {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if t < Viewer || t > Broadcaster {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(tierNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are not case
// sensitive, and plurals like "Followers" or "VIPs" are accepted.
func (t *Tier) UnmarshalText(b []byte) error {
	// No tier name ends in s, so any trailing s is a plural.
	s := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(string(b))), "s")
	for i, n := range tierNames {
		if s == n {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", b)
}

// Authorized reports whether a user at tier have may perform an action which
// requires tier need.
func Authorized(have, need Tier) bool {
	return have >= need
}

// Flags is the set of room roles a chat service reports for a message sender.
type Flags struct {
	Broadcaster bool
	Moderator   bool
	VIP         bool
	Subscriber  bool
}

// FromFlags gives the highest tier implied by chat flags alone.
// It never returns Follower, since following is not a chat flag.
func FromFlags(f Flags) Tier {
	switch {
	case f.Broadcaster:
		return Broadcaster
	case f.Moderator:
		return Moderator
	case f.VIP:
		return VIP
	case f.Subscriber:
		return Subscriber
	default:
		return Viewer
	}
}

// Guard is one eligibility check. Guards are composed with [All].
type Guard func(ctx context.Context) bool

// All evaluates guards in order and reports whether all of them allow.
// Evaluation stops at the first guard that denies.
func All(ctx context.Context, guards ...Guard) bool {
	for _, g := range guards {
		if !g(ctx) {
			return false
		}
	}
	return true
}
