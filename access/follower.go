package access

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Followers is a memo of users known to follow the channel. Absence from the
// set means only that the user is not known to follow.
// Entries are never removed.
type Followers struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// Has reports whether the user is known to be a follower.
func (f *Followers) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[strings.ToLower(name)]
	return ok
}

// Add marks the user as a follower. Adding a user more than once is harmless.
func (f *Followers) Add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string]struct{})
	}
	f.m[strings.ToLower(name)] = struct{}{}
}

// Len returns the number of known followers.
func (f *Followers) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

// FollowCheck asks the chat service whether a user follows the channel.
type FollowCheck func(ctx context.Context, userID string) (bool, error)

// Resolver resolves the effective tier of chat users.
type Resolver struct {
	// Followers is the memo of known followers. It must be non-nil.
	Followers *Followers
	// Check is the follower lookup. If nil, no user resolves as a follower
	// unless already present in Followers.
	Check FollowCheck
	// Log is the logger for lookup failures. If nil, slog.Default is used.
	Log *slog.Logger
	// Lookups is called once for each lookup performed, if not nil.
	Lookups func(ok bool)
}

// Resolve determines the tier of a user. Room flags are used first.
// Otherwise, if min requires at least Follower, the user is checked against
// the follower memo and then the follower lookup. A lookup error is logged
// and treated as not following.
//
// Resolve may block on the lookup. Concurrent calls for the same unknown user
// may each perform a lookup.
func (r *Resolver) Resolve(ctx context.Context, name, userID string, f Flags, min Tier) Tier {
	if t := FromFlags(f); t > Viewer {
		return t
	}
	if min < Follower {
		return Viewer
	}
	if r.Followers.Has(name) {
		return Follower
	}
	if r.Check == nil || userID == "" {
		return Viewer
	}
	ok, err := r.Check(ctx, userID)
	if r.Lookups != nil {
		r.Lookups(ok && err == nil)
	}
	if err != nil {
		log := r.Log
		if log == nil {
			log = slog.Default()
		}
		log.WarnContext(ctx, "follower lookup failed",
			slog.String("user", name),
			slog.String("id", userID),
			slog.Any("err", err),
		)
		return Viewer
	}
	if !ok {
		return Viewer
	}
	r.Followers.Add(name)
	return Follower
}
