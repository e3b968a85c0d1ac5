// Package ledger tracks per-user state for chat command recipients:
// bans and the time each user was last sent the theme list.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Record is the state of one user. Name is always lower case.
type Record struct {
	Name string
	// Served is the last time the user was sent the theme list.
	// It is the zero time if they have not been.
	Served time.Time
	Banned bool
}

// Persister saves and restores the list of banned users.
type Persister interface {
	// Load returns the names of banned users.
	Load(ctx context.Context) ([]string, error)
	// Save replaces the stored list of banned users.
	Save(ctx context.Context, banned []string) error
}

// Ledger is the set of user records. Only bans are persisted.
// Its methods are safe to call concurrently.
type Ledger struct {
	mu   sync.Mutex
	recs map[string]*Record
	// save is held from each change through its save, so saves land in
	// the order of the changes they record.
	save  sync.Mutex
	store Persister
}

// New creates a ledger, loading banned users from store once.
// If store is nil, bans are held in memory only.
func New(ctx context.Context, store Persister) (*Ledger, error) {
	l := &Ledger{
		recs:  make(map[string]*Record),
		store: store,
	}
	if store == nil {
		return l, nil
	}
	names, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't load banned users: %w", err)
	}
	for _, n := range names {
		l.record(n).Banned = true
	}
	return l, nil
}

// record gets the record for a user, creating it if needed.
// l.mu must be held.
func (l *Ledger) record(name string) *Record {
	name = strings.ToLower(name)
	r := l.recs[name]
	if r == nil {
		r = &Record{Name: name}
		l.recs[name] = r
	}
	return r
}

// IsBanned reports whether a user is banned.
func (l *Ledger) IsBanned(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.recs[strings.ToLower(name)]
	return r != nil && r.Banned
}

// Ban bans a user and saves the ban list. Banning an already banned user
// saves the same list again. The ban holds in memory even if saving fails.
func (l *Ledger) Ban(ctx context.Context, name string) error {
	return l.set(ctx, name, true)
}

// Unban lifts a ban and saves the ban list. Unbanning a user who was never
// banned does nothing.
func (l *Ledger) Unban(ctx context.Context, name string) error {
	return l.set(ctx, name, false)
}

func (l *Ledger) set(ctx context.Context, name string, banned bool) error {
	l.save.Lock()
	defer l.save.Unlock()
	l.mu.Lock()
	if !banned {
		r := l.recs[strings.ToLower(name)]
		if r == nil || !r.Banned {
			l.mu.Unlock()
			return nil
		}
	}
	l.record(name).Banned = banned
	list := l.banned()
	l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, list); err != nil {
		return fmt.Errorf("couldn't save ban list: %w", err)
	}
	return nil
}

// Banned returns the sorted list of banned users.
func (l *Ledger) Banned() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.banned()
}

func (l *Ledger) banned() []string {
	var r []string
	for _, v := range l.recs {
		if v.Banned {
			r = append(r, v.Name)
		}
	}
	slices.Sort(r)
	return r
}

// Throttle reports whether the theme list was already sent to a user on the
// same UTC calendar date as now. If not, it records now as the delivery time.
func (l *Ledger) Throttle(name string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.record(name)
	if !r.Served.IsZero() && sameDay(r.Served, now) {
		return true
	}
	r.Served = now
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ClearServed forgets every list delivery, so that all users may request the
// theme list again.
func (l *Ledger) ClearServed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, r := range l.recs {
		if !r.Banned {
			delete(l.recs, k)
			continue
		}
		r.Served = time.Time{}
	}
}

// Memory is a Persister that holds the ban list in memory.
type Memory struct {
	mu    sync.Mutex
	names []string
	saves int
}

// Load returns the last saved list.
func (m *Memory) Load(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.names), nil
}

// Save replaces the list.
func (m *Memory) Save(ctx context.Context, banned []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = slices.Clone(banned)
	m.saves++
	return nil
}

// Saves returns the number of times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
