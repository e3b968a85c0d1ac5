// Package catalog holds the set of selectable editor themes.
package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/text/cases"
)

// Item is a selectable theme.
type Item struct {
	// Source is the ID of the extension providing the theme.
	Source string
	// Label is the display name of the theme.
	Label string
	// ID is the theme's own identifier, if it has one.
	ID string
	// Dark indicates whether the theme is a dark theme.
	Dark bool
}

// Name is the name to use to apply the item: its ID if it has one, otherwise
// its label.
func (it Item) Name() string {
	if it.ID != "" {
		return it.ID
	}
	return it.Label
}

// Provider enumerates the themes currently available.
type Provider interface {
	Items(ctx context.Context) ([]Item, error)
}

// Store is the current set of themes. Its methods are safe to call
// concurrently.
type Store struct {
	src Provider
	rng *rand.Rand

	mu    sync.RWMutex
	items []Item
	hooks []func()
}

// New creates an empty store. Call Refresh to populate it.
// If rng is nil, the global source is used for random picks.
func New(src Provider, rng *rand.Rand) *Store {
	return &Store{src: src, rng: rng}
}

// OnRefresh registers f to be called after each successful refresh.
func (s *Store) OnRefresh(f func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, f)
	s.mu.Unlock()
}

// Refresh replaces the store's items with those currently given by its
// provider. If the provider fails, the existing items are kept.
func (s *Store) Refresh(ctx context.Context) error {
	items, err := s.src.Items(ctx)
	if err != nil {
		return fmt.Errorf("couldn't refresh themes: %w", err)
	}
	s.mu.Lock()
	s.items = items
	hooks := s.hooks
	s.mu.Unlock()
	for _, f := range hooks {
		f()
	}
	return nil
}

// Items returns the current items in refresh order.
// The result must not be modified.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Labels returns the labels of all current items.
func (s *Store) Labels() []string {
	items := s.Items()
	r := make([]string, 0, len(items))
	for _, it := range items {
		r = append(r, it.Label)
	}
	return r
}

// Find gets the first item whose label or ID matches name without regard to
// case.
func (s *Store) Find(name string) (Item, bool) {
	k := fold(name)
	for _, it := range s.Items() {
		if it.is(k) {
			return it, true
		}
	}
	return Item{}, false
}

// Sources returns the items contributed by the extension with the given ID.
func (s *Store) Sources(source string) []Item {
	k := fold(source)
	var r []Item
	for _, it := range s.Items() {
		if fold(it.Source) == k {
			r = append(r, it)
		}
	}
	return r
}

// Random picks uniformly among items which pass filter and whose label and ID
// both differ from exclude. If filter is nil, all items pass. The boolean is
// false if there are no candidates.
func (s *Store) Random(filter func(Item) bool, exclude string) (Item, bool) {
	k := fold(exclude)
	var c []pick.Case[Item]
	for _, it := range s.Items() {
		if exclude != "" && it.is(k) {
			continue
		}
		if filter != nil && !filter(it) {
			continue
		}
		c = append(c, pick.Case[Item]{E: it, W: 1})
	}
	if len(c) == 0 {
		return Item{}, false
	}
	v := rand.Uint32()
	if s.rng != nil {
		v = s.rng.Uint32()
	}
	return pick.New(c).Pick(v), true
}

// Dark is a filter for [Store.Random] selecting dark themes.
func Dark(it Item) bool { return it.Dark }

// Light is a filter for [Store.Random] selecting light themes.
func Light(it Item) bool { return !it.Dark }

// is reports whether the item's label or ID folds to k.
func (it Item) is(k string) bool {
	return fold(it.Label) == k || (it.ID != "" && fold(it.ID) == k)
}

func fold(s string) string {
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(s)
}

// Static is a Provider that always gives the same items.
type Static []Item

// Items returns a copy of s.
func (s Static) Items(ctx context.Context) ([]Item, error) {
	return append([]Item(nil), s...), nil
}
