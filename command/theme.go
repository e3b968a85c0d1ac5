package command

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/catalog"
)

// change applies the theme named by the call's arguments.
func change(ctx context.Context, e *Engine, c *call) {
	e.changeTo(ctx, c, c.args)
}

// changeTo applies the named theme on behalf of the caller.
func (e *Engine) changeTo(ctx context.Context, c *call, name string) {
	if !e.mayChange(ctx, c) {
		return
	}
	it, ok := e.deps.Catalog.Find(name)
	if !ok {
		c.res.Denied = "unknown"
		e.say(ctx, c, invalidText(c.User, name))
		return
	}
	e.apply(ctx, c, it)
}

// mayChange checks whether the caller may change the theme.
func (e *Engine) mayChange(ctx context.Context, c *call) bool {
	return access.All(ctx,
		e.atLeast(c, c.cfg.Act),
		e.notBanned(c),
	)
}

// apply applies a theme unless changes are paused, then pauses changes if
// the call redeemed the pause reward.
func (e *Engine) apply(ctx context.Context, c *call, it catalog.Item) {
	if e.deps.Gate.Paused() {
		e.deny(ctx, c, "paused")
		e.say(ctx, c, pausedText(c.User))
		return
	}
	if err := e.deps.Apply.Apply(ctx, it); err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't apply theme",
			slog.String("theme", it.Label),
			slog.String("user", c.User),
			slog.Any("err", err),
		)
		return
	}
	c.res.Applied = &it
	e.deps.Log.InfoContext(ctx, "changed theme",
		slog.String("theme", it.Label),
		slog.String("source", it.Source),
		slog.String("user", c.User),
	)
	if c.Reward == "" || c.Reward != c.cfg.Reward {
		return
	}
	hold := time.Duration(c.cfg.Hold)
	// The resume announcement happens long after the command is done.
	bg := context.WithoutCancel(ctx)
	e.deps.Gate.Trip(hold, func() {
		e.deps.Log.InfoContext(bg, "resumed")
		e.deps.Send.Say(bg, resumedText)
	})
	e.say(ctx, c, onPausedText(c.User, it.Label, hold))
}

// reset applies the theme that was active at startup.
func reset(ctx context.Context, e *Engine, c *call) {
	it := e.original.Load()
	if it == nil {
		return
	}
	if !e.mayChange(ctx, c) {
		return
	}
	e.apply(ctx, c, *it)
}

// random applies a random theme other than the active one, optionally
// restricted to dark or light themes.
func random(ctx context.Context, e *Engine, c *call) {
	var filter func(catalog.Item) bool
	kind, _ := firstWord(c.args)
	switch strings.ToLower(kind) {
	case c.cfg.Words.Dark:
		filter = catalog.Dark
	case c.cfg.Words.Light:
		filter = catalog.Light
	}
	active, err := e.deps.Apply.Active(ctx)
	if err != nil {
		e.deps.Log.WarnContext(ctx, "couldn't get active theme", slog.Any("err", err))
	}
	it, ok := e.deps.Catalog.Random(filter, active)
	if !ok {
		e.deps.Log.InfoContext(ctx, "no random candidates", slog.String("filter", kind))
		return
	}
	if !e.mayChange(ctx, c) {
		return
	}
	e.apply(ctx, c, it)
}

// current reports the active theme.
func current(ctx context.Context, e *Engine, c *call) {
	it, ok := e.active(ctx)
	if !ok {
		return
	}
	e.say(ctx, c, currentText(it.Label, it.Source))
}

// active finds the catalog item for the active theme.
func (e *Engine) active(ctx context.Context) (catalog.Item, bool) {
	name, err := e.deps.Apply.Active(ctx)
	if err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't get active theme", slog.Any("err", err))
		return catalog.Item{}, false
	}
	return e.deps.Catalog.Find(name)
}

// Remember records the active theme as the one to return to with the reset
// command and [Engine.Restore]. The catalog should be populated first.
func (e *Engine) Remember(ctx context.Context) (catalog.Item, bool) {
	it, ok := e.active(ctx)
	if ok {
		e.original.Store(&it)
	}
	return it, ok
}

// Restore applies the theme recorded by [Engine.Remember] regardless of
// pauses, as when the bot leaves chat.
func (e *Engine) Restore(ctx context.Context) error {
	it := e.original.Load()
	if it == nil {
		return nil
	}
	return e.deps.Apply.Apply(ctx, *it)
}
