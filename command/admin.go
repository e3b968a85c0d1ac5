package command

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/market"
)

// refresh reloads the catalog.
func refresh(ctx context.Context, e *Engine, c *call) {
	if !access.All(ctx, e.moderator(c)) {
		return
	}
	if err := e.deps.Catalog.Refresh(ctx); err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't refresh themes", slog.Any("err", err))
		return
	}
	e.deps.Log.InfoContext(ctx, "refreshed themes", slog.Int("count", len(e.deps.Catalog.Items())))
}

// target is the user named by a ban command.
func target(args string) string {
	t, _ := firstWord(args)
	return strings.TrimPrefix(t, "@")
}

func ban(ctx context.Context, e *Engine, c *call) {
	u := target(c.args)
	if u == "" || !access.All(ctx, e.moderator(c)) {
		return
	}
	if err := e.deps.Ledger.Ban(ctx, u); err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't save ban", slog.String("target", u), slog.Any("err", err))
	}
	e.deps.Log.InfoContext(ctx, "banned", slog.String("target", u), slog.String("by", c.User))
}

func unban(ctx context.Context, e *Engine, c *call) {
	u := target(c.args)
	if u == "" || !access.All(ctx, e.moderator(c)) {
		return
	}
	if err := e.deps.Ledger.Unban(ctx, u); err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't save unban", slog.String("target", u), slog.Any("err", err))
	}
	e.deps.Log.InfoContext(ctx, "unbanned", slog.String("target", u), slog.String("by", c.User))
}

// install installs a theme extension from the marketplace.
func install(ctx context.Context, e *Engine, c *call) {
	id, _ := firstWord(c.args)
	if id == "" {
		return
	}
	ok := access.All(ctx,
		e.notBanned(c),
		e.atLeast(c, c.cfg.Install),
	)
	if !ok {
		return
	}
	if !market.ValidID(id) {
		e.deny(ctx, c, "invalid id")
		return
	}
	if have := e.deps.Catalog.Sources(id); len(have) > 0 {
		var labels []string
		for _, it := range have {
			if !slices.Contains(labels, it.Label) {
				labels = append(labels, it.Label)
			}
		}
		e.say(ctx, c, existsText(c.User, id, labels))
		return
	}
	if e.deps.Validate == nil || e.deps.Install == nil {
		e.deny(ctx, c, "disabled")
		return
	}
	labels, err := e.deps.Validate.Validate(ctx, id)
	if err != nil {
		var why market.Reason
		errors.As(err, &why)
		e.deps.Log.ErrorContext(ctx, "theme unavailable",
			slog.String("id", id),
			slog.String("reason", reason(why)),
			slog.Any("err", err),
		)
		c.res.Denied = "unavailable"
		return
	}
	if !c.cfg.AutoInstall {
		e.deps.Log.InfoContext(ctx, "install requested",
			slog.String("user", c.User),
			slog.String("id", id),
			slog.String("themes", strings.Join(labels, ", ")),
		)
		if e.deps.Confirm == nil || !e.deps.Confirm(ctx, c.User, id, labels) {
			e.deny(ctx, c, "declined")
			return
		}
	}
	if err := e.deps.Install.Install(ctx, id); err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't install theme", slog.String("id", id), slog.Any("err", err))
		return
	}
	if err := e.deps.Catalog.Refresh(ctx); err != nil {
		e.deps.Log.ErrorContext(ctx, "couldn't refresh themes after install", slog.Any("err", err))
	}
	e.deps.Log.InfoContext(ctx, "installed theme", slog.String("id", id), slog.String("user", c.User))
	e.say(ctx, c, installedText(c.User, labels))
}

func reason(r market.Reason) string {
	if r == 0 {
		return "unknown"
	}
	return r.Error()
}
