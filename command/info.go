package command

import (
	"context"
	"log/slog"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/catalog"
)

func help(ctx context.Context, e *Engine, c *call) {
	e.say(ctx, c, helpText(&c.cfg.Words))
}

func repo(ctx context.Context, e *Engine, c *call) {
	e.say(ctx, c, repoText)
}

// list whispers the theme labels to the caller, at most once per day.
func list(ctx context.Context, e *Engine, c *call) {
	ok := access.All(ctx,
		e.notBanned(c),
		func(ctx context.Context) bool {
			if e.deps.Ledger.Throttle(c.User, e.deps.Now()) {
				e.deny(ctx, c, "throttled")
				return false
			}
			return true
		},
	)
	if !ok {
		return
	}
	msgs := catalog.Chunk(listPrefix, e.deps.Catalog.Labels(), catalog.Budget)
	for _, m := range msgs {
		e.deps.Send.Whisper(ctx, c.User, c.UserID, m)
	}
	c.res.Whispers = len(msgs)
	e.deps.Log.InfoContext(ctx, "sent theme list",
		slog.String("user", c.User),
		slog.Int("whispers", len(msgs)),
	)
}
