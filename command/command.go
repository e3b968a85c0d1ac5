// Package command implements the theme chat commands.
package command

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/catalog"
	"github.com/zephyrtronium/themer/ledger"
	"github.com/zephyrtronium/themer/pause"
)

// Invocation is a command sent in chat. An Invocation must not be modified
// or retained by the engine.
type Invocation struct {
	// ID is the message ID, used for logging.
	ID string
	// User is the sender's login name.
	User string
	// UserID is the sender's user ID, used for follower lookups.
	UserID string
	// Text is the command text following the command prefix.
	Text string
	// Flags are the sender's badges in the room.
	Flags access.Flags
	// Reward is the ID of the channel point reward redeemed with the
	// message, if any.
	Reward string
}

// Result describes what a command did.
type Result struct {
	// Command is the name of the command that ran.
	Command string
	// Applied is the theme that was applied, if any.
	Applied *catalog.Item
	// Said is the message sent to chat, if any.
	Said string
	// Whispers is the number of whispers sent.
	Whispers int
	// Denied is the reason the command was refused, if it was.
	Denied string
}

// Applier applies themes to the editor.
type Applier interface {
	// Apply makes it the active theme.
	Apply(ctx context.Context, it catalog.Item) error
	// Active returns the label or ID of the active theme.
	Active(ctx context.Context) (string, error)
}

// Validator checks whether extensions can be installed.
type Validator interface {
	// Validate returns the labels of the themes the extension contributes,
	// or an error if it can't be installed.
	Validate(ctx context.Context, id string) ([]string, error)
}

// Installer installs extensions.
type Installer interface {
	Install(ctx context.Context, id string) error
}

// Sender delivers messages. Delivery is not guaranteed.
type Sender interface {
	// Say sends a message to chat.
	Say(ctx context.Context, text string)
	// Whisper sends a private message to a user.
	Whisper(ctx context.Context, user, userID, text string)
}

// Confirm asks the broadcaster whether to allow user to install the
// extension id contributing the given themes.
type Confirm func(ctx context.Context, user, id string, labels []string) bool

// Deps are the engine's collaborators.
type Deps struct {
	// Log is the logger. If nil, slog.Default is used.
	Log *slog.Logger
	// Catalog is the set of installed themes.
	Catalog *catalog.Store
	// Ledger tracks bans and theme list deliveries.
	Ledger *ledger.Ledger
	// Access resolves user tiers.
	Access *access.Resolver
	// Gate pauses theme changes after redemptions.
	// If nil, the engine uses its own.
	Gate *pause.Gate
	// Apply changes the editor theme.
	Apply Applier
	// Validate checks install requests. If nil, installs are refused.
	Validate Validator
	// Install installs extensions. If nil, installs are refused.
	Install Installer
	// Confirm approves installs when auto-install is off.
	// If nil, such installs are refused.
	Confirm Confirm
	// Send delivers messages.
	Send Sender
	// Now is the clock. If nil, time.Now is used.
	Now func() time.Time
}

// Engine handles chat commands. Its methods are safe to call concurrently.
type Engine struct {
	deps     Deps
	cfg      atomic.Pointer[Config]
	original atomic.Pointer[catalog.Item]
}

// New creates an engine with the default configuration. It registers a
// catalog refresh hook that clears the ledger's list deliveries.
func New(deps Deps) *Engine {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Gate == nil {
		deps.Gate = new(pause.Gate)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	e := &Engine{deps: deps}
	e.SetConfig(DefaultConfig())
	deps.Catalog.OnRefresh(deps.Ledger.ClearServed)
	return e
}

// SetConfig replaces the engine's configuration. Unset command words and
// hold duration take their defaults.
func (e *Engine) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	e.cfg.Store(&cfg)
}

// Config returns the engine's current configuration.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// Paused reports whether theme changes are paused.
func (e *Engine) Paused() bool {
	return e.deps.Gate.Paused()
}

// call is the state of one command being handled.
type call struct {
	*Invocation
	cfg *Config
	// args is the text after the command word.
	args string
	res  Result
}

// Func executes a command.
type Func func(ctx context.Context, e *Engine, c *call)

type route struct {
	word func(w *Words) string
	name string
	fn   Func
}

// routes is the dispatch table. The first route whose word matches the
// command word wins. The empty word is the bare command.
var routes = []route{
	{func(*Words) string { return "" }, "help", help},
	{func(w *Words) string { return w.Current }, "current", current},
	{func(w *Words) string { return w.Reset }, "reset", reset},
	{func(w *Words) string { return w.Random }, "random", random},
	{func(w *Words) string { return w.Help }, "help", help},
	{func(w *Words) string { return w.Refresh }, "refresh", refresh},
	{func(w *Words) string { return w.Repo }, "repo", repo},
	{func(w *Words) string { return w.List }, "list", list},
	{func(w *Words) string { return w.Install }, "install", install},
	{func(w *Words) string { return w.Ban }, "ban", ban},
	{func(w *Words) string { return "!" + w.Ban }, "unban", unban},
}

// Handle runs a command. It sends at most one chat message.
func (e *Engine) Handle(ctx context.Context, inv *Invocation) Result {
	cfg := e.cfg.Load()
	// Commas are allowed after the command word, as in "random, dark".
	text := strings.Replace(inv.Text, ",", "", 1)
	word, args := firstWord(text)
	c := &call{Invocation: inv, cfg: cfg, args: args}
	fn, name := Func(change), "change"
	for _, r := range routes {
		if r.word(&cfg.Words) == word {
			fn, name = r.fn, r.name
			break
		}
	}
	if name == "change" {
		c.args = strings.TrimSpace(text)
	}
	c.res.Command = name
	e.deps.Log.InfoContext(ctx, "command",
		slog.String("name", name),
		slog.String("user", inv.User),
		slog.String("args", c.args),
		slog.String("id", inv.ID),
	)
	fn(ctx, e, c)
	return c.res
}

// firstWord splits the first whitespace-delimited word from s. Both
// results are trimmed.
func firstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// say sends a chat message for the call. Only the first message per call is
// sent.
func (e *Engine) say(ctx context.Context, c *call, text string) {
	if c.res.Said != "" {
		e.deps.Log.WarnContext(ctx, "dropped second message",
			slog.String("command", c.res.Command),
			slog.String("text", text),
		)
		return
	}
	c.res.Said = text
	e.deps.Send.Say(ctx, text)
}

// deny records that the call was refused.
func (e *Engine) deny(ctx context.Context, c *call, why string) {
	c.res.Denied = why
	e.deps.Log.InfoContext(ctx, "denied",
		slog.String("command", c.res.Command),
		slog.String("user", c.User),
		slog.String("reason", why),
	)
}

// tier resolves the caller's tier against min.
func (e *Engine) tier(ctx context.Context, c *call, min access.Tier) access.Tier {
	return e.deps.Access.Resolve(ctx, c.User, c.UserID, c.Flags, min)
}

// atLeast is a guard requiring the caller to resolve to at least min.
func (e *Engine) atLeast(c *call, min access.Tier) access.Guard {
	return func(ctx context.Context) bool {
		if access.Authorized(e.tier(ctx, c, min), min) {
			return true
		}
		e.deny(ctx, c, "tier")
		return false
	}
}

// moderator is a guard requiring the caller to moderate the room.
func (e *Engine) moderator(c *call) access.Guard {
	return func(ctx context.Context) bool {
		if access.Authorized(access.FromFlags(c.Flags), access.Moderator) {
			return true
		}
		e.deny(ctx, c, "tier")
		return false
	}
}

// notBanned is a guard refusing banned callers.
func (e *Engine) notBanned(c *call) access.Guard {
	return func(ctx context.Context) bool {
		if !e.deps.Ledger.IsBanned(c.User) {
			return true
		}
		e.deny(ctx, c, "banned")
		return false
	}
}
