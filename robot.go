package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/auth"
	"github.com/zephyrtronium/themer/catalog"
	"github.com/zephyrtronium/themer/command"
	"github.com/zephyrtronium/themer/editor"
	"github.com/zephyrtronium/themer/ledger"
	"github.com/zephyrtronium/themer/market"
	"github.com/zephyrtronium/themer/metrics"
	"github.com/zephyrtronium/themer/twitch"
)

// Robot is the overall state of the themer.
type Robot struct {
	// catalog is the set of installed themes.
	catalog *catalog.Store
	// ledger is the ban list and list delivery record.
	ledger *ledger.Ledger
	// engine runs commands.
	engine *command.Engine
	// settings is the editor settings file.
	settings *editor.Settings
	// extensions is the editor extension directory.
	extensions string
	// bans is the ban database, if one is configured.
	bans *sqlitex.Pool
	// channel is the channel in which the themer listens for commands.
	channel string
	// autoConnect delays joining chat until the channel is live.
	autoConnect bool
	// config is the path to the configuration file.
	config string
	// works is the worker pool for handling messages.
	works chan chan func(context.Context)
	// secrets are the themer's keys.
	secrets *keys
	// twitch is the Twitch API client.
	twitch twitch.Client
	// tmi contains the themer's Twitch OAuth2 settings. It may be nil if there
	// is no Twitch configuration.
	tmi *client
	// metrics are the themer's metrics.
	metrics *metrics.Metrics
}

// client is the settings for OAuth2 and related elements.
type client struct {
	// send is the channel to send messages to TMI.
	send chan *tmi.Message
	// recv is the channel on which TMI delivers messages.
	recv chan *tmi.Message
	// clientID is the OAuth2 application client ID.
	clientID string
	// name is the themer's login name.
	name string
	// userID is the themer's user ID.
	userID string
	// broadcaster is the user ID of the channel owner.
	broadcaster string
	// rate is the global rate limiter for this client.
	rate *rate.Limiter
	// tokens is the source of OAuth2 tokens.
	tokens auth.TokenSource
}

// New creates a new themer instance. Use SetSecrets, SetSources, and
// InitTwitch to initialize it before Run.
func New(poolSize int) *Robot {
	return &Robot{
		works:   make(chan chan func(context.Context), poolSize),
		metrics: metrics.New(),
	}
}

// SetSources initializes the catalog, ledger, and command engine.
func (robo *Robot) SetSources(ctx context.Context, cfg *Config, bans ledger.Persister, db *sqlitex.Pool) error {
	robo.bans = db
	robo.channel = cfg.TMI.Channel
	robo.autoConnect = cfg.TMI.AutoConnect
	robo.extensions = cfg.Editor.Extensions
	robo.settings = &editor.Settings{Path: cfg.Editor.Settings}
	robo.catalog = catalog.New(&catalog.Dir{Path: cfg.Editor.Extensions}, nil)
	if err := robo.catalog.Refresh(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "loaded themes", slog.Int("count", len(robo.catalog.Items())))
	var err error
	robo.ledger, err = ledger.New(ctx, bans)
	if err != nil {
		return fmt.Errorf("couldn't load ban list: %w", err)
	}
	resolver := &access.Resolver{
		Followers: new(access.Followers),
		Check:     robo.following,
		Lookups: func(ok bool) {
			robo.metrics.FollowerLookups.Observe(1, fmt.Sprint(ok))
		},
	}
	robo.engine = command.New(command.Deps{
		Catalog:  robo.catalog,
		Ledger:   robo.ledger,
		Access:   resolver,
		Apply:    robo.settings,
		Validate: &market.Validator{HTTP: &http.Client{Timeout: 30 * time.Second}, Marketplace: cfg.Editor.Marketplace},
		Install:  &market.Exec{Command: cfg.Editor.Command, Args: cfg.Editor.Args},
		Confirm:  confirmLogged,
		Send:     &chat{robo: robo},
	})
	robo.engine.SetConfig(cfg.Themer)
	if it, ok := robo.engine.Remember(ctx); ok {
		slog.InfoContext(ctx, "original theme", slog.String("theme", it.Name()))
	} else {
		slog.WarnContext(ctx, "active theme isn't installed; reset is unavailable")
	}
	return nil
}

// confirmLogged is the install confirmation used when auto-install is off.
// There is no broadcaster prompt, so it records the request and refuses.
func confirmLogged(ctx context.Context, user, id string, labels []string) bool {
	slog.InfoContext(ctx, "install needs approval; set auto_install to allow",
		slog.String("user", user),
		slog.String("id", id),
		slog.Any("themes", labels),
	)
	return false
}

// Run connects to services and runs the admin API until ctx is canceled.
func (robo *Robot) Run(ctx context.Context, listen string) error {
	group, ctx := errgroup.WithContext(ctx)
	if robo.extensions != "" {
		group.Go(func() error {
			err := catalog.Watch(ctx, nil, robo.extensions, robo.catalog)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	group.Go(func() error { return robo.watchConfig(ctx) })
	if listen != "" {
		group.Go(func() error { return robo.api(ctx, listen, new(http.ServeMux), robo.metrics.Collectors()) })
	}
	if robo.tmi != nil {
		group.Go(func() error { return robo.runTwitch(ctx, group) })
	}
	err := group.Wait()
	if robo.bans != nil {
		robo.bans.Close()
	}
	if err == context.Canceled {
		// If the first error is context canceled, then we are shutting down
		// normally in response to a sigint.
		err = nil
	}
	return err
}

// withToken calls f with the current Twitch token, refreshing and retrying
// once if the token has expired.
func (robo *Robot) withToken(ctx context.Context, f func(tok *oauth2.Token) error) error {
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain Twitch access token: %w", err)
	}
	err = f(tok)
	if !errors.Is(err, twitch.ErrNeedRefresh) {
		return err
	}
	tok, err = robo.tmi.tokens.Refresh(ctx, tok)
	if err != nil {
		return fmt.Errorf("couldn't refresh Twitch token: %w", err)
	}
	return f(tok)
}

// following is the follower lookup for the access resolver.
func (robo *Robot) following(ctx context.Context, userID string) (bool, error) {
	if robo.tmi == nil || robo.tmi.broadcaster == "" {
		return false, errors.New("no broadcaster to check follows against")
	}
	var ok bool
	err := robo.withToken(ctx, func(tok *oauth2.Token) error {
		var err error
		ok, err = twitch.Following(ctx, robo.twitch, tok, robo.tmi.broadcaster, userID)
		return err
	})
	return ok, err
}

// waitLive blocks until the channel is streaming, polling every interval.
func (robo *Robot) waitLive(ctx context.Context, interval time.Duration) error {
	for {
		var live bool
		err := robo.withToken(ctx, func(tok *oauth2.Token) error {
			var err error
			_, live, err = twitch.Live(ctx, robo.twitch, tok, robo.channel)
			return err
		})
		switch {
		case err != nil:
			slog.WarnContext(ctx, "couldn't check stream status", slog.Any("err", err))
		case live:
			slog.InfoContext(ctx, "channel is live", slog.String("channel", robo.channel))
			return nil
		default:
			slog.DebugContext(ctx, "channel is offline", slog.String("channel", robo.channel))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
