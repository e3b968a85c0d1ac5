package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/sync/errgroup"

	"github.com/zephyrtronium/themer/message"
)

const (
	readyText = "Twitch Themer is ready to go. Listening for commands beginning with !theme"
	leftText  = "Twitch Themer has left the building!"
)

// runTwitch connects to TMI and handles chat until ctx is canceled.
// On shutdown it restores the original theme and says goodbye before
// disconnecting.
func (robo *Robot) runTwitch(ctx context.Context, group *errgroup.Group) error {
	if robo.autoConnect {
		slog.InfoContext(ctx, "waiting for channel to go live", slog.String("channel", robo.channel))
		if err := robo.waitLive(ctx, time.Minute); err != nil {
			return err
		}
	}
	if err := robo.InitBroadcaster(ctx); err != nil {
		// Follower lookups fail without a broadcaster, but everything else
		// still works.
		slog.ErrorContext(ctx, "follower checks disabled", slog.Any("err", err))
	}
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain access token for TMI login: %w", err)
	}
	cfg := tmi.ConnectConfig{
		Dial:         new(tls.Dialer).DialContext,
		RetryWait:    tmi.RetryList(true, 0, time.Second, time.Minute, 5*time.Minute),
		Nick:         strings.ToLower(robo.tmi.name),
		Pass:         "oauth:" + tok.AccessToken,
		Capabilities: []string{"twitch.tv/commands", "twitch.tv/tags"},
		Timeout:      300 * time.Second,
	}
	// The connection outlives ctx long enough to send the goodbye.
	conn, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	go robo.tmiLoop(ctx, group, robo.tmi.send, robo.tmi.recv)
	go func() {
		<-ctx.Done()
		robo.leave(conn, robo.tmi.send)
		cancel()
	}()
	tmi.Connect(conn, cfg, tmi.Log(log.Default(), false), robo.tmi.send, robo.tmi.recv)
	return ctx.Err()
}

func (robo *Robot) tmiLoop(ctx context.Context, group *errgroup.Group, send chan<- *tmi.Message, recv <-chan *tmi.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-recv:
			if !ok {
				return
			}
			switch msg.Command {
			case "PRIVMSG":
				group.Go(func() error {
					robo.tmiMessage(ctx, send, msg)
					return nil
				})
			case "WHISPER":
				// Commands only come from the channel.
			case "NOTICE":
				slog.InfoContext(ctx, "TMI notice", slog.String("text", msg.Trailing), slog.String("tags", msg.Tags))
			case "USERSTATE":
				// We could check our badges for a relaxed rate limit, but
				// that only matters for verified bots.
			case "GLOBALUSERSTATE":
				slog.InfoContext(ctx, "connected to TMI", slog.String("GLOBALUSERSTATE", msg.Tags))
			case "366": // End NAMES
				if len(msg.Params) > 1 {
					slog.InfoContext(ctx, "joined channel", slog.String("channel", msg.Params[1]))
				}
			case "376": // End MOTD
				go robo.joinTwitch(ctx, send)
			}
		}
	}
}

// joinTwitch joins the configured channel and announces readiness.
func (robo *Robot) joinTwitch(ctx context.Context, send chan<- *tmi.Message) {
	msg := tmi.Message{
		Command: "JOIN",
		Params:  []string{robo.channel},
	}
	select {
	case <-ctx.Done():
		return
	case send <- &msg:
		// do nothing
	}
	robo.sendTMI(ctx, send, message.Format("", robo.channel, readyText))
}

// leave restores the original theme and says goodbye. ctx must still be
// live for the connection.
func (robo *Robot) leave(ctx context.Context, send chan<- *tmi.Message) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := robo.engine.Restore(ctx); err != nil {
		slog.ErrorContext(ctx, "couldn't restore original theme", slog.Any("err", err))
	}
	robo.sendTMI(ctx, send, message.Format("", robo.channel, leftText))
}
