package main

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/oauth2"

	"github.com/zephyrtronium/themer/command"
	"github.com/zephyrtronium/themer/message"
	"github.com/zephyrtronium/themer/twitch"
)

// commandPrefix is the chat word that starts a theme command.
const commandPrefix = "!theme"

// tmiMessage processes a PRIVMSG from TMI.
func (robo *Robot) tmiMessage(ctx context.Context, send chan<- *tmi.Message, msg *tmi.Message) {
	if msg.To() != robo.channel {
		// TMI gives a WHISPER for a direct message, so this is a message to a
		// channel that isn't configured. Ignore it.
		return
	}
	robo.metrics.TMIMsgsCount.Observe(1)
	m := message.FromTMI(msg)
	if m.Sender == robo.tmi.userID {
		return
	}
	text, ok := parseCommand(m.Text)
	if r := robo.engine.Config().Reward; m.Reward != "" && m.Reward == r {
		// Redemptions are commands even without the prefix.
		text, ok = redemption(m.Text), true
	}
	if !ok {
		return
	}
	// Run the rest in a worker so that we don't block the message loop.
	work := func(ctx context.Context) {
		log := slog.With(slog.String("trace", m.ID), slog.String("user", m.Login))
		inv := command.Invocation{
			ID:     m.ID,
			User:   m.Login,
			UserID: m.Sender,
			Text:   text,
			Flags:  m.Flags,
			Reward: m.Reward,
		}
		start := time.Now()
		r := robo.engine.Handle(ctx, &inv)
		robo.metrics.ApplyLatency.Observe(time.Since(start).Seconds())
		robo.observe(r)
		log.InfoContext(ctx, "handled",
			slog.String("command", r.Command),
			slog.String("denied", r.Denied),
			slog.Bool("applied", r.Applied != nil),
			slog.Int("whispers", r.Whispers),
		)
	}
	robo.enqueue(ctx, work)
}

// observe records metrics for a command result.
func (robo *Robot) observe(r command.Result) {
	robo.metrics.TMICommandCount.Observe(1, r.Command)
	if r.Applied != nil {
		robo.metrics.ThemeChanges.Observe(1, r.Command)
	}
	if r.Denied != "" {
		robo.metrics.Denials.Observe(1, r.Denied)
	}
}

func (robo *Robot) enqueue(ctx context.Context, work func(context.Context)) {
	var w chan func(context.Context)
	// Get a worker if one exists. Otherwise, spawn a new one.
	select {
	case w = <-robo.works:
	default:
		w = make(chan func(context.Context), 1)
		go worker(ctx, robo.works, w)
	}
	// Send it work.
	select {
	case <-ctx.Done():
		return
	case w <- work:
	}
}

// worker runs works for a while. The provided context is passed to each work.
func worker(ctx context.Context, works chan chan func(context.Context), ch chan func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-ch:
			work(ctx)
			// Replace ourselves in the pool if it needs additional capacity.
			// Otherwise, we're done.
			select {
			case works <- ch:
			default:
				return
			}
		}
	}
}

// sendTMI sends a message to TMI after waiting for the global rate limit.
// The caller should verify that it is safe to send the message.
func (robo *Robot) sendTMI(ctx context.Context, send chan<- *tmi.Message, msg message.Sent) {
	if err := robo.tmi.rate.Wait(ctx); err != nil {
		return
	}
	resp := message.ToTMI(msg.Reply, msg.To, msg.Text)
	select {
	case <-ctx.Done():
		return
	case send <- resp:
	}
}

// parseCommand extracts the command text from a chat message beginning with
// the command prefix.
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if len(text) < len(commandPrefix) || !strings.EqualFold(text[:len(commandPrefix)], commandPrefix) {
		return "", false
	}
	rest := text[len(commandPrefix):]
	if rest != "" && !unicode.IsSpace(rune(rest[0])) {
		// The prefix is part of a longer word.
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// redemption extracts the command text from a reward redemption message,
// which may or may not carry the command prefix.
func redemption(text string) string {
	if s, ok := parseCommand(text); ok {
		return s
	}
	return strings.TrimSpace(text)
}

// chat delivers engine messages to the channel.
type chat struct {
	robo *Robot
}

func (c *chat) Say(ctx context.Context, text string) {
	robo := c.robo
	if robo.tmi == nil {
		return
	}
	robo.sendTMI(ctx, robo.tmi.send, message.Format("", robo.channel, "%s", text))
}

func (c *chat) Whisper(ctx context.Context, user, userID, text string) {
	robo := c.robo
	if robo.tmi == nil {
		return
	}
	if err := robo.tmi.rate.Wait(ctx); err != nil {
		return
	}
	err := robo.withToken(ctx, func(tok *oauth2.Token) error {
		return twitch.Whisper(ctx, robo.twitch, tok, robo.tmi.userID, userID, text)
	})
	if err != nil {
		slog.ErrorContext(ctx, "couldn't whisper", slog.String("user", user), slog.Any("err", err))
		return
	}
	robo.metrics.Whispers.Observe(1)
}
