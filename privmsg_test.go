package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/time/rate"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/catalog"
	"github.com/zephyrtronium/themer/command"
	"github.com/zephyrtronium/themer/editor"
	"github.com/zephyrtronium/themer/ledger"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name string
		in   string
		text string
		ok   bool
	}{
		{"empty", "", "", false},
		{"bare", "!theme", "", true},
		{"case", "!THEME random", "random", true},
		{"prespace", "  !theme random", "random", true},
		{"postspace", "!theme  Monokai Dimmed ", "Monokai Dimmed", true},
		{"word", "!themes", "", false},
		{"other", "!so bocchi", "", false},
		{"middle", "use !theme random", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := parseCommand(c.in)
			if got != c.text {
				t.Errorf("wrong command text: want %q, got %q", c.text, got)
			}
			if ok != c.ok {
				t.Errorf("wrong commandness: want %t, got %t", c.ok, ok)
			}
		})
	}
}

func TestRedemption(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Dracula", "Dracula"},
		{"!theme Dracula", "Dracula"},
		{"  random dark ", "random dark"},
	}
	for _, c := range cases {
		if got := redemption(c.in); got != c.want {
			t.Errorf("wrong text for %q: want %q, got %q", c.in, c.want, got)
		}
	}
}

func testRobot(t *testing.T) *Robot {
	t.Helper()
	ctx := context.Background()
	robo := New(2)
	robo.channel = "#bocchi"
	robo.catalog = catalog.New(catalog.Static{
		{Source: "kessoku.band", Label: "Dracula", Dark: true},
		{Source: "kessoku.band", Label: "Light+"},
	}, nil)
	if err := robo.catalog.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	var err error
	robo.ledger, err = ledger.New(ctx, new(ledger.Memory))
	if err != nil {
		t.Fatal(err)
	}
	robo.settings = &editor.Settings{Path: filepath.Join(t.TempDir(), "settings.json")}
	robo.tmi = &client{
		send:   make(chan *tmi.Message, 8),
		name:   "themer",
		userID: "1",
		rate:   rate.NewLimiter(rate.Inf, 1),
	}
	robo.engine = command.New(command.Deps{
		Catalog: robo.catalog,
		Ledger:  robo.ledger,
		Access:  &access.Resolver{Followers: new(access.Followers)},
		Apply:   robo.settings,
		Send:    &chat{robo: robo},
	})
	cfg := command.DefaultConfig()
	cfg.Reward = "hold-reward"
	robo.engine.SetConfig(cfg)
	return robo
}

func privmsg(t *testing.T, tags, nick, text string) *tmi.Message {
	t.Helper()
	s := "@" + tags + " :" + nick + "!" + nick + "@" + nick + ".tmi.twitch.tv PRIVMSG #bocchi :" + text + "\r\n"
	m, err := tmi.Parse(strings.NewReader(s))
	if err != nil && err != io.EOF {
		t.Fatal(err)
	}
	return m
}

func recvText(t *testing.T, ch <-chan *tmi.Message) string {
	t.Helper()
	select {
	case m := <-ch:
		if m.To() != "#bocchi" {
			t.Errorf("message sent to %q", m.To())
		}
		return m.Trailing
	case <-time.After(5 * time.Second):
		t.Fatal("no message sent")
		return ""
	}
}

func TestTMIMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	robo := testRobot(t)
	msg := privmsg(t, "badges=;display-name=Ryo;id=a1;mod=0;subscriber=0;tmi-sent-ts=1662882968379;user-id=22", "ryo", "!theme help")
	robo.tmiMessage(ctx, robo.tmi.send, msg)
	if got := recvText(t, robo.tmi.send); !strings.HasPrefix(got, "Available !theme commands") {
		t.Errorf("wrong help text %q", got)
	}
}

func TestTMIRedemption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	robo := testRobot(t)
	msg := privmsg(t, "badges=;custom-reward-id=hold-reward;display-name=Ryo;id=a2;mod=0;subscriber=0;tmi-sent-ts=1662882968379;user-id=22", "ryo", "Dracula")
	robo.tmiMessage(ctx, robo.tmi.send, msg)
	want := "@ryo has redeemed pausing the theme on Dracula for 5 minutes."
	if got := recvText(t, robo.tmi.send); got != want {
		t.Errorf("wrong redemption message:\nwant %q\ngot  %q", want, got)
	}
	b, err := os.ReadFile(robo.settings.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"workbench.colorTheme":"Dracula"`) {
		t.Errorf("theme wasn't applied: %s", b)
	}
	if !robo.engine.Paused() {
		t.Errorf("redemption didn't pause")
	}
}

func TestTMIIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	robo := testRobot(t)
	cases := []struct {
		name string
		msg  *tmi.Message
	}{
		{"self", privmsg(t, "badges=;id=a3;user-id=1", "themer", "!theme help")},
		{"not-command", privmsg(t, "badges=;id=a4;user-id=22", "ryo", "hello")},
		{"other-reward", privmsg(t, "badges=;custom-reward-id=other;id=a5;user-id=22", "ryo", "help")},
	}
	for _, c := range cases {
		robo.tmiMessage(ctx, robo.tmi.send, c.msg)
	}
	select {
	case m := <-robo.tmi.send:
		t.Errorf("ignored message produced %q", m.Trailing)
	case <-time.After(100 * time.Millisecond):
	}
}
