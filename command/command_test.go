package command_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zephyrtronium/themer/access"
	"github.com/zephyrtronium/themer/catalog"
	"github.com/zephyrtronium/themer/command"
	"github.com/zephyrtronium/themer/ledger"
	"github.com/zephyrtronium/themer/market"
)

type applier struct {
	mu      sync.Mutex
	active  string
	applied []catalog.Item
	err     error
}

func (a *applier) Apply(ctx context.Context, it catalog.Item) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, it)
	a.active = it.Name()
	return nil
}

func (a *applier) Active(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, nil
}

func (a *applier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

type whisper struct {
	user, id, text string
}

type sender struct {
	mu       sync.Mutex
	said     []string
	whispers []whisper
	sig      chan string
}

func (s *sender) Say(ctx context.Context, text string) {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
	if s.sig != nil {
		s.sig <- text
	}
}

func (s *sender) Whisper(ctx context.Context, user, userID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whispers = append(s.whispers, whisper{user, userID, text})
}

type validator struct {
	labels []string
	err    error
	calls  int
}

func (v *validator) Validate(ctx context.Context, id string) ([]string, error) {
	v.calls++
	return v.labels, v.err
}

// provider is a catalog provider whose items can change.
type provider struct {
	mu    sync.Mutex
	items []catalog.Item
}

func (p *provider) Items(ctx context.Context) ([]catalog.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]catalog.Item(nil), p.items...), nil
}

func (p *provider) add(it ...catalog.Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, it...)
}

type installer struct {
	p   *provider
	ids []string
	add []catalog.Item
}

func (i *installer) Install(ctx context.Context, id string) error {
	i.ids = append(i.ids, id)
	i.p.add(i.add...)
	return nil
}

var themes = []catalog.Item{
	{Source: "kessoku.band", Label: "Bocchi Light", ID: "bocchi-light"},
	{Source: "kessoku.band", Label: "Ryo Dark", Dark: true},
	{Source: "kessoku.band", Label: "Nijika Dark", ID: "nijika", Dark: true},
	{Source: "sick.hack", Label: "Kikuri", Dark: true},
}

type fixture struct {
	eng     *command.Engine
	apply   *applier
	send    *sender
	ledger  *ledger.Ledger
	store   *catalog.Store
	prov    *provider
	follows atomic.Int32
	// following is the result of follower lookups.
	following atomic.Bool
}

func newFixture(t *testing.T, cfg command.Config, items ...catalog.Item) *fixture {
	t.Helper()
	if items == nil {
		items = themes
	}
	ctx := context.Background()
	f := &fixture{
		apply: &applier{active: items[0].Name()},
		send:  &sender{},
		prov:  &provider{items: items},
	}
	var err error
	f.ledger, err = ledger.New(ctx, new(ledger.Memory))
	if err != nil {
		t.Fatal(err)
	}
	f.store = catalog.New(f.prov, rand.New(rand.NewPCG(3, 4)))
	if err := f.store.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	res := &access.Resolver{
		Followers: new(access.Followers),
		Check: func(ctx context.Context, userID string) (bool, error) {
			f.follows.Add(1)
			return f.following.Load(), nil
		},
	}
	f.eng = command.New(command.Deps{
		Catalog: f.store,
		Ledger:  f.ledger,
		Access:  res,
		Apply:   f.apply,
		Send:    f.send,
	})
	f.eng.SetConfig(cfg)
	return f
}

func (f *fixture) handle(user, text string, flags access.Flags) command.Result {
	inv := command.Invocation{
		User:   user,
		UserID: "id-" + user,
		Text:   text,
		Flags:  flags,
	}
	return f.eng.Handle(context.Background(), &inv)
}

func TestTierLattice(t *testing.T) {
	users := []struct {
		tier   access.Tier
		flags  access.Flags
		follow bool
	}{
		{access.Viewer, access.Flags{}, false},
		{access.Follower, access.Flags{}, true},
		{access.Subscriber, access.Flags{Subscriber: true}, false},
		{access.VIP, access.Flags{VIP: true}, false},
		{access.Moderator, access.Flags{Moderator: true}, false},
		{access.Broadcaster, access.Flags{Broadcaster: true}, false},
	}
	for _, u := range users {
		for _, min := range access.Tiers {
			t.Run(fmt.Sprintf("%v-%v", u.tier, min), func(t *testing.T) {
				cfg := command.DefaultConfig()
				cfg.Act = min
				f := newFixture(t, cfg)
				f.following.Store(u.follow)
				r := f.handle("kita", "Kikuri", u.flags)
				want := u.tier >= min
				if got := r.Applied != nil; got != want {
					t.Errorf("wrong change: want %t, got %t (%+v)", want, got, r)
				}
				if want && f.apply.count() != 1 {
					t.Errorf("wrong number of applies: %d", f.apply.count())
				}
				if !want && r.Denied != "tier" {
					t.Errorf("wrong denial: want tier, got %q", r.Denied)
				}
			})
		}
	}
}

func TestBanScenario(t *testing.T) {
	f := newFixture(t, command.DefaultConfig())
	// Viewers can't ban.
	f.handle("kita", "ban troll1", access.Flags{})
	if f.ledger.IsBanned("troll1") {
		t.Fatal("viewer banned troll1")
	}
	r := f.handle("mod1", "ban troll1", access.Flags{Moderator: true})
	if r.Command != "ban" {
		t.Errorf("wrong command: want ban, got %q", r.Command)
	}
	if r.Said != "" {
		t.Errorf("ban said %q", r.Said)
	}
	if !f.ledger.IsBanned("troll1") {
		t.Fatal("troll1 not banned")
	}
	r = f.handle("troll1", "Kikuri", access.Flags{Subscriber: true})
	if f.apply.count() != 0 {
		t.Errorf("banned user changed theme: %+v", r)
	}
	if r.Denied != "banned" {
		t.Errorf("wrong denial: want banned, got %q", r.Denied)
	}
	f.handle("mod1", "!ban troll1", access.Flags{Moderator: true})
	if f.ledger.IsBanned("troll1") {
		t.Fatal("troll1 still banned")
	}
	f.handle("troll1", "Kikuri", access.Flags{})
	if f.apply.count() != 1 {
		t.Errorf("unbanned user couldn't change theme")
	}
}

func TestWhitespace(t *testing.T) {
	cases := []struct {
		name string
		text string
		cmd  string
		ban  string
	}{
		{"tab", "ban\ttroll", "ban", "troll"},
		{"double", "ban  @troll", "ban", "troll"},
		{"padded", "  ban troll  ", "ban", "troll"},
		{"newline", "ban\ntroll extra", "ban", "troll"},
		{"random-tab", "random\tdark", "random", ""},
		{"help-only", "help\t", "help", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t, command.DefaultConfig())
			r := f.handle("mod1", c.text, access.Flags{Moderator: true})
			if r.Command != c.cmd {
				t.Errorf("wrong command: want %q, got %q", c.cmd, r.Command)
			}
			if c.ban != "" && !f.ledger.IsBanned(c.ban) {
				t.Errorf("%s not banned; bans are %v", c.ban, f.ledger.Banned())
			}
		})
	}
}

func TestFollowerMemo(t *testing.T) {
	cfg := command.DefaultConfig()
	cfg.Act = access.Follower
	f := newFixture(t, cfg)
	f.handle("v1", "Kikuri", access.Flags{})
	if f.apply.count() != 0 {
		t.Error("non-follower changed theme")
	}
	if got := f.follows.Load(); got != 1 {
		t.Errorf("wrong lookups after non-follower: want 1, got %d", got)
	}
	f.following.Store(true)
	f.handle("v1", "Kikuri", access.Flags{})
	if f.apply.count() != 1 {
		t.Error("follower couldn't change theme")
	}
	if got := f.follows.Load(); got != 2 {
		t.Errorf("wrong lookups after follower: want 2, got %d", got)
	}
	f.handle("v1", "Kikuri", access.Flags{})
	if f.apply.count() != 2 {
		t.Error("memoized follower couldn't change theme")
	}
	if got := f.follows.Load(); got != 2 {
		t.Errorf("memoized follower was looked up again: %d lookups", got)
	}
}

func TestRedemptionPause(t *testing.T) {
	cfg := command.DefaultConfig()
	cfg.Reward = "pause-reward"
	cfg.Hold = command.Duration(200 * time.Millisecond)
	f := newFixture(t, cfg)
	f.send.sig = make(chan string, 4)
	inv := command.Invocation{User: "seika", Text: "Kikuri", Reward: "pause-reward"}
	r := f.eng.Handle(context.Background(), &inv)
	if r.Applied == nil {
		t.Fatalf("redemption didn't apply: %+v", r)
	}
	if !strings.HasPrefix(r.Said, "@seika has redeemed pausing the theme on Kikuri for ") {
		t.Errorf("wrong redemption message %q", r.Said)
	}
	<-f.send.sig
	if !f.eng.Paused() {
		t.Fatal("not paused after redemption")
	}
	r = f.handle("kita", "Ryo Dark", access.Flags{})
	if r.Applied != nil {
		t.Error("changed theme while paused")
	}
	if r.Said != "@kita, theme changes are paused. Please try again in a few minutes." {
		t.Errorf("wrong paused message %q", r.Said)
	}
	<-f.send.sig
	select {
	case m := <-f.send.sig:
		if m != "Twitch Themer has resumed listening for requests." {
			t.Errorf("wrong resume message %q", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("never resumed")
	}
	r = f.handle("kita", "Ryo Dark", access.Flags{})
	if r.Applied == nil || r.Applied.Label != "Ryo Dark" {
		t.Errorf("couldn't change theme after resume: %+v", r)
	}
}

func TestRedemptionOtherReward(t *testing.T) {
	cfg := command.DefaultConfig()
	cfg.Reward = "pause-reward"
	f := newFixture(t, cfg)
	inv := command.Invocation{User: "seika", Text: "Kikuri", Reward: "hydrate"}
	r := f.eng.Handle(context.Background(), &inv)
	if r.Applied == nil {
		t.Fatal("didn't apply")
	}
	if f.eng.Paused() || r.Said != "" {
		t.Errorf("other reward paused changes: %+v", r)
	}
}

func TestRandomDark(t *testing.T) {
	items := []catalog.Item{
		{Source: "x", Label: "A"},
		{Source: "x", Label: "B", Dark: true},
		{Source: "x", Label: "C", Dark: true},
	}
	for i := range 20 {
		f := newFixture(t, command.DefaultConfig(), items...)
		r := f.handle("kita", "random dark", access.Flags{})
		if f.apply.count() != 1 {
			t.Fatalf("%d: wrong number of applies: %d", i, f.apply.count())
		}
		if got := r.Applied.Label; got != "B" && got != "C" {
			t.Errorf("%d: picked %q", i, got)
		}
	}
}

func TestRandomMembership(t *testing.T) {
	f := newFixture(t, command.DefaultConfig())
	for range 50 {
		before, _ := f.apply.Active(context.Background())
		r := f.handle("kita", "random", access.Flags{})
		if r.Applied == nil {
			t.Fatalf("random didn't apply: %+v", r)
		}
		if _, ok := f.store.Find(r.Applied.Label); !ok {
			t.Errorf("picked %q outside catalog", r.Applied.Label)
		}
		if r.Applied.Name() == before {
			t.Errorf("picked the active theme %q", before)
		}
	}
}

func TestRandomEmpty(t *testing.T) {
	items := []catalog.Item{{Source: "x", Label: "A"}}
	f := newFixture(t, command.DefaultConfig(), items...)
	r := f.handle("kita", "random, light", access.Flags{})
	if r.Applied != nil || r.Said != "" {
		t.Errorf("random with no candidates did something: %+v", r)
	}
}

func TestOneMessage(t *testing.T) {
	cases := []struct {
		name  string
		user  string
		text  string
		flags access.Flags
		said  bool
	}{
		{"bare", "kita", "", access.Flags{}, true},
		{"help", "kita", "help", access.Flags{}, true},
		{"repo", "kita", "repo", access.Flags{}, true},
		{"current", "kita", "current", access.Flags{}, true},
		{"invalid", "kita", "Kessoku Band", access.Flags{}, true},
		{"change", "kita", "Ryo Dark", access.Flags{}, false},
		{"change-id", "kita", "nijika", access.Flags{}, false},
		{"random", "kita", "random", access.Flags{}, false},
		{"reset", "kita", "reset", access.Flags{}, false},
		{"refresh", "kita", "refresh", access.Flags{Moderator: true}, false},
		{"ban", "kita", "ban ryo", access.Flags{Moderator: true}, false},
		{"unban", "kita", "!ban ryo", access.Flags{Moderator: true}, false},
		{"list", "kita", "list", access.Flags{}, false},
		{"install-exists", "kita", "install sick.hack", access.Flags{Broadcaster: true}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t, command.DefaultConfig())
			f.eng.Remember(context.Background())
			r := f.handle(c.user, c.text, c.flags)
			f.send.mu.Lock()
			n := len(f.send.said)
			f.send.mu.Unlock()
			if n > 1 {
				t.Errorf("sent %d messages: %q", n, f.send.said)
			}
			if (n == 1) != c.said {
				t.Errorf("wrong message presence: want %t, got %q", c.said, f.send.said)
			}
			if n == 1 && r.Said != f.send.said[0] {
				t.Errorf("result reports %q but sent %q", r.Said, f.send.said[0])
			}
		})
	}
}

func TestMessages(t *testing.T) {
	f := newFixture(t, command.DefaultConfig())
	cases := []struct {
		text string
		want string
	}{
		{"", "Available !theme commands are: random, random dark, random light, current, and repo. You can also use !theme <theme name> to choose a specific theme. Or install a theme using !theme install <id of the theme>"},
		{"repo", "You can find the source code for this VS Code extension at https://github.com/build-with-me/vscode-twitch-themer . Feel free to fork & contribute."},
		{"current", "The current theme is Bocchi Light. You can find it on the VS Code Marketplace at https://marketplace.visualstudio.com/items?itemName=kessoku.band"},
		{"Kita Aqua", "kita, Kita Aqua is not a valid theme name or isn't installed.  You can use !theme to get a list of available themes."},
	}
	for _, c := range cases {
		r := f.handle("kita", c.text, access.Flags{})
		if r.Said != c.want {
			t.Errorf("wrong message for %q:\nwant %q\ngot  %q", c.text, c.want, r.Said)
		}
	}
}

func TestList(t *testing.T) {
	now := time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, command.DefaultConfig())
	f.eng = command.New(command.Deps{
		Catalog: f.store,
		Ledger:  f.ledger,
		Access:  &access.Resolver{Followers: new(access.Followers)},
		Apply:   f.apply,
		Send:    f.send,
		Now:     func() time.Time { return now },
	})
	r := f.handle("kita", "list", access.Flags{})
	want := []whisper{{"kita", "id-kita", "Available themes are: Bocchi Light, Ryo Dark, Nijika Dark, Kikuri"}}
	if diff := cmp.Diff(want, f.send.whispers, cmp.AllowUnexported(whisper{})); diff != "" {
		t.Errorf("wrong whispers (-want +got):\n%s", diff)
	}
	if r.Whispers != 1 || r.Said != "" {
		t.Errorf("wrong result %+v", r)
	}
	r = f.handle("kita", "list", access.Flags{})
	if r.Whispers != 0 || r.Denied != "throttled" {
		t.Errorf("second list wasn't throttled: %+v", r)
	}
	now = now.Add(24 * time.Hour)
	r = f.handle("kita", "list", access.Flags{})
	if r.Whispers != 1 {
		t.Errorf("list on the next day was throttled: %+v", r)
	}
	r = f.handle("kita", "list", access.Flags{})
	if r.Whispers != 0 {
		t.Errorf("second list on the next day wasn't throttled: %+v", r)
	}
	f.handle("mod", "refresh", access.Flags{Moderator: true})
	r = f.handle("kita", "list", access.Flags{})
	if r.Whispers != 1 {
		t.Errorf("list after refresh was throttled: %+v", r)
	}
}

func TestInstall(t *testing.T) {
	ext := []catalog.Item{
		{Source: "kessoku.fan", Label: "Futari"},
		{Source: "kessoku.fan", Label: "Hitori"},
	}
	cases := []struct {
		name     string
		text     string
		flags    access.Flags
		follow   bool
		auto     bool
		confirm  bool
		banned   bool
		validate *validator
		said     string
		install  bool
	}{
		{
			name:     "auto",
			text:     "install kessoku.fan",
			follow:   true,
			auto:     true,
			validate: &validator{labels: []string{"Futari", "Hitori"}},
			said:     "@kita, the themes 'Futari, Hitori' were installed successfully.",
			install:  true,
		},
		{
			name:     "confirmed",
			text:     "install kessoku.fan",
			flags:    access.Flags{Subscriber: true},
			confirm:  true,
			validate: &validator{labels: []string{"Futari"}},
			said:     "@kita, the theme 'Futari' was installed successfully.",
			install:  true,
		},
		{
			name:     "declined",
			text:     "install kessoku.fan",
			flags:    access.Flags{Subscriber: true},
			validate: &validator{labels: []string{"Futari"}},
		},
		{
			name:     "exists",
			text:     "install Kessoku.Band",
			flags:    access.Flags{Broadcaster: true},
			validate: &validator{labels: []string{"Futari"}},
			said:     "@kita, 'Kessoku.Band' is already installed. To switch to it, send: !theme Bocchi Light -or- !theme Ryo Dark -or- !theme Nijika Dark",
		},
		{
			name:     "not-follower",
			text:     "install kessoku.fan",
			auto:     true,
			validate: &validator{labels: []string{"Futari"}},
		},
		{
			name:     "banned",
			text:     "install kessoku.fan",
			flags:    access.Flags{Broadcaster: true},
			auto:     true,
			banned:   true,
			validate: &validator{labels: []string{"Futari"}},
		},
		{
			name:     "unavailable",
			text:     "install kessoku.fan",
			flags:    access.Flags{Broadcaster: true},
			auto:     true,
			validate: &validator{err: fmt.Errorf("couldn't validate: %w", market.NoThemes)},
		},
		{
			name:     "flag-id",
			text:     "install --force",
			flags:    access.Flags{Broadcaster: true},
			auto:     true,
			validate: &validator{labels: []string{"Futari"}},
		},
		{
			name:     "no-publisher",
			text:     "install kessoku",
			flags:    access.Flags{Broadcaster: true},
			auto:     true,
			validate: &validator{labels: []string{"Futari"}},
		},
		{
			name:     "no-id",
			text:     "install",
			flags:    access.Flags{Broadcaster: true},
			auto:     true,
			validate: &validator{labels: []string{"Futari"}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := command.DefaultConfig()
			cfg.AutoInstall = c.auto
			f := newFixture(t, cfg)
			f.following.Store(c.follow)
			inst := &installer{p: f.prov, add: ext}
			var asked []string
			f.eng = command.New(command.Deps{
				Catalog: f.store,
				Ledger:  f.ledger,
				Access: &access.Resolver{
					Followers: new(access.Followers),
					Check: func(ctx context.Context, userID string) (bool, error) {
						return f.following.Load(), nil
					},
				},
				Apply:    f.apply,
				Send:     f.send,
				Validate: c.validate,
				Install:  inst,
				Confirm: func(ctx context.Context, user, id string, labels []string) bool {
					asked = append(asked, id)
					return c.confirm
				},
			})
			f.eng.SetConfig(cfg)
			if c.banned {
				f.ledger.Ban(context.Background(), "kita")
			}
			r := f.handle("kita", c.text, c.flags)
			if r.Said != c.said {
				t.Errorf("wrong message:\nwant %q\ngot  %q", c.said, r.Said)
			}
			if got := len(inst.ids) > 0; got != c.install {
				t.Errorf("wrong install: want %t, got %q", c.install, inst.ids)
			}
			if c.install {
				if _, ok := f.store.Find("Futari"); !ok {
					t.Error("catalog wasn't refreshed after install")
				}
			}
			if !market.ValidID(strings.TrimSpace(strings.TrimPrefix(c.text, "install"))) && c.validate.calls != 0 {
				t.Errorf("validated a malformed id")
			}
			if c.auto && len(asked) != 0 {
				t.Errorf("asked for confirmation with auto-install: %q", asked)
			}
		})
	}
}

func TestResetRestore(t *testing.T) {
	f := newFixture(t, command.DefaultConfig())
	ctx := context.Background()
	if r := f.handle("kita", "reset", access.Flags{}); r.Applied != nil {
		t.Errorf("reset with nothing remembered applied %+v", r.Applied)
	}
	it, ok := f.eng.Remember(ctx)
	if !ok || it.Label != "Bocchi Light" {
		t.Fatalf("wrong remembered theme: %+v, %t", it, ok)
	}
	f.handle("kita", "Kikuri", access.Flags{})
	r := f.handle("kita", "reset", access.Flags{})
	if r.Applied == nil || r.Applied.Label != "Bocchi Light" {
		t.Errorf("reset didn't apply original: %+v", r)
	}
	f.handle("kita", "Kikuri", access.Flags{})
	if err := f.eng.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.apply.Active(ctx); got != "bocchi-light" {
		t.Errorf("restore left %q active", got)
	}
}

func TestCustomWords(t *testing.T) {
	cfg := command.DefaultConfig()
	cfg.Words = command.Words{Random: "zufall", Dark: "dunkel", Ban: "bann"}
	f := newFixture(t, cfg)
	r := f.handle("kita", "zufall dunkel", access.Flags{})
	if r.Command != "random" || r.Applied == nil || !r.Applied.Dark {
		t.Errorf("custom random didn't work: %+v", r)
	}
	r = f.handle("kita", "random", access.Flags{})
	if r.Command != "change" {
		t.Errorf("old word still selected %q", r.Command)
	}
	f.handle("mod", "bann troll1", access.Flags{Moderator: true})
	if !f.ledger.IsBanned("troll1") {
		t.Error("custom ban didn't ban")
	}
	if got := f.eng.Config().Words.Help; got != "help" {
		t.Errorf("unset word wasn't defaulted: %q", got)
	}
	r = f.handle("kita", "help", access.Flags{})
	want := "Available !theme commands are: zufall, zufall dunkel, zufall light, current, and repo. You can also use !theme <theme name> to choose a specific theme. Or install a theme using !theme install <id of the theme>"
	if r.Said != want {
		t.Errorf("wrong help text:\nwant %q\ngot  %q", want, r.Said)
	}
}

func TestApplyFailure(t *testing.T) {
	f := newFixture(t, command.DefaultConfig())
	f.apply.err = errors.New("read-only filesystem")
	r := f.handle("kita", "Kikuri", access.Flags{})
	if r.Applied != nil || r.Said != "" {
		t.Errorf("failed apply reported success: %+v", r)
	}
}
