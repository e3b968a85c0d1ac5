package command

import (
	"fmt"
	"time"

	"github.com/zephyrtronium/themer/access"
)

// Config is the engine's configuration. The host replaces it whenever the
// configuration changes.
type Config struct {
	// Act is the minimum tier required to change the theme.
	Act access.Tier `toml:"access"`
	// Install is the minimum tier required to install themes.
	Install access.Tier `toml:"install"`
	// AutoInstall allows installs without confirmation.
	AutoInstall bool `toml:"auto_install"`
	// Words are the words that select each command.
	Words Words `toml:"commands"`
	// Hold is the time theme changes are paused after a redemption.
	Hold Duration `toml:"hold"`
	// Reward is the ID of the channel point reward which pauses theme
	// changes. If empty, redemptions don't pause.
	Reward string `toml:"reward"`
}

// Words are the command words. A chat command selects the first word it
// matches exactly.
type Words struct {
	Install string `toml:"install"`
	Current string `toml:"current"`
	Reset   string `toml:"reset"`
	Help    string `toml:"help"`
	Random  string `toml:"random"`
	Dark    string `toml:"dark"`
	Light   string `toml:"light"`
	Refresh string `toml:"refresh"`
	Repo    string `toml:"repo"`
	Ban     string `toml:"ban"`
	List    string `toml:"list"`
}

// DefaultHold is the pause duration when none is configured.
const DefaultHold = 5 * time.Minute

// Duration is a time.Duration configured in minutes. In TOML, a number is
// a count of minutes and a string is parsed by [time.ParseDuration].
type Duration time.Duration

// UnmarshalTOML decodes a duration from a TOML integer, float, or string.
func (d *Duration) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case int64:
		*d = Duration(time.Duration(v) * time.Minute)
	case float64:
		*d = Duration(v * float64(time.Minute))
	case string:
		r, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("couldn't parse duration: %w", err)
		}
		*d = Duration(r)
	default:
		return fmt.Errorf("couldn't use %T as a duration", v)
	}
	return nil
}

// DefaultConfig returns the configuration used when nothing is configured:
// anyone may change the theme, and followers may install themes.
func DefaultConfig() Config {
	return Config{
		Act:     access.Viewer,
		Install: access.Follower,
		Words:   DefaultWords(),
		Hold:    Duration(DefaultHold),
	}
}

// DefaultWords returns the default command words.
func DefaultWords() Words {
	return Words{
		Install: "install",
		Current: "current",
		Reset:   "reset",
		Help:    "help",
		Random:  "random",
		Dark:    "dark",
		Light:   "light",
		Refresh: "refresh",
		Repo:    "repo",
		Ban:     "ban",
		List:    "list",
	}
}

// withDefaults fills unset words and the hold duration.
func (c Config) withDefaults() Config {
	d := DefaultWords()
	fill := func(w *string, v string) {
		if *w == "" {
			*w = v
		}
	}
	fill(&c.Words.Install, d.Install)
	fill(&c.Words.Current, d.Current)
	fill(&c.Words.Reset, d.Reset)
	fill(&c.Words.Help, d.Help)
	fill(&c.Words.Random, d.Random)
	fill(&c.Words.Dark, d.Dark)
	fill(&c.Words.Light, d.Light)
	fill(&c.Words.Refresh, d.Refresh)
	fill(&c.Words.Repo, d.Repo)
	fill(&c.Words.Ban, d.Ban)
	fill(&c.Words.List, d.List)
	if c.Hold <= 0 {
		c.Hold = Duration(DefaultHold)
	}
	return c
}
