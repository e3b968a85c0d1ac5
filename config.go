package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/zephyrtronium/themer/auth"
	"github.com/zephyrtronium/themer/command"
	"github.com/zephyrtronium/themer/ledger"
	"github.com/zephyrtronium/themer/twitch"
)

// Load loads the themer from a TOML configuration.
// Settings missing from the [themer] table take their default values.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	cfg := Config{Themer: command.DefaultConfig()}
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	return &cfg, &md, nil
}

// loadFile loads the configuration at path p.
func loadFile(ctx context.Context, p string) (*Config, *toml.MetaData, error) {
	r, err := os.Open(p)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open config file: %w", err)
	}
	defer r.Close()
	return Load(ctx, r)
}

// SetSecrets loads the themer's fixed secret and initializes derived secrets.
func (robo *Robot) SetSecrets(file string) error {
	k, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("couldn't read secret key: %w", err)
	}
	tk := domainkey(make([]byte, auth.KeySize), k, []byte("oauth2.twitch"))
	robo.secrets = &keys{
		twitch: (*[auth.KeySize]byte)(tk),
	}
	return nil
}

// InitTwitch initializes the Twitch and TMI clients.
// It must be called after SetSecrets.
func (robo *Robot) InitTwitch(ctx context.Context, cfg ClientCfg) error {
	cfg.endpoint = oauth2.Endpoint{
		TokenURL: "https://id.twitch.tv/oauth2/token",
	}
	client := &http.Client{Timeout: 30 * time.Second}
	robo.twitch = twitch.Client{HTTP: client, ID: cfg.CID}
	c, err := loadClient(cfg, client, *robo.secrets.twitch,
		"chat:read", "chat:edit", "user:manage:whispers", "moderator:read:followers",
	)
	if err != nil {
		return fmt.Errorf("couldn't load TMI client: %w", err)
	}
	robo.tmi = c
	// Validate the Twitch access token now to get our user ID and login.
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain Twitch access token: %w", err)
	}
	for range 5 {
		val, err := twitch.Validate(ctx, robo.twitch, tok)
		slog.InfoContext(ctx, "Twitch validation", slog.Any("response", val), slog.Any("err", err))
		switch {
		case err == nil: // do nothing
		case errors.Is(err, twitch.ErrNeedRefresh):
			tok, err = robo.tmi.tokens.Refresh(ctx, tok)
			if err != nil {
				return fmt.Errorf("couldn't refresh Twitch token: %w", err)
			}
			continue
		default:
			return fmt.Errorf("couldn't validate Twitch token: %w", err)
		}
		if !val.HasScopes("user:manage:whispers") {
			slog.WarnContext(ctx, "token can't send whispers; theme lists won't be delivered")
		}
		robo.tmi.name = val.Login
		robo.tmi.userID = val.UserID
		return nil
	}
	return fmt.Errorf("gave up on validation attempts")
}

// InitBroadcaster resolves the channel's broadcaster to a user ID for
// follower lookups. It must be called after InitTwitch.
func (robo *Robot) InitBroadcaster(ctx context.Context) error {
	var u []twitch.User
	err := robo.withToken(ctx, func(tok *oauth2.Token) error {
		var err error
		u, err = twitch.Users(ctx, robo.twitch, tok, []twitch.User{{Login: strings.TrimPrefix(robo.channel, "#")}})
		return err
	})
	if err != nil {
		return fmt.Errorf("couldn't resolve broadcaster: %w", err)
	}
	if len(u) == 0 {
		return fmt.Errorf("no such channel %s", robo.channel)
	}
	slog.InfoContext(ctx, "Twitch broadcaster",
		slog.String("id", u[0].ID),
		slog.String("login", u[0].Login),
		slog.String("display", u[0].DisplayName),
	)
	robo.tmi.broadcaster = u[0].ID
	return nil
}

// loadBans opens the ban list database at dsn. An empty dsn keeps bans in
// memory only.
func loadBans(ctx context.Context, dsn string) (ledger.Persister, *sqlitex.Pool, error) {
	if dsn == "" {
		slog.WarnContext(ctx, "no ban database; bans won't persist")
		return new(ledger.Memory), nil, nil
	}
	slog.DebugContext(ctx, "ban db", slog.String("path", dsn))
	db, err := sqlitex.NewPool(dsn, sqlitex.PoolOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open ban db: %w", err)
	}
	if err := ledger.Init(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("couldn't initialize ban db: %w", err)
	}
	s, err := ledger.Open(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// loadClient loads client configuration from unmarshaled TOML.
func loadClient(t ClientCfg, hc *http.Client, key [auth.KeySize]byte, scopes ...string) (*client, error) {
	secret, err := os.ReadFile(t.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read client secret: %w", err)
	}
	stor, err := auth.NewFileAt(t.TokenFile, key)
	if err != nil {
		return nil, fmt.Errorf("couldn't use token storage: %w", err)
	}
	cfg := oauth2.Config{
		ClientID:     t.CID,
		ClientSecret: strings.TrimSpace(string(secret)),
		Endpoint:     t.endpoint,
		Scopes:       scopes,
	}
	num := t.Rate.Num
	if num <= 0 {
		num = 20
	}
	every := fseconds(t.Rate.Every)
	if every <= 0 {
		every = 30 * time.Second
	}
	return &client{
		send:     make(chan *tmi.Message, 1),
		recv:     make(chan *tmi.Message, 8), // 8 is enough for on-connect msgs
		clientID: t.CID,
		rate:     rate.NewLimiter(rate.Every(every/time.Duration(num)), num),
		tokens:   auth.NewRefresher(cfg, stor, hc, t.Refresh),
	}, nil
}

type keys struct {
	// twitch is the key for Twitch OAuth2 token storage.
	twitch *[auth.KeySize]byte
}

// domainkey fills o with a key derived from k for the given domain. Panics if
// a key cannot be expanded.
func domainkey(o, k, domain []byte) []byte {
	kr := hkdf.Expand(sha3.New224, k, domain)
	if _, err := io.ReadFull(kr, o); err != nil {
		panic(err)
	}
	return o
}

// Config is the marshaled structure of the themer's configuration.
type Config struct {
	// SecretFile is the path to a file containing a secret key used to encrypt
	// durable secrets like OAuth2 tokens.
	SecretFile string `toml:"secret"`
	// Themer is the command configuration. It is reloaded when the
	// configuration file changes.
	Themer command.Config `toml:"themer"`
	// Editor is the table of editor locations.
	Editor EditorCfg `toml:"editor"`
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db"`
	// TMI is the configuration for connecting to Twitch chat.
	TMI ClientCfg `toml:"tmi"`
	// HTTP is the configuration for the admin API.
	HTTP HTTPCfg `toml:"http"`
}

// EditorCfg locates the editor's settings and extensions.
type EditorCfg struct {
	// Settings is the path to the user settings JSON file.
	Settings string `toml:"settings"`
	// Extensions is the extension directory scanned for themes.
	Extensions string `toml:"extensions"`
	// Command is the editor command line used to install extensions.
	Command string `toml:"command"`
	// Args are the arguments preceding the extension ID when installing.
	Args []string `toml:"args"`
	// Marketplace overrides the extension marketplace item URL.
	Marketplace string `toml:"marketplace"`
}

// ClientCfg is the configuration for connecting to Twitch.
type ClientCfg struct {
	// CID is the client ID.
	CID string `toml:"cid"`
	// SecretFile is the path to a file containing the client secret.
	SecretFile string `toml:"secret"`
	// TokenFile is the path to a file in which the themer will persist its
	// OAuth2 token. It is encrypted with a key derived from the
	// Config.Secret key.
	TokenFile string `toml:"token"`
	// Refresh is a refresh token used when the token file is empty.
	Refresh string `toml:"refresh"`
	// Channel is the channel to join.
	Channel string `toml:"channel"`
	// AutoConnect delays joining chat until the channel is live.
	AutoConnect bool `toml:"auto_connect"`
	// Rate is the global rate limit for sent messages.
	Rate Rate `toml:"rate"`

	endpoint oauth2.Endpoint `toml:"-"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	// Bans is the SQLite DSN of the ban list.
	Bans string `toml:"bans"`
}

// HTTPCfg is the configuration of the admin API.
type HTTPCfg struct {
	Listen string `toml:"listen"`
}

// Rate is a rate limit configuration: Num messages every Every seconds.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.SecretFile,
		&cfg.Editor.Settings,
		&cfg.Editor.Extensions,
		&cfg.Editor.Command,
		&cfg.DB.Bans,
		&cfg.TMI.CID,
		&cfg.TMI.SecretFile,
		&cfg.TMI.TokenFile,
		&cfg.TMI.Refresh,
		&cfg.TMI.Channel,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	if c := cfg.TMI.Channel; c != "" && !strings.HasPrefix(c, "#") {
		cfg.TMI.Channel = "#" + c
	}
	cfg.TMI.Channel = strings.ToLower(cfg.TMI.Channel)
}
