package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/zephyrtronium/themer/catalog"
	"github.com/zephyrtronium/themer/ledger"
)

var app = cli.Command{
	Name:  "themer",
	Usage: "Twitch chat controlled editor themes",

	Flags: []cli.Flag{
		&flagConfig,
		&flagLog,
		&flagLogFormat,
	},
	Commands: []*cli.Command{
		{
			Name:   "themes",
			Usage:  "Print installed themes without serving",
			Action: cliThemes,
		},
		{
			Name:  "bans",
			Usage: "List or edit banned users without serving",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:  "add",
					Usage: "Users to ban",
				},
				&cli.StringSliceFlag{
					Name:  "remove",
					Usage: "Users to unban",
				},
			},
			Action: cliBans,
		},
	},
	Action: cliRun,

	Authors: []any{
		"Branden J Brown  @zephyrtronium",
	},
	Copyright: "Copyright 2024 Branden J Brown",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		<-ctx.Done()
		stop()
	}()
	err := app.Run(ctx, os.Args)
	if err != nil {
		fmt.Println(err)
	}
}

func cliRun(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	p := cmd.String("config")
	cfg, md, err := loadFile(ctx, p)
	if err != nil {
		return fmt.Errorf("couldn't load config: %w", err)
	}
	robo := New(runtime.GOMAXPROCS(0))
	robo.config = p
	bans, db, err := loadBans(ctx, cfg.DB.Bans)
	if err != nil {
		return err
	}
	if err := robo.SetSources(ctx, cfg, bans, db); err != nil {
		return err
	}
	if md.IsDefined("tmi") {
		if err := robo.SetSecrets(cfg.SecretFile); err != nil {
			return err
		}
		if err := robo.InitTwitch(ctx, cfg.TMI); err != nil {
			return err
		}
	} else {
		slog.WarnContext(ctx, "no tmi configuration; not connecting to chat")
	}
	return robo.Run(ctx, cfg.HTTP.Listen)
}

func cliThemes(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadFile(ctx, cmd.String("config"))
	if err != nil {
		return fmt.Errorf("couldn't load config: %w", err)
	}
	s := catalog.New(&catalog.Dir{Path: cfg.Editor.Extensions}, nil)
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	for _, it := range s.Items() {
		kind := "light"
		if it.Dark {
			kind = "dark"
		}
		fmt.Printf("%s\t%s\t%s\n", it.Label, kind, it.Source)
	}
	return nil
}

func cliBans(ctx context.Context, cmd *cli.Command) error {
	slog.SetDefault(loggerFromFlags(cmd))
	cfg, _, err := loadFile(ctx, cmd.String("config"))
	if err != nil {
		return fmt.Errorf("couldn't load config: %w", err)
	}
	if cfg.DB.Bans == "" {
		return errors.New("no ban database configured")
	}
	bans, db, err := loadBans(ctx, cfg.DB.Bans)
	if err != nil {
		return err
	}
	defer db.Close()
	l, err := ledger.New(ctx, bans)
	if err != nil {
		return fmt.Errorf("couldn't load ban list: %w", err)
	}
	for _, u := range cmd.StringSlice("add") {
		if err := l.Ban(ctx, u); err != nil {
			return err
		}
	}
	for _, u := range cmd.StringSlice("remove") {
		if err := l.Unban(ctx, u); err != nil {
			return err
		}
	}
	for _, u := range l.Banned() {
		fmt.Println(u)
	}
	return nil
}

var (
	flagConfig = cli.StringFlag{
		Name:       "config",
		Required:   true,
		Usage:      "TOML config file",
		Persistent: true,
		Action: func(ctx context.Context, cmd *cli.Command, s string) error {
			i, err := os.Stat(s)
			if err != nil {
				return err
			}
			if !i.Mode().IsRegular() {
				return errors.New("config must be a regular file")
			}
			return nil
		},
	}

	flagLog = cli.StringFlag{
		Name:       "log",
		Usage:      "Logging level, one of debug, info, warn, error",
		Value:      "info",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			var l slog.Level
			return l.UnmarshalText([]byte(s))
		},
	}

	flagLogFormat = cli.StringFlag{
		Name:       "log-format",
		Usage:      "Logging format, either text or json",
		Value:      "text",
		Persistent: true,
		Action: func(ctx context.Context, c *cli.Command, s string) error {
			switch strings.ToLower(s) {
			case "text", "json":
				return nil
			default:
				return errors.New("unknown logging format")
			}
		},
	}
)

func loggerFromFlags(cmd *cli.Command) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmd.String("log"))); err != nil {
		panic(err)
	}
	var h slog.Handler
	switch strings.ToLower(cmd.String("log-format")) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	case "json":
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	}
	return slog.New(h)
}
