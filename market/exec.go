package market

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Exec installs extensions by running an editor command line, by default
// `code --install-extension <id>`.
type Exec struct {
	// Command is the program to run. If empty, "code" is used.
	Command string
	// Args are the arguments preceding the extension ID.
	// If nil, {"--install-extension"} is used.
	Args []string
	// Log receives the command's output. If nil, [slog.Default] is used.
	Log *slog.Logger
}

// Install runs the install command for the extension with the given ID.
func (e *Exec) Install(ctx context.Context, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("couldn't install %q: %w", id, InvalidID)
	}
	name := e.Command
	if name == "" {
		name = "code"
	}
	args := e.Args
	if args == nil {
		args = []string{"--install-extension"}
	}
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	cmd := exec.CommandContext(ctx, name, append(args[:len(args):len(args)], id)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	log.InfoContext(ctx, "install extension",
		slog.String("id", id),
		slog.String("command", cmd.String()),
		slog.String("output", strings.TrimSpace(out.String())),
	)
	if err != nil {
		return fmt.Errorf("couldn't install %s: %w", id, err)
	}
	return nil
}
