package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-json-experiment/json"
)

// Manifest is the part of an extension manifest describing its themes.
type Manifest struct {
	Name        string `json:"name"`
	Publisher   string `json:"publisher"`
	Contributes struct {
		Themes []ManifestTheme `json:"themes"`
	} `json:"contributes"`
}

// ManifestTheme is a theme contribution in an extension manifest.
type ManifestTheme struct {
	Label   string `json:"label"`
	ID      string `json:"id"`
	UITheme string `json:"uiTheme"`
}

// ID returns the extension ID of the manifest, publisher.name.
func (m *Manifest) ID() string {
	if m.Publisher == "" {
		return m.Name
	}
	return m.Publisher + "." + m.Name
}

// Items converts the manifest's theme contributions to items.
func (m *Manifest) Items() []Item {
	src := m.ID()
	r := make([]Item, 0, len(m.Contributes.Themes))
	for _, t := range m.Contributes.Themes {
		it := Item{
			Source: src,
			Label:  t.Label,
			ID:     t.ID,
			Dark:   t.UITheme != "vs",
		}
		if it.Label == "" {
			it.Label = it.ID
		}
		if it.Label == "" {
			continue
		}
		r = append(r, it)
	}
	return r
}

// Dir is a Provider reading extension manifests from a directory. Each
// extension is either a subdirectory containing a package.json or a .json
// file directly in the directory.
type Dir struct {
	Path string
	// Log receives warnings about manifests that can't be read.
	// If nil, [slog.Default] is used.
	Log *slog.Logger
}

// Items reads all manifests in the directory. Themes are ordered by the name
// of the manifest file that provides them.
func (d *Dir) Items(ctx context.Context) ([]Item, error) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	files, err := d.manifests()
	if err != nil {
		return nil, err
	}
	var r []Item
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			log.WarnContext(ctx, "couldn't read manifest", slog.String("file", f), slog.Any("err", err))
			continue
		}
		var m Manifest
		if err := json.Unmarshal(b, &m); err != nil {
			log.WarnContext(ctx, "couldn't parse manifest", slog.String("file", f), slog.Any("err", err))
			continue
		}
		r = append(r, m.Items()...)
	}
	return r, nil
}

// manifests lists the manifest files in the directory.
func (d *Dir) manifests() ([]string, error) {
	sub, err := filepath.Glob(filepath.Join(d.Path, "*", "package.json"))
	if err != nil {
		return nil, fmt.Errorf("couldn't list extensions: %w", err)
	}
	top, err := filepath.Glob(filepath.Join(d.Path, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("couldn't list extensions: %w", err)
	}
	if _, err := os.Stat(d.Path); err != nil {
		return nil, fmt.Errorf("couldn't open extension directory: %w", err)
	}
	r := append(sub, top...)
	slices.Sort(r)
	return r, nil
}
