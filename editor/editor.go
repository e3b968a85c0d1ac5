// Package editor applies themes by editing an editor's settings file.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/zephyrtronium/themer/catalog"
)

// ThemeKey is the settings key holding the active color theme.
const ThemeKey = "workbench.colorTheme"

// Settings is a JSON settings file. Comments and trailing commas are
// allowed, as the editor allows them. The rest of the file's contents and
// formatting are preserved when a theme is applied.
type Settings struct {
	// Path is the location of the settings file.
	Path string
	// Key is the setting to change. If empty, ThemeKey is used.
	Key string

	mu sync.Mutex
}

func (s *Settings) key() string {
	if s.Key == "" {
		return ThemeKey
	}
	return s.Key
}

func (s *Settings) path() string {
	// Setting names contain dots, which are path separators otherwise.
	return strings.ReplaceAll(s.key(), ".", `\.`)
}

// read returns the settings file contents and a copy with comments and
// trailing commas blanked out. Both have the same length and offsets.
func (s *Settings) read() (orig, std []byte, err error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []byte("{}"), []byte("{}"), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't read settings: %w", err)
	}
	std = pretty.Spec(b)
	if len(bytes.TrimSpace(std)) == 0 {
		return []byte("{}"), []byte("{}"), nil
	}
	if !gjson.ValidBytes(std) || !gjson.ParseBytes(std).IsObject() {
		return nil, nil, fmt.Errorf("couldn't parse settings in %s", s.Path)
	}
	return b, std, nil
}

// Active returns the name of the active theme.
// It is the empty string if none is set.
func (s *Settings) Active(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, std, err := s.read()
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(std, s.path()).String(), nil
}

// Apply sets the active theme to it.
func (s *Settings) Apply(ctx context.Context, it catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, std, err := s.read()
	if err != nil {
		return err
	}
	b, err := s.set(orig, std, it.Name())
	if err != nil {
		return err
	}
	// Write to a temporary file first so that the editor never sees a
	// partial settings file.
	f, err := os.CreateTemp(filepath.Dir(s.Path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("couldn't create settings: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("couldn't write settings: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("couldn't write settings: %w", err)
	}
	if err := os.Rename(f.Name(), s.Path); err != nil {
		return fmt.Errorf("couldn't replace settings: %w", err)
	}
	return nil
}

// set replaces the value of the theme key in orig, or adds the key as the
// first member of the top-level object if it is absent.
func (s *Settings) set(orig, std []byte, name string) ([]byte, error) {
	v, err := json.Marshal(name)
	if err != nil {
		return nil, fmt.Errorf("couldn't encode theme name: %w", err)
	}
	r := gjson.GetBytes(std, s.path())
	if r.Exists() {
		i, j := r.Index, r.Index+len(r.Raw)
		if j > len(orig) || !bytes.Equal(orig[i:j], []byte(r.Raw)) {
			return nil, fmt.Errorf("couldn't locate %s in settings", s.key())
		}
		b := make([]byte, 0, len(orig)-len(r.Raw)+len(v))
		b = append(b, orig[:i]...)
		b = append(b, v...)
		return append(b, orig[j:]...), nil
	}
	k, err := json.Marshal(s.key())
	if err != nil {
		return nil, fmt.Errorf("couldn't encode settings key: %w", err)
	}
	open := bytes.IndexByte(std, '{')
	rest := bytes.TrimSpace(std[open+1:])
	b := make([]byte, 0, len(orig)+len(k)+len(v)+8)
	b = append(b, orig[:open+1]...)
	b = append(b, "\n\t"...)
	b = append(b, k...)
	b = append(b, ": "...)
	b = append(b, v...)
	if len(rest) > 0 && rest[0] != '}' {
		b = append(b, ',')
	} else if bytes.Equal(orig, []byte("{}")) {
		b = append(b, '\n')
	}
	return append(b, orig[open+1:]...), nil
}
