// Package market checks and installs theme extensions from the marketplace.
package market

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/zephyrtronium/themer/catalog"
)

// Reason is a reason an extension can't be installed.
// Errors from [Validator.Validate] wrap one; check with [errors.Is].
type Reason int

const (
	_ Reason = iota
	// NotFound means the marketplace has no extension with the given ID.
	NotFound
	// NoRepository means the marketplace listing names no public repository.
	NoRepository
	// ManifestNotDownloaded means the repository's package.json couldn't be
	// fetched.
	ManifestNotDownloaded
	// NoThemes means the extension contributes no themes.
	NoThemes
	// ManifestMalformed means the repository's package.json couldn't be
	// parsed.
	ManifestMalformed
	// RequestFailed means the request to the marketplace failed.
	RequestFailed
	// InvalidID means the ID is not of the form publisher.name.
	InvalidID
)

func (r Reason) Error() string {
	switch r {
	case NotFound:
		return "not found"
	case NoRepository:
		return "no repository found"
	case ManifestNotDownloaded:
		return "package.json could not be downloaded"
	case NoThemes:
		return "no themes contributed within package.json"
	case ManifestMalformed:
		return "the package.json could not be parsed"
	case RequestFailed:
		return "the request to the marketplace failed"
	case InvalidID:
		return "not an extension id"
	default:
		return fmt.Sprintf("market.Reason(%d)", int(r))
	}
}

// Validator checks that marketplace extensions contribute themes.
type Validator struct {
	// HTTP is the client for requests. If nil, http.DefaultClient is used.
	HTTP *http.Client
	// Marketplace is the URL of the extension item page.
	// If empty, the Visual Studio Marketplace is used.
	Marketplace string
	// Raw is the base URL for raw repository files.
	// If empty, raw.githubusercontent.com is used.
	Raw string
	// Log receives debug information. If nil, [slog.Default] is used.
	Log *slog.Logger
}

const (
	marketplaceURL = "https://marketplace.visualstudio.com/items"
	rawURL         = "https://raw.githubusercontent.com/"
)

// extensionID matches publisher.name extension identifiers.
var extensionID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*\.[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidID reports whether id looks like a publisher.name extension ID.
func ValidID(id string) bool {
	return extensionID.MatchString(id)
}

// repoLink finds the repository named in a marketplace item page.
var repoLink = regexp.MustCompile(`(?i)"GitHubLink":"https://github\.com/([--:\w?@%&+~#=]+)(?:\.git)?"`)

// Validate checks that the extension with the given ID exists and contributes
// at least one theme. On success, it returns the labels of the contributed
// themes. Otherwise, the error wraps a [Reason].
func (v *Validator) Validate(ctx context.Context, id string) ([]string, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("couldn't validate %q: %w", id, InvalidID)
	}
	hc := v.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	log := v.Log
	if log == nil {
		log = slog.Default()
	}
	mp := v.Marketplace
	if mp == "" {
		mp = marketplaceURL
	}
	page, status, err := get(ctx, hc, mp+"?"+url.Values{"itemName": {id}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("couldn't get marketplace listing for %s: %w (%w)", id, err, RequestFailed)
	}
	switch {
	case status == http.StatusNotFound, status == http.StatusOK && len(page) == 0:
		return nil, fmt.Errorf("couldn't find %s: %w", id, NotFound)
	case status != http.StatusOK:
		return nil, fmt.Errorf("marketplace listing for %s: %s (%w)", id, http.StatusText(status), RequestFailed)
	}
	m := repoLink.FindSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("couldn't validate %s: %w", id, NoRepository)
	}
	repo := strings.TrimSuffix(string(m[1]), ".git")
	raw := v.Raw
	if raw == "" {
		raw = rawURL
	}
	u, err := url.JoinPath(raw, repo, "HEAD", "package.json")
	if err != nil {
		return nil, fmt.Errorf("couldn't make manifest url for %s: %w (%w)", repo, err, ManifestNotDownloaded)
	}
	log.DebugContext(ctx, "fetch manifest", slog.String("id", id), slog.String("url", u))
	b, status, err := get(ctx, hc, u)
	if err != nil {
		return nil, fmt.Errorf("couldn't download manifest for %s: %w (%w)", id, err, ManifestNotDownloaded)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("couldn't download manifest for %s: %s (%w)", id, http.StatusText(status), ManifestNotDownloaded)
	}
	var man catalog.Manifest
	if err := json.Unmarshal(b, &man); err != nil {
		return nil, fmt.Errorf("couldn't parse manifest for %s: %w (%w)", id, err, ManifestMalformed)
	}
	items := man.Items()
	if len(items) == 0 {
		return nil, fmt.Errorf("couldn't validate %s: %w", id, NoThemes)
	}
	labels := make([]string, 0, len(items))
	for _, it := range items {
		labels = append(labels, it.Label)
	}
	return labels, nil
}

// get performs a GET request and returns the body truncated to 2 MB along
// with the status code.
func get(ctx context.Context, hc *http.Client, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't make request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", "twitch-themer")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't read response: %w", err)
	}
	return b, resp.StatusCode, nil
}
