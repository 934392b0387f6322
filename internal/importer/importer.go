// Package importer loads creators from a YAML file.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"creator_ingest/internal/model"
	"creator_ingest/internal/platform"
	"creator_ingest/internal/storage"
)

// File is the import document.
//
//	creators:
//	  - name: Alice
//	    user_id: u-1
//	    urls:
//	      - url: https://alice.dev/feed.xml
//	      - url: https://x.com/alice
//	        platform: twitter
type File struct {
	Creators []CreatorEntry `yaml:"creators"`
}

// CreatorEntry describes one creator.
type CreatorEntry struct {
	Name   string     `yaml:"name"`
	UserID string     `yaml:"user_id"`
	URLs   []URLEntry `yaml:"urls"`
}

// URLEntry is one source URL. Platform is optional and inferred when empty.
type URLEntry struct {
	URL      string `yaml:"url"`
	Platform string `yaml:"platform"`
}

// Store is the persistence the importer needs.
type Store interface {
	CreateCreator(ctx context.Context, c *model.Creator) error
	ListCreators(ctx context.Context, q storage.CreatorQuery) ([]model.Creator, error)
}

// Issue is a creator or URL that was not imported.
type Issue struct {
	Creator string
	URL     string
	Reason  string
}

func (i Issue) String() string {
	if i.URL == "" {
		return fmt.Sprintf("%s: %s", i.Creator, i.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", i.Creator, i.URL, i.Reason)
}

// Report summarises an import.
type Report struct {
	Created  int
	Existing int
	Issues   []Issue
}

// Parse decodes an import document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("decode import file: %w", err)
	}
	return &f, nil
}

// ParseFile reads and decodes the document at path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer func() { _ = fh.Close() }()
	return Parse(fh)
}

// Importer writes parsed creators to a store.
type Importer struct {
	store Store
	log   *slog.Logger
}

// New creates an Importer.
func New(store Store, log *slog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import creates every valid creator in f. Invalid URLs are reported and
// skipped; a creator with no valid URL is skipped. Creators that already exist
// with the same name and user are left untouched.
func (im *Importer) Import(ctx context.Context, f *File) (Report, error) {
	existing, err := im.store.ListCreators(ctx, storage.CreatorQuery{})
	if err != nil {
		return Report{}, fmt.Errorf("list creators: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.UserID+"\x00"+c.Name] = true
	}

	var rep Report
	for i, entry := range f.Creators {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		name := strings.TrimSpace(entry.Name)
		if name == "" {
			rep.Issues = append(rep.Issues, Issue{Creator: fmt.Sprintf("creators[%d]", i), Reason: "name is required"})
			continue
		}
		key := entry.UserID + "\x00" + name
		if known[key] {
			rep.Existing++
			continue
		}

		urls, issues := resolveURLs(name, entry.URLs)
		rep.Issues = append(rep.Issues, issues...)
		if len(urls) == 0 {
			rep.Issues = append(rep.Issues, Issue{Creator: name, Reason: "no valid urls"})
			continue
		}

		c := &model.Creator{Name: name, UserID: entry.UserID, URLs: urls}
		if err := im.store.CreateCreator(ctx, c); err != nil {
			im.log.Error("import creator", "name", name, "error", err)
			rep.Issues = append(rep.Issues, Issue{Creator: name, Reason: err.Error()})
			continue
		}
		known[key] = true
		rep.Created++
		im.log.Info("creator imported", "creator_id", c.ID, "name", name, "urls", len(urls))
	}

	for _, is := range rep.Issues {
		im.log.Warn("import issue", "creator", is.Creator, "url", is.URL, "reason", is.Reason)
	}
	return rep, nil
}

func resolveURLs(creator string, entries []URLEntry) ([]model.CreatorURL, []Issue) {
	var (
		urls   []model.CreatorURL
		issues []Issue
		seen   = make(map[string]bool)
	)
	for _, e := range entries {
		u, err := platform.Resolve(e.URL, e.Platform)
		if err != nil {
			issues = append(issues, Issue{Creator: creator, URL: e.URL, Reason: err.Error()})
			continue
		}
		key := string(u.Platform) + " " + u.URL
		if seen[key] {
			issues = append(issues, Issue{Creator: creator, URL: e.URL, Reason: "duplicate url"})
			continue
		}
		seen[key] = true
		urls = append(urls, u)
	}
	return urls, issues
}
