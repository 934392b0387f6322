package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"creator_ingest/internal/model"
	"creator_ingest/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type issueKey struct {
	Creator string
	URL     string
}

func keys(issues []Issue) []issueKey {
	out := make([]issueKey, len(issues))
	for i, is := range issues {
		out[i] = issueKey{Creator: is.Creator, URL: is.URL}
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *File
		wantErr bool
	}{
		{
			name: "full entry",
			input: `
creators:
  - name: Alice
    user_id: u-1
    urls:
      - url: https://alice.dev/feed.xml
      - url: https://x.com/alice
        platform: twitter
`,
			want: &File{Creators: []CreatorEntry{{
				Name:   "Alice",
				UserID: "u-1",
				URLs: []URLEntry{
					{URL: "https://alice.dev/feed.xml"},
					{URL: "https://x.com/alice", Platform: "twitter"},
				},
			}}},
		},
		{
			name:  "empty document",
			input: "",
			want:  &File{},
		},
		{
			name:    "unknown key",
			input:   "creators:\n  - name: A\n    handle: a\n",
			wantErr: true,
		},
		{
			name:    "not yaml",
			input:   "creators: [",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	f, err := ParseFile("testdata/creators.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	im := New(store, discard)
	rep, err := im.Import(ctx, f)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	if diff := cmp.Diff(2, rep.Created); diff != "" {
		t.Errorf("created (-want +got):\n%s", diff)
	}
	wantIssues := []issueKey{
		{Creator: "Alice", URL: "https://x.com/alice"},
		{Creator: "Alice", URL: "https://x.com/home"},
		{Creator: "Nobody", URL: "not a url"},
		{Creator: "Nobody"},
		{Creator: "creators[3]"},
	}
	if diff := cmp.Diff(wantIssues, keys(rep.Issues)); diff != "" {
		t.Errorf("issues (-want +got):\n%s", diff)
	}

	creators, err := store.ListCreators(ctx, storage.CreatorQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := map[string][]string{}
	for _, c := range creators {
		for _, u := range c.URLs {
			got[c.Name+"|"+c.UserID] = append(got[c.Name+"|"+c.UserID], string(u.Platform)+" "+u.URL)
		}
	}
	want := map[string][]string{
		"Alice|u-1": {"rss https://alice.dev/feed.xml", "twitter https://x.com/alice"},
		"Bob|":      {"youtube https://www.youtube.com/@bobcodes", "threads https://mirror.example.org/bob"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored creators (-want +got):\n%s", diff)
	}
}

func TestImportIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	im := New(store, discard)

	f := &File{Creators: []CreatorEntry{
		{Name: "Alice", UserID: "u-1", URLs: []URLEntry{{URL: "https://alice.dev/feed.xml"}}},
		{Name: "Alice", UserID: "u-2", URLs: []URLEntry{{URL: "https://alice.dev/feed.xml"}}},
	}}

	first, err := im.Import(ctx, f)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := im.Import(ctx, f)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	if diff := cmp.Diff(Report{Created: 2}, first); diff != "" {
		t.Errorf("first report (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Report{Existing: 2}, second); diff != "" {
		t.Errorf("second report (-want +got):\n%s", diff)
	}
}

type failingStore struct {
	listErr   error
	createErr error
}

func (f *failingStore) CreateCreator(context.Context, *model.Creator) error { return f.createErr }

func (f *failingStore) ListCreators(context.Context, storage.CreatorQuery) ([]model.Creator, error) {
	return nil, f.listErr
}

func TestImportStoreErrors(t *testing.T) {
	f := &File{Creators: []CreatorEntry{{Name: "A", URLs: []URLEntry{{URL: "https://a.dev/feed"}}}}}

	_, err := New(&failingStore{listErr: errors.New("disk I/O error")}, discard).Import(context.Background(), f)
	if err == nil {
		t.Fatal("expected error when existing creators cannot be listed")
	}

	rep, err := New(&failingStore{createErr: errors.New("constraint failed")}, discard).Import(context.Background(), f)
	if err != nil {
		t.Fatalf("create failure should be reported, not returned: %v", err)
	}
	want := Report{Issues: []Issue{{Creator: "A", Reason: "constraint failed"}}}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("report (-want +got):\n%s", diff)
	}
}

func TestIssueString(t *testing.T) {
	if diff := cmp.Diff("A: no valid urls", Issue{Creator: "A", Reason: "no valid urls"}.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("A: u: bad", Issue{Creator: "A", URL: "u", Reason: "bad"}.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
