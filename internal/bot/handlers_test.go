package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/platform"
)

func TestParseFilterCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    FilterArgs
		wantErr bool
	}{
		{
			name: "simple word",
			args: "1 kubernetes",
			want: FilterArgs{URLID: 1, Scope: model.ScopeAll, Value: "kubernetes"},
		},
		{
			name: "multi-word value",
			args: "3 helm chart deployment",
			want: FilterArgs{URLID: 3, Scope: model.ScopeAll, Value: "helm chart deployment"},
		},
		{
			name: "prefixed url id",
			args: "U7 golang",
			want: FilterArgs{URLID: 7, Scope: model.ScopeAll, Value: "golang"},
		},
		{
			name: "with scope title",
			args: "1 -s title deploy",
			want: FilterArgs{URLID: 1, Scope: model.ScopeTitle, Value: "deploy"},
		},
		{
			name: "with scope content",
			args: "2 -s content promo material",
			want: FilterArgs{URLID: 2, Scope: model.ScopeContent, Value: "promo material"},
		},
		{
			name:    "scope without value",
			args:    "1 -s title",
			wantErr: true,
		},
		{
			name:    "bad scope",
			args:    "1 -s body word",
			wantErr: true,
		},
		{
			name:    "missing value",
			args:    "1",
			wantErr: true,
		},
		{
			name:    "invalid id",
			args:    "abc kubernetes",
			wantErr: true,
		},
		{
			name:    "empty args",
			args:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilterCommand(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseFilterCommand() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIDArg(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    int64
		wantErr bool
	}{
		{"plain", "42", 42, false},
		{"url prefix", "U12", 12, false},
		{"filter prefix", "F3", 3, false},
		{"extra words ignored", "5 please", 5, false},
		{"empty", "", 0, true},
		{"not a number", "abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIDArg(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseIDArg() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRenameArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantID   string
		wantName string
		wantErr  bool
	}{
		{"simple", "abc New", "abc", "New", false},
		{"multi-word name", "abc The New Name", "abc", "The New Name", false},
		{"missing name", "abc", "", "", true},
		{"blank name", "abc    ", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, name, err := ParseRenameArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff([]string{tt.wantID, tt.wantName}, []string{id, name}); diff != "" {
				t.Errorf("ParseRenameArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAddArgs(t *testing.T) {
	u, name, err := ParseAddArgs("https://x.com/jack  Jack   Dorsey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"https://x.com/jack", "Jack Dorsey"}, []string{u, name}); diff != "" {
		t.Errorf("ParseAddArgs() mismatch (-want +got):\n%s", diff)
	}
	if _, _, err := ParseAddArgs("  "); err == nil {
		t.Error("expected error for empty args")
	}
}

func TestFormatCreatorList(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-3 * time.Hour)

	if got := FormatCreatorList(nil, now); !strings.Contains(got, "no creators yet") {
		t.Errorf("empty list = %q", got)
	}

	got := FormatCreatorList([]model.Creator{
		{
			ID:         "c-1",
			Name:       "Alice",
			FetchState: model.FetchState{LastFetchedAt: &fetched},
			URLs: []model.CreatorURL{
				{Platform: model.PlatformRSS},
				{Platform: model.PlatformTwitter},
			},
		},
		{ID: "c-2", Name: "Bob"},
	}, now)

	want := "Your creators:\n" +
		"\nAlice\n   c-1\n   RSS, X, fetched 3 hours ago\n" +
		"\nBob\n   c-2\n   no URLs, fetched never\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatCreatorList() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatCreatorInfo(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	yt := now.Add(-48 * time.Hour)
	last := now.Add(-time.Hour)
	c := &model.Creator{
		ID:         "c-1",
		Name:       "Alice",
		FetchState: model.FetchState{LastFetchedAt: &last, LastYouTubeFetch: &yt},
		URLs: []model.CreatorURL{
			{ID: 1, Platform: model.PlatformYouTube, URL: "https://www.youtube.com/@alice",
				Filters: []model.Filter{{ID: 1}, {ID: 2}}},
			{ID: 2, Platform: model.PlatformLinkedIn, URL: "https://www.linkedin.com/in/alice/"},
		},
	}

	got := FormatCreatorInfo(c, 12345, now)
	want := "Alice\nID: c-1\nContent items: 12,345\nLast fetched: 1 hour ago\n" +
		"\nURLs:\n" +
		"  U1 YouTube: https://www.youtube.com/@alice\n     fetched 2 days ago, 2 filters\n" +
		"  U2 LinkedIn: https://www.linkedin.com/in/alice/\n     fetched never\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatCreatorInfo() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatFilterList(t *testing.T) {
	u := &model.CreatorURL{ID: 4, URL: "https://alice.dev/feed"}

	if got := FormatFilterList(u, nil); !strings.HasPrefix(got, "No filters for U4 https://alice.dev/feed.") {
		t.Errorf("empty filters = %q", got)
	}

	got := FormatFilterList(u, []model.Filter{
		{ID: 1, Kind: model.FilterExclude, Scope: model.ScopeAll, Value: "ad"},
		{ID: 2, Kind: model.FilterInclude, Scope: model.ScopeTitle, Value: "go"},
		{ID: 3, Kind: model.FilterIncludeRe, Scope: model.ScopeContent, Value: `k8s|kubernetes`},
	})
	want := "Filters for U4 https://alice.dev/feed:\n" +
		"\nInclude (word):\n  F2: go (title only)\n" +
		"\nInclude (regex):\n  F3: k8s|kubernetes (content only)\n" +
		"\nExclude (word):\n  F1: ad (title+content)\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatFilterList() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatDetection(t *testing.T) {
	got := FormatDetection(platform.Detection{
		Platform:            model.PlatformYouTube,
		PlatformUserID:      "@alice",
		CanonicalProfileURL: "https://www.youtube.com/@alice",
		Metadata:            map[string]string{"identifier_type": "handle"},
	})
	want := "Platform: YouTube\nProfile ID: @alice\nURL: https://www.youtube.com/@alice\nidentifier_type: handle"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatDetection() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatRunReport(t *testing.T) {
	res := &orchestrator.RunResult{
		Success: true,
		Message: "Processed 2 creators: 4 new, 1 updated, 2 errors",
		Stats: orchestrator.Stats{
			Processed: 1200,
			New:       4,
			Updated:   1,
			Errors:    2,
			Creators: []orchestrator.CreatorResult{
				{ID: "a", Name: "Alice", URLs: []orchestrator.URLResult{
					{URL: "https://alice.dev/feed", Status: orchestrator.StatusSuccess},
					{URL: "https://x.com/alice", Status: orchestrator.StatusError, Error: "twitter fetcher not configured: missing APIFY_API_TOKEN"},
				}},
				{ID: "b", Name: "Bob", URLs: []orchestrator.URLResult{
					{URL: "https://bob.dev/feed", Status: orchestrator.StatusEmpty, Message: "No new content"},
				}},
			},
			SummaryGenerationError: "queue closed",
		},
	}

	tests := []struct {
		name string
		res  *orchestrator.RunResult
		err  error
		want string
	}{
		{
			name: "full report",
			res:  res,
			want: "Scheduled refresh\n" +
				"Processed 2 creators: 4 new, 1 updated, 2 errors\n" +
				"Fetched 1,200 items\n" +
				"Summaries not queued: queue closed\n" +
				"\nErrors:\n" +
				"- Alice, https://x.com/alice: twitter fetcher not configured: missing APIFY_API_TOKEN",
		},
		{
			name: "run error",
			err:  errors.New("list creators: disk I/O error"),
			want: "Scheduled refresh failed: list creators: disk I/O error",
		},
		{
			name: "no result",
			want: "Scheduled refresh: no result",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRunReport("Scheduled refresh", tt.res, tt.err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FormatRunReport() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatRunReportCapsErrors(t *testing.T) {
	var urls []orchestrator.URLResult
	for i := 0; i < maxReportErrors+5; i++ {
		urls = append(urls, orchestrator.URLResult{URL: "https://example.com", Status: orchestrator.StatusError, Error: "boom"})
	}
	res := &orchestrator.RunResult{Stats: orchestrator.Stats{Creators: []orchestrator.CreatorResult{{Name: "X", URLs: urls}}}}

	got := FormatRunReport("Run", res, nil)
	if n := strings.Count(got, "- X,"); n != maxReportErrors {
		t.Errorf("listed %d errors, want %d", n, maxReportErrors)
	}
	requireContains(t, got, "...and 5 more")
}

func TestClip(t *testing.T) {
	long := strings.Repeat("é", maxMessageLen+10)
	got := clip(long)
	if n := len([]rune(got)); n != maxMessageLen {
		t.Errorf("clipped length = %d, want %d", n, maxMessageLen)
	}
	if diff := cmp.Diff("short", clip("short")); diff != "" {
		t.Errorf("clip(short) (-want +got):\n%s", diff)
	}
}

func TestScopeLabel(t *testing.T) {
	tests := []struct {
		scope model.FilterScope
		want  string
	}{
		{model.ScopeTitle, "title only"},
		{model.ScopeContent, "content only"},
		{model.ScopeAll, "title+content"},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, scopeLabel(tt.scope)); diff != "" {
			t.Errorf("scopeLabel(%q) (-want +got):\n%s", tt.scope, diff)
		}
	}
}
