package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/platform"
)

// maxMessageLen keeps messages under Telegram's 4096 character limit.
const maxMessageLen = 4000

// maxReportErrors caps the error lines listed in a run report.
const maxReportErrors = 15

// FormatCreatorList formats the creators of one owner for display.
func FormatCreatorList(creators []model.Creator, now time.Time) string {
	if len(creators) == 0 {
		return "You have no creators yet. Use /add <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your creators:\n")
	for _, c := range creators {
		fmt.Fprintf(&b, "\n%s\n   %s\n", c.Name, c.ID)
		platforms := make([]string, 0, len(c.URLs))
		for _, u := range c.URLs {
			platforms = append(platforms, platformLabel(u.Platform))
		}
		if len(platforms) == 0 {
			platforms = append(platforms, "no URLs")
		}
		fmt.Fprintf(&b, "   %s, fetched %s\n", strings.Join(platforms, ", "), relTime(c.FetchState.LastFetchedAt, now))
	}
	return clip(b.String())
}

// FormatCreatorInfo formats detailed information about a single creator.
func FormatCreatorInfo(c *model.Creator, contentCount int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nID: %s\n", c.Name, c.ID)
	fmt.Fprintf(&b, "Content items: %s\n", humanize.Comma(int64(contentCount)))
	fmt.Fprintf(&b, "Last fetched: %s\n", relTime(c.FetchState.LastFetchedAt, now))

	if len(c.URLs) == 0 {
		b.WriteString("\nNo URLs. Use /addurl to add one.\n")
		return b.String()
	}
	b.WriteString("\nURLs:\n")
	for _, u := range c.URLs {
		fmt.Fprintf(&b, "  U%d %s: %s\n", u.ID, platformLabel(u.Platform), u.URL)
		line := fmt.Sprintf("     fetched %s", relTime(c.FetchState.Since(u.Platform), now))
		if n := len(u.Filters); n > 0 {
			line += fmt.Sprintf(", %d %s", n, plural(n, "filter", "filters"))
		}
		b.WriteString(line + "\n")
	}
	return clip(b.String())
}

// FormatFilterList formats the filter rules of a creator URL grouped by kind.
func FormatFilterList(u *model.CreatorURL, filters []model.Filter) string {
	if len(filters) == 0 {
		return fmt.Sprintf("No filters for U%d %s.\nUse /include, /exclude, /include_re, /exclude_re to add filters.", u.ID, u.URL)
	}

	groups := map[string][]model.Filter{
		"Include (word)":  {},
		"Include (regex)": {},
		"Exclude (word)":  {},
		"Exclude (regex)": {},
	}
	for _, f := range filters {
		switch f.Kind {
		case model.FilterInclude:
			groups["Include (word)"] = append(groups["Include (word)"], f)
		case model.FilterIncludeRe:
			groups["Include (regex)"] = append(groups["Include (regex)"], f)
		case model.FilterExclude:
			groups["Exclude (word)"] = append(groups["Exclude (word)"], f)
		case model.FilterExcludeRe:
			groups["Exclude (regex)"] = append(groups["Exclude (regex)"], f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filters for U%d %s:\n", u.ID, u.URL)

	order := []string{"Include (word)", "Include (regex)", "Exclude (word)", "Exclude (regex)"}
	for _, groupName := range order {
		fs := groups[groupName]
		if len(fs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", groupName)
		for _, f := range fs {
			fmt.Fprintf(&b, "  F%d: %s (%s)\n", f.ID, f.Value, scopeLabel(f.Scope))
		}
	}
	return b.String()
}

// FormatDetection describes how a URL was classified.
func FormatDetection(d platform.Detection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Platform: %s\n", platformLabel(d.Platform))
	if d.PlatformUserID != "" {
		fmt.Fprintf(&b, "Profile ID: %s\n", d.PlatformUserID)
	}
	if d.CanonicalProfileURL != "" {
		fmt.Fprintf(&b, "URL: %s\n", d.CanonicalProfileURL)
	}
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, d.Metadata[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRunReport summarises an ingestion run for a chat message.
func FormatRunReport(title string, res *orchestrator.RunResult, err error) string {
	if err != nil {
		return fmt.Sprintf("%s failed: %v", title, err)
	}
	if res == nil {
		return title + ": no result"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", title, res.Message)
	fmt.Fprintf(&b, "Fetched %s %s\n", humanize.Comma(int64(res.Stats.Processed)),
		plural(res.Stats.Processed, "item", "items"))
	if res.Stats.SummaryGenerationError != "" {
		fmt.Fprintf(&b, "Summaries not queued: %s\n", res.Stats.SummaryGenerationError)
	}

	var lines []string
	for _, c := range res.Stats.Creators {
		for _, u := range c.URLs {
			if u.Status == orchestrator.StatusError {
				lines = append(lines, fmt.Sprintf("- %s, %s: %s", c.Name, u.URL, u.Error))
			}
		}
	}
	if len(lines) > 0 {
		b.WriteString("\nErrors:\n")
		for i, l := range lines {
			if i == maxReportErrors {
				fmt.Fprintf(&b, "...and %d more\n", len(lines)-maxReportErrors)
				break
			}
			b.WriteString(l + "\n")
		}
	}
	return clip(strings.TrimRight(b.String(), "\n"))
}

func relTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

func platformLabel(p model.Platform) string {
	switch p {
	case model.PlatformRSS:
		return "RSS"
	case model.PlatformYouTube:
		return "YouTube"
	case model.PlatformTwitter:
		return "X"
	case model.PlatformThreads:
		return "Threads"
	case model.PlatformLinkedIn:
		return "LinkedIn"
	default:
		return string(p)
	}
}

func scopeLabel(s model.FilterScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeContent:
		return "content only"
	default:
		return "title+content"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxMessageLen-1]) + "…"
}
