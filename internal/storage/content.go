package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"creator_ingest/internal/model"
)

var contentColumns = []string{
	"id", "creator_id", "platform", "platform_content_id", "url", "title", "description",
	"thumbnail_url", "published_at", "content_body", "word_count", "reading_time_minutes",
	"media_urls", "engagement", "reference_type", "referenced_content",
	"ai_summary_short", "ai_summary_long", "summary_status", "summary_model", "summary_generated_at",
	"processing_status", "created_at", "updated_at",
}

type storeOutcome int

const (
	outcomeCreated storeOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

// mutableRow holds the columns refreshed when an item is fetched again.
// Identity columns (creator_id, platform, platform_content_id) are never updated.
type mutableRow struct {
	URL          string
	Title        string
	Description  string
	ThumbnailURL string
	PublishedAt  sql.NullString
	ContentBody  string
	WordCount    int
	ReadingTime  int
	MediaURLs    string
	Engagement   sql.NullString
}

// StoreMultipleContent upserts items by (creator_id, platform,
// platform_content_id). Each item runs in its own transaction; a failing
// item is reported in Errors and does not affect the others.
func (s *SQLite) StoreMultipleContent(ctx context.Context, items []model.CreateContentInput) model.BatchResult {
	var res model.BatchResult
	for _, item := range items {
		id, outcome, err := s.storeOne(ctx, item)
		if err != nil {
			res.Errors = append(res.Errors, model.ItemError{
				PlatformContentID: item.PlatformContentID,
				URL:               item.URL,
				Message:           err.Error(),
			})
			continue
		}
		switch outcome {
		case outcomeCreated:
			res.Created++
			res.CreatedIDs = append(res.CreatedIDs, id)
		case outcomeUpdated:
			res.Updated++
		case outcomeSkipped:
			res.Skipped++
		}
	}
	return res
}

func (s *SQLite) storeOne(ctx context.Context, item model.CreateContentInput) (string, storeOutcome, error) {
	if err := item.Validate(); err != nil {
		return "", 0, err
	}
	row, err := encodeMutable(item)
	if err != nil {
		return "", 0, err
	}
	var refJSON sql.NullString
	if item.ReferencedContent != nil {
		data, err := json.Marshal(item.ReferencedContent)
		if err != nil {
			return "", 0, fmt.Errorf("encode referenced content: %w", err)
		}
		refJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Format(timeLayout)
	id, existing, err := selectMutable(ctx, tx, item)
	if errors.Is(err, ErrNotFound) {
		id = uuid.NewString()
		var ins sql.Result
		ins, err = tx.ExecContext(ctx,
			`INSERT INTO content (id, creator_id, platform, platform_content_id, url, title, description,
			     thumbnail_url, published_at, content_body, word_count, reading_time_minutes, media_urls,
			     engagement, reference_type, referenced_content, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (creator_id, platform, platform_content_id) DO NOTHING`,
			id, item.CreatorID, string(item.Platform), item.PlatformContentID, row.URL, row.Title,
			row.Description, row.ThumbnailURL, row.PublishedAt, row.ContentBody, row.WordCount,
			row.ReadingTime, row.MediaURLs, row.Engagement, string(item.ReferenceType), refJSON, now, now,
		)
		if err != nil {
			return "", 0, fmt.Errorf("insert content: %w", err)
		}
		if n, _ := ins.RowsAffected(); n == 1 {
			if err := tx.Commit(); err != nil {
				return "", 0, fmt.Errorf("commit: %w", err)
			}
			return id, outcomeCreated, nil
		}
		// Another writer inserted the same key first.
		id, existing, err = selectMutable(ctx, tx, item)
	}
	if err != nil {
		return "", 0, err
	}

	if existing == row {
		return id, outcomeSkipped, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE content SET url = ?, title = ?, description = ?, thumbnail_url = ?, published_at = ?,
		     content_body = ?, word_count = ?, reading_time_minutes = ?, media_urls = ?, engagement = ?,
		     updated_at = ?
		 WHERE id = ?`,
		row.URL, row.Title, row.Description, row.ThumbnailURL, row.PublishedAt, row.ContentBody,
		row.WordCount, row.ReadingTime, row.MediaURLs, row.Engagement, now, id,
	); err != nil {
		return "", 0, fmt.Errorf("update content: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("commit: %w", err)
	}
	return id, outcomeUpdated, nil
}

func selectMutable(ctx context.Context, tx *sql.Tx, item model.CreateContentInput) (string, mutableRow, error) {
	var id string
	var r mutableRow
	err := tx.QueryRowContext(ctx,
		`SELECT id, url, title, description, thumbnail_url, published_at, content_body, word_count,
		        reading_time_minutes, media_urls, engagement
		 FROM content WHERE creator_id = ? AND platform = ? AND platform_content_id = ?`,
		item.CreatorID, string(item.Platform), item.PlatformContentID,
	).Scan(&id, &r.URL, &r.Title, &r.Description, &r.ThumbnailURL, &r.PublishedAt, &r.ContentBody,
		&r.WordCount, &r.ReadingTime, &r.MediaURLs, &r.Engagement)
	if errors.Is(err, sql.ErrNoRows) {
		return "", r, ErrNotFound
	}
	if err != nil {
		return "", r, fmt.Errorf("select content: %w", err)
	}
	return id, r, nil
}

func encodeMutable(item model.CreateContentInput) (mutableRow, error) {
	r := mutableRow{
		URL:          item.URL,
		Title:        item.Title,
		Description:  item.Description,
		ThumbnailURL: item.ThumbnailURL,
		ContentBody:  item.ContentBody,
		WordCount:    item.WordCount,
		ReadingTime:  item.ReadingTimeMinutes,
		MediaURLs:    "[]",
	}
	if item.PublishedAt != nil {
		r.PublishedAt = sql.NullString{String: item.PublishedAt.UTC().Format(timeLayout), Valid: true}
	}
	if len(item.MediaURLs) > 0 {
		data, err := json.Marshal(item.MediaURLs)
		if err != nil {
			return r, fmt.Errorf("encode media: %w", err)
		}
		r.MediaURLs = string(data)
	}
	if item.Engagement != nil {
		data, err := json.Marshal(item.Engagement)
		if err != nil {
			return r, fmt.Errorf("encode engagement: %w", err)
		}
		r.Engagement = sql.NullString{String: string(data), Valid: true}
	}
	return r, nil
}

// GetContent returns a single content row by its ID.
func (s *SQLite) GetContent(ctx context.Context, id string) (*model.Content, error) {
	query, args, err := sq.Select(contentColumns...).From("content").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content query: %w", err)
	}
	c, err := scanContent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountContent returns the number of content rows, optionally for one creator.
func (s *SQLite) CountContent(ctx context.Context, creatorID string) (int, error) {
	qb := sq.Select("COUNT(*)").From("content")
	if creatorID != "" {
		qb = qb.Where(sq.Eq{"creator_id": creatorID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// ListPendingSummaries returns up to limit rows still waiting for a summary,
// oldest first.
func (s *SQLite) ListPendingSummaries(ctx context.Context, limit int) ([]model.Content, error) {
	query, args, err := sq.Select(contentColumns...).
		From("content").
		Where(sq.Eq{"summary_status": string(model.SummaryPending)}).
		OrderBy("created_at", "id").
		Limit(uint64(max(limit, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveSummary records the summarization outcome of a content row.
func (s *SQLite) SaveSummary(ctx context.Context, id string, u SummaryUpdate) error {
	var generated sql.NullString
	if !u.GeneratedAt.IsZero() {
		generated = sql.NullString{String: u.GeneratedAt.UTC().Format(timeLayout), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE content SET ai_summary_short = ?, ai_summary_long = ?, summary_status = ?,
		     summary_model = ?, summary_generated_at = ?, updated_at = ?
		 WHERE id = ?`,
		u.Short, u.Long, string(u.Status), u.Model, generated, s.now().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return expectOne(res, "content "+id)
}

func scanContent(row scannable) (model.Content, error) {
	var c model.Content
	var platform, refType, summaryStatus, processing, media, created, updated string
	var published, engagement, referenced, generated sql.NullString
	err := row.Scan(
		&c.ID, &c.CreatorID, &platform, &c.PlatformContentID, &c.URL, &c.Title, &c.Description,
		&c.ThumbnailURL, &published, &c.ContentBody, &c.WordCount, &c.ReadingTimeMinutes,
		&media, &engagement, &refType, &referenced,
		&c.AISummaryShort, &c.AISummaryLong, &summaryStatus, &c.SummaryModel, &generated,
		&processing, &created, &updated,
	)
	if err != nil {
		return c, fmt.Errorf("scan content: %w", err)
	}
	c.Platform = model.Platform(platform)
	c.ReferenceType = model.ReferenceType(refType)
	c.SummaryStatus = model.SummaryStatus(summaryStatus)
	c.ProcessingStatus = model.ProcessingStatus(processing)
	c.PublishedAt = parseNullTime(published)
	c.SummaryGeneratedAt = parseNullTime(generated)
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	c.UpdatedAt, _ = time.Parse(timeLayout, updated)

	if media != "" && media != "[]" {
		if err := json.Unmarshal([]byte(media), &c.MediaURLs); err != nil {
			return c, fmt.Errorf("decode media: %w", err)
		}
	}
	if engagement.Valid {
		c.Engagement = &model.Engagement{}
		if err := json.Unmarshal([]byte(engagement.String), c.Engagement); err != nil {
			return c, fmt.Errorf("decode engagement: %w", err)
		}
	}
	if referenced.Valid {
		c.ReferencedContent = &model.ReferencedContent{}
		if err := json.Unmarshal([]byte(referenced.String), c.ReferencedContent); err != nil {
			return c, fmt.Errorf("decode referenced content: %w", err)
		}
	}
	return c, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
