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
	_ "modernc.org/sqlite" // SQLite driver registration.

	"creator_ingest/internal/model"
	"creator_ingest/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

var creatorColumns = []string{"id", "name", "user_id", "fetch_state", "fetch_state_version", "created_at", "updated_at"}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=OFF"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateCreator inserts c and its URLs, assigning IDs and timestamps.
func (s *SQLite) CreateCreator(ctx context.Context, c *model.Creator) error {
	now := s.now()
	state := c.FetchState
	state.SchemaVersion = model.FetchStateSchemaVersion
	if err := state.Validate(now); err != nil {
		return err
	}
	stateJSON, err := model.MarshalFetchState(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	ts := now.Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO creators (id, name, user_id, fetch_state, fetch_state_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, c.Name, c.UserID, string(stateJSON), ts, ts,
	); err != nil {
		return fmt.Errorf("insert creator: %w", err)
	}

	urls := make([]model.CreatorURL, len(c.URLs))
	copy(urls, c.URLs)
	for i := range urls {
		urls[i].CreatorID = id
		if err := insertURL(ctx, tx, &urls[i], ts); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.ID = id
	c.FetchState = state
	c.StateVersion = 0
	c.URLs = urls
	c.CreatedAt, _ = time.Parse(timeLayout, ts)
	c.UpdatedAt = c.CreatedAt
	return nil
}

// GetCreator returns a creator with its URLs and their filters.
func (s *SQLite) GetCreator(ctx context.Context, id string) (*model.Creator, error) {
	creators, err := s.ListCreators(ctx, CreatorQuery{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(creators) == 0 {
		return nil, fmt.Errorf("creator %s: %w", id, ErrNotFound)
	}
	return &creators[0], nil
}

// ListCreators returns the creators selected by q ordered by creation time,
// each with its URLs and their filters.
func (s *SQLite) ListCreators(ctx context.Context, q CreatorQuery) ([]model.Creator, error) {
	qb := sq.Select(creatorColumns...).From("creators").OrderBy("created_at", "id")
	if q.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": q.UserID})
	}
	if len(q.IDs) > 0 {
		qb = qb.Where(sq.Eq{"id": q.IDs})
	}
	platforms := platformStrings(q.Platforms)
	if len(platforms) > 0 {
		args := make([]any, len(platforms))
		for i, p := range platforms {
			args[i] = p
		}
		qb = qb.Where(sq.Expr(
			"id IN (SELECT creator_id FROM creator_urls WHERE platform IN ("+sq.Placeholders(len(platforms))+"))",
			args...,
		))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build creators query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query creators: %w", err)
	}
	var creators []model.Creator
	for rows.Next() {
		c, err := scanCreator(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		creators = append(creators, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate creators: %w", err)
	}
	_ = rows.Close()

	if len(creators) == 0 {
		return creators, nil
	}

	ids := make([]string, len(creators))
	for i := range creators {
		ids[i] = creators[i].ID
	}
	urls, err := s.loadURLs(ctx, ids, platforms)
	if err != nil {
		return nil, err
	}
	for i := range creators {
		creators[i].URLs = urls[creators[i].ID]
	}
	return creators, nil
}

// RenameCreator changes the display name of a creator.
func (s *SQLite) RenameCreator(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE creators SET name = ?, updated_at = ? WHERE id = ?`,
		name, s.now().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("rename creator: %w", err)
	}
	return expectOne(res, "creator "+id)
}

// DeleteCreator removes a creator with its URLs and filters. Stored
// content is kept.
func (s *SQLite) DeleteCreator(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM url_filters WHERE url_id IN (SELECT id FROM creator_urls WHERE creator_id = ?)`, id,
	); err != nil {
		return fmt.Errorf("delete url_filters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM creator_urls WHERE creator_id = ?`, id); err != nil {
		return fmt.Errorf("delete creator_urls: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM creators WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete creator: %w", err)
	}
	if err := expectOne(res, "creator "+id); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateFetchState stores state when the creator's fetch_state_version still
// equals expectedVersion, and returns the new version.
func (s *SQLite) UpdateFetchState(ctx context.Context, id string, expectedVersion int64, state model.FetchState) (int64, error) {
	now := s.now()
	state.SchemaVersion = model.FetchStateSchemaVersion
	if err := state.Validate(now); err != nil {
		return 0, err
	}
	data, err := model.MarshalFetchState(state)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE creators
		 SET fetch_state = ?, fetch_state_version = fetch_state_version + 1, updated_at = ?
		 WHERE id = ? AND fetch_state_version = ?`,
		string(data), now.Format(timeLayout), id, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("update fetch state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return expectedVersion + 1, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM creators WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check creator: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("creator %s: %w", id, ErrNotFound)
	}
	return 0, ErrFetchStateConflict
}

// AddCreatorURL attaches a URL to an existing creator.
func (s *SQLite) AddCreatorURL(ctx context.Context, u *model.CreatorURL) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM creators WHERE id = ?`, u.CreatorID).Scan(&exists); err != nil {
		return fmt.Errorf("check creator: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("creator %s: %w", u.CreatorID, ErrNotFound)
	}
	return insertURL(ctx, s.db, u, s.now().Format(timeLayout))
}

// GetCreatorURL returns a single creator URL with its filters.
func (s *SQLite) GetCreatorURL(ctx context.Context, id int64) (*model.CreatorURL, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, creator_id, platform, url, metadata, created_at FROM creator_urls WHERE id = ?`, id,
	)
	u, err := scanURL(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("creator url %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	filters, err := s.ListFilters(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Filters = filters
	return &u, nil
}

// DeleteCreatorURL removes a URL and its filters.
func (s *SQLite) DeleteCreatorURL(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM url_filters WHERE url_id = ?`, id); err != nil {
		return fmt.Errorf("delete url_filters: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM creator_urls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete creator url: %w", err)
	}
	if err := expectOne(res, fmt.Sprintf("creator url %d", id)); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateFilter inserts a new filter and populates its ID and CreatedAt.
func (s *SQLite) CreateFilter(ctx context.Context, f *model.Filter) error {
	now := s.now().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO url_filters (url_id, kind, scope, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.URLID, string(f.Kind), string(f.Scope), f.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListFilters returns all filters for the given creator URL.
func (s *SQLite) ListFilters(ctx context.Context, urlID int64) ([]model.Filter, error) {
	byURL, err := s.loadFilters(ctx, []int64{urlID})
	if err != nil {
		return nil, err
	}
	return byURL[urlID], nil
}

// GetFilter returns a single filter by its ID.
func (s *SQLite) GetFilter(ctx context.Context, id int64) (*model.Filter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url_id, kind, scope, value, created_at FROM url_filters WHERE id = ?`, id,
	)
	f, err := scanFilter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filter %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFilter removes a filter by its ID.
func (s *SQLite) DeleteFilter(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM url_filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	return expectOne(res, fmt.Sprintf("filter %d", id))
}

func (s *SQLite) loadURLs(ctx context.Context, creatorIDs []string, platforms []string) (map[string][]model.CreatorURL, error) {
	qb := sq.Select("id", "creator_id", "platform", "url", "metadata", "created_at").
		From("creator_urls").
		Where(sq.Eq{"creator_id": creatorIDs}).
		OrderBy("id")
	if len(platforms) > 0 {
		qb = qb.Where(sq.Eq{"platform": platforms})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build urls query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query creator urls: %w", err)
	}
	var urls []model.CreatorURL
	for rows.Next() {
		u, err := scanURL(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate creator urls: %w", err)
	}
	_ = rows.Close()

	urlIDs := make([]int64, len(urls))
	for i := range urls {
		urlIDs[i] = urls[i].ID
	}
	filters, err := s.loadFilters(ctx, urlIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]model.CreatorURL, len(creatorIDs))
	for _, u := range urls {
		u.Filters = filters[u.ID]
		out[u.CreatorID] = append(out[u.CreatorID], u)
	}
	return out, nil
}

func (s *SQLite) loadFilters(ctx context.Context, urlIDs []int64) (map[int64][]model.Filter, error) {
	out := make(map[int64][]model.Filter)
	if len(urlIDs) == 0 {
		return out, nil
	}
	query, args, err := sq.Select("id", "url_id", "kind", "scope", "value", "created_at").
		From("url_filters").
		Where(sq.Eq{"url_id": urlIDs}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build filters query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		out[f.URLID] = append(out[f.URLID], f)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertURL(ctx context.Context, db execer, u *model.CreatorURL, ts string) error {
	meta := u.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode url metadata: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO creator_urls (creator_id, platform, url, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.CreatorID, string(u.Platform), u.URL, string(metaJSON), ts,
	)
	if err != nil {
		return fmt.Errorf("insert creator url: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt, _ = time.Parse(timeLayout, ts)
	return nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func platformStrings(ps []model.Platform) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p))
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCreator(row scannable) (model.Creator, error) {
	var c model.Creator
	var state, created, updated string
	err := row.Scan(&c.ID, &c.Name, &c.UserID, &state, &c.StateVersion, &created, &updated)
	if err != nil {
		return c, fmt.Errorf("scan creator: %w", err)
	}
	c.FetchState, err = model.UnmarshalFetchState([]byte(state))
	if err != nil {
		return c, fmt.Errorf("creator %s: %w", c.ID, err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	c.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return c, nil
}

func scanURL(row scannable) (model.CreatorURL, error) {
	var u model.CreatorURL
	var platform, meta, created string
	if err := row.Scan(&u.ID, &u.CreatorID, &platform, &u.URL, &meta, &created); err != nil {
		return u, fmt.Errorf("scan creator url: %w", err)
	}
	u.Platform = model.Platform(platform)
	if err := json.Unmarshal([]byte(meta), &u.Metadata); err != nil {
		return u, fmt.Errorf("decode url metadata: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return u, nil
}

func scanFilter(row scannable) (model.Filter, error) {
	var f model.Filter
	var kindStr, scopeStr, createdStr string
	err := row.Scan(&f.ID, &f.URLID, &kindStr, &scopeStr, &f.Value, &createdStr)
	if err != nil {
		return f, fmt.Errorf("scan filter: %w", err)
	}
	f.Kind = model.FilterKind(kindStr)
	f.Scope = model.FilterScope(scopeStr)
	f.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return f, nil
}
