package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/querysql"
)

// ErrNotFound is returned by Get when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// Record is implemented by every storable document.
type Record interface {
	RecordID() string
	RecordTimes() (created, updated time.Time)
}

// Put upserts rec into collection. The row's stamps are taken from the
// record itself; callers touch the record before writing it.
func (s *Store) Put(ctx context.Context, collection string, rec Record) error {
	id := rec.RecordID()
	if id == "" {
		return fmt.Errorf("put %s: empty id", collection)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("put %s/%s: marshal: %w", collection, id, err)
	}
	created, updated := rec.RecordTimes()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			body = excluded.body
	`,
		collection,
		id,
		stampNanos(created),
		stampNanos(updated),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get decodes the document id of collection into out.
// Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, collection, id string, out any) error {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("get %s/%s: decode: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// RawDocument is one stored row: its key, its updated_at column and the
// undecoded body.
type RawDocument struct {
	ID    string
	Stamp time.Time
	Body  []byte
}

// ChangedSince returns the documents in collection with updated_at strictly
// after since, ordered by stamp then id. A zero since matches everything;
// limit <= 0 means no limit.
func (s *Store) ChangedSince(ctx context.Context, collection string, since time.Time, limit int) ([]RawDocument, error) {
	query := `SELECT id, updated_at, body FROM documents WHERE collection = ?`
	args := []any{collection}
	if !since.IsZero() {
		query += ` AND updated_at > ?`
		args = append(args, stampNanos(since))
	}
	query += " " + querysql.OrderBy
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("changed since %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []RawDocument
	for rows.Next() {
		var (
			doc   RawDocument
			nanos int64
			body  string
		)
		if err := rows.Scan(&doc.ID, &nanos, &body); err != nil {
			return nil, fmt.Errorf("changed since %s: scan: %w", collection, err)
		}
		doc.Stamp = nanosStamp(nanos)
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changed since %s: iterate: %w", collection, err)
	}
	return docs, nil
}

// Find returns raw bodies of documents in collection matching filter.
func (s *Store) Find(ctx context.Context, collection string, filter live.Filter) ([][]byte, error) {
	query, args, err := querysql.CompileFind(collection, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return s.queryBodies(ctx, query, args...)
}

// ListIDs returns every id in collection, sorted.
func (s *Store) ListIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection = ? ORDER BY id COLLATE BINARY ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list ids %s: %w", collection, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list ids %s: scan: %w", collection, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ids %s: iterate: %w", collection, err)
	}
	return ids, nil
}

// Count returns the number of documents in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *Store) queryBodies(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var bodies [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		bodies = append(bodies, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return bodies, nil
}

// stampNanos converts a stamp to its column value. The zero time maps to 0
// because its UnixNano is undefined.
func stampNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// nanosStamp is the inverse of stampNanos.
func nanosStamp(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
