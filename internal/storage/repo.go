package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

// PersistenceError marks store failures that must not interrupt the
// live conversation: callers log and surface them, the in-memory chat
// keeps going.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (s *Store) EnsureIdentity(ctx context.Context, identityID string) error {
	q := s.sql.Insert("identities").
		Columns("id").
		Values(identityID).
		Suffix("ON CONFLICT(id) DO NOTHING")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return &PersistenceError{Op: "ensure identity", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return &PersistenceError{Op: "ensure identity", Err: err}
	}
	return nil
}

// SaveMessage writes a finalized message for an identity and returns
// it with the assigned id and server timestamp. An absent image is
// stored as SQL NULL, never as an empty string, so readers can rely on
// the field being present-with-null.
func (s *Store) SaveMessage(ctx context.Context, identityID string, m ChatMessage) (ChatMessage, error) {
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return ChatMessage{}, &PersistenceError{Op: "save message", Err: fmt.Errorf("unknown role %q", m.Role)}
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	q := s.sql.Insert("chat_messages").
		Columns("app_id", "identity_id", "client_id", "role", "text", "image_url", "ts").
		Values(s.appID, identityID, m.ClientID, m.Role, m.Text, imageURLValue(m.ImageURL), ts)

	if s.driver == "postgres" {
		sqlStr, args, err := q.Suffix("RETURNING id").ToSql()
		if err != nil {
			return ChatMessage{}, &PersistenceError{Op: "save message", Err: err}
		}
		if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&m.ID); err != nil {
			return ChatMessage{}, &PersistenceError{Op: "save message", Err: err}
		}
	} else {
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return ChatMessage{}, &PersistenceError{Op: "save message", Err: err}
		}
		res, err := s.db.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return ChatMessage{}, &PersistenceError{Op: "save message", Err: err}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return ChatMessage{}, &PersistenceError{Op: "save message", Err: err}
		}
		m.ID = id
	}

	m.Timestamp = ts
	m.IsStreaming = false
	if norm := imageURLValue(m.ImageURL); norm == nil {
		m.ImageURL = nil
	}
	return m, nil
}

// imageURLValue maps an optional image reference to its stored value:
// nil (SQL NULL) for both absent and empty, the data URI otherwise.
func imageURLValue(u *string) any {
	if u == nil || strings.TrimSpace(*u) == "" {
		return nil
	}
	return *u
}

// History returns all messages for an identity ordered ascending by
// timestamp, ties broken by insert order.
func (s *Store) History(ctx context.Context, identityID string) ([]ChatMessage, error) {
	q := s.sql.Select("id", "client_id", "role", "text", "image_url", "ts").
		From("chat_messages").
		Where(sq.Eq{"app_id": s.appID, "identity_id": identityID}).
		OrderBy("ts ASC", "id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, &PersistenceError{Op: "load history", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "load history", Err: err}
	}
	defer rows.Close()

	out := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		var imageURL sql.NullString
		if err := rows.Scan(&m.ID, &m.ClientID, &m.Role, &m.Text, &imageURL, &m.Timestamp); err != nil {
			return nil, &PersistenceError{Op: "load history", Err: err}
		}
		if imageURL.Valid {
			m.ImageURL = &imageURL.String
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load history", Err: err}
	}
	return out, nil
}
