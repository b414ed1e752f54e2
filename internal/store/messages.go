package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Message is a stored contact-form submission.
type Message struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Contact     string    `db:"contact"`
	ContactKind string    `db:"contact_kind"`
	Body        string    `db:"body"`
	Theme       string    `db:"theme"`
	CreatedAt   time.Time `db:"created_at"`

	Attachment *Attachment `db:"-"`
}

// Attachment is the file that came with a message.
type Attachment struct {
	ID          int64     `db:"id"`
	MessageID   int64     `db:"message_id"`
	FileName    string    `db:"file_name"`
	StoredName  string    `db:"stored_name"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	CreatedAt   time.Time `db:"created_at"`
}

// NewMessage carries the already-validated fields of a submission.
type NewMessage struct {
	Name        string
	Contact     string
	ContactKind string
	Body        string
	Theme       string
	Attachment  *NewAttachment
}

// NewAttachment describes a file already written to the upload store.
type NewAttachment struct {
	FileName    string
	StoredName  string
	ContentType string
	SizeBytes   int64
}

// MessageStore is the sqlx-backed store for messages and attachments.
type MessageStore struct {
	rebinder
	db *sqlx.DB
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(db *sqlx.DB) *MessageStore {
	return &MessageStore{rebinder: rebinder{db}, db: db}
}

// insert runs an INSERT and returns the new row id. PostgreSQL has no
// LastInsertId, so it uses RETURNING instead.
func (s *MessageStore) insert(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (int64, error) {
	if s.isPostgres() {
		var id int64
		err := tx.QueryRowxContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Create stores a message and its optional attachment in one transaction.
func (s *MessageStore) Create(ctx context.Context, in NewMessage) (*Message, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insert(ctx, tx, `
		INSERT INTO messages (name, contact, contact_kind, body, theme, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.Contact, in.ContactKind, in.Body, in.Theme, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	m := &Message{
		ID:          id,
		Name:        in.Name,
		Contact:     in.Contact,
		ContactKind: in.ContactKind,
		Body:        in.Body,
		Theme:       in.Theme,
		CreatedAt:   now,
	}

	if a := in.Attachment; a != nil {
		aid, err := s.insert(ctx, tx, `
			INSERT INTO attachments (message_id, file_name, stored_name, content_type, size_bytes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, a.FileName, a.StoredName, a.ContentType, a.SizeBytes, now)
		if err != nil {
			return nil, fmt.Errorf("insert attachment: %w", err)
		}
		m.Attachment = &Attachment{
			ID:          aid,
			MessageID:   id,
			FileName:    a.FileName,
			StoredName:  a.StoredName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			CreatedAt:   now,
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// GetByID returns the message with its attachment, or ErrNotFound.
func (s *MessageStore) GetByID(ctx context.Context, id int64) (*Message, error) {
	var m Message
	err := s.db.GetContext(ctx, &m, s.q(`SELECT * FROM messages WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a, err := s.GetAttachment(ctx, id)
	switch {
	case err == nil:
		m.Attachment = a
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return &m, nil
}

// GetAttachment returns the attachment for a message, or ErrNotFound.
func (s *MessageStore) GetAttachment(ctx context.Context, messageID int64) (*Attachment, error) {
	var a Attachment
	err := s.db.GetContext(ctx, &a, s.q(`SELECT * FROM attachments WHERE message_id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns messages newest first with attachments populated.
func (s *MessageStore) List(ctx context.Context, limit, offset int) ([]*Message, error) {
	var msgs []*Message
	err := s.db.SelectContext(ctx, &msgs, s.q(`
		SELECT * FROM messages ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	ids := make([]int64, len(msgs))
	byID := make(map[int64]*Message, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		byID[m.ID] = m
	}
	query, args, err := sqlx.In(`SELECT * FROM attachments WHERE message_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var atts []*Attachment
	if err := s.db.SelectContext(ctx, &atts, s.q(query), args...); err != nil {
		return nil, err
	}
	for _, a := range atts {
		if m, ok := byID[a.MessageID]; ok {
			m.Attachment = a
		}
	}
	return msgs, nil
}

// Count returns the number of stored messages.
func (s *MessageStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages`)
	return n, err
}

// Delete removes a message and returns its attachment (nil if none) so the
// caller can remove the stored file.
func (s *MessageStore) Delete(ctx context.Context, id int64) (*Attachment, error) {
	a, err := s.GetAttachment(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, ErrNotFound) {
		a = nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM attachments WHERE message_id = ?`), id); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}
