// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/morganforge/ember/internal/model"
	"github.com/morganforge/ember/internal/util"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrConversationNotFound is returned when a conversation doesn't exist.
var ErrConversationNotFound = errors.New("conversation not found")

// =============================================================================
// STORE
// =============================================================================

// Store handles conversation persistence in SQLite. It is safe for
// concurrent use; SQLite serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the tables if they do not exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		role            TEXT NOT NULL,
		terminal        INTEGER NOT NULL DEFAULT 0,
		stop_reason     TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS parts (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		payload    TEXT NOT NULL,
		PRIMARY KEY (message_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, position);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated
		ON conversations(updated_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a conversation, replacing any previous version. The whole
// write happens in one transaction so a crash never leaves half a
// conversation behind.
func (s *Store) Save(ctx context.Context, conv *model.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Model,
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	// Messages are rewritten wholesale; the cascade clears old parts.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}

	for pos, msg := range conv.Messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, position, role, terminal, stop_reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, conv.ID, pos, string(msg.Role),
			boolToInt(msg.Terminal), string(msg.StopReason),
			msg.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		for ppos, part := range msg.Parts {
			payload, err := json.Marshal(part)
			if err != nil {
				return fmt.Errorf("failed to encode part: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO parts (message_id, position, kind, payload)
				VALUES (?, ?, ?, ?)`,
				msg.ID, ppos, string(part.Kind), string(payload))
			if err != nil {
				return fmt.Errorf("failed to insert part: %w", err)
			}
		}
	}

	return tx.Commit()
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a conversation by ID.
func (s *Store) Load(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, model, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	if err := s.loadMessages(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// LoadLatest retrieves the most recently updated conversation, or nil when
// the store is empty.
func (s *Store) LoadLatest(ctx context.Context) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, model, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT 1`)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := s.loadMessages(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// loadMessages fills in the conversation's messages and their parts.
func (s *Store) loadMessages(ctx context.Context, conv *model.Conversation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, terminal, stop_reason, created_at
		FROM messages WHERE conversation_id = ? ORDER BY position`, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg        model.Message
			terminal   int
			stopReason string
			createdAt  int64
			role       string
		)
		if err := rows.Scan(&msg.ID, &role, &terminal, &stopReason, &createdAt); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.Terminal = terminal != 0
		msg.StopReason = model.StopReason(stopReason)
		msg.CreatedAt = time.Unix(0, createdAt)
		conv.Messages = append(conv.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, msg := range conv.Messages {
		if err := s.loadParts(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// loadParts fills in one message's parts.
func (s *Store) loadParts(ctx context.Context, msg *model.Message) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM parts WHERE message_id = ? ORDER BY position`, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to query parts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("failed to scan part: %w", err)
		}
		var part model.Part
		if err := json.Unmarshal([]byte(payload), &part); err != nil {
			return fmt.Errorf("failed to decode part: %w", err)
		}
		msg.Parts = append(msg.Parts, part)
	}
	return rows.Err()
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string
	Title        string
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// List returns metadata for all conversations, most recent first.
func (s *Store) List(ctx context.Context) ([]ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model, c.created_at, c.updated_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var metas []ConversationMeta
	for rows.Next() {
		var (
			meta                 ConversationMeta
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &createdAt, &updatedAt, &meta.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		meta.CreatedAt = time.Unix(0, createdAt)
		meta.UpdatedAt = time.Unix(0, updatedAt)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Prune keeps only the most recent keep conversations.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id NOT IN (
			SELECT id FROM conversations ORDER BY updated_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune conversations: %w", err)
	}
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdownToFile writes the markdown transcript of a conversation.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func (s *Store) ExportMarkdownToFile(ctx context.Context, id, path string) error {
	conv, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, []byte(ExportMarkdown(conv)), 0644)
}

// =============================================================================
// HELPERS
// =============================================================================

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv                 model.Conversation
		createdAt, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &conv.Title, &conv.Model, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	conv.CreatedAt = time.Unix(0, createdAt)
	conv.UpdatedAt = time.Unix(0, updatedAt)
	return &conv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
