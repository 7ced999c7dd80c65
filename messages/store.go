// Package messages manages the operator's saved message list and the send
// pipeline around it.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no saved message has the given id.
	ErrNotFound = errors.New("messages: not found")
	// ErrUndeletable is returned when deleting a pinned or main message.
	ErrUndeletable = errors.New("messages: pinned or main messages cannot be deleted")
	// ErrEmptyText rejects blank message bodies.
	ErrEmptyText = errors.New("messages: text must not be empty")
)

// undoWindow is how long a single delete stays reversible.
const undoWindow = 5 * time.Second

// SavedMessage is one entry of the operator's prepared message list.
type SavedMessage struct {
	ID        int64     `json:"id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	Pinned    bool      `json:"pinned"`
	Main      bool      `json:"main"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type undoSlot struct {
	text      string
	position  int
	expiresAt time.Time
}

// Store is the saved-message DAO. A single undo slot covers the most recent
// delete; it is process-local and expires after a few seconds.
type Store struct {
	db *sql.DB

	mu   sync.Mutex
	undo *undoSlot
	now  func() time.Time
}

// NewStore wraps a database handle.
func NewStore(dbx *sql.DB) *Store {
	return &Store{db: dbx, now: time.Now}
}

// List returns all saved messages ordered by position.
func (s *Store) List(ctx context.Context) ([]SavedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, text, pinned, main, created_at, updated_at
		FROM saved_messages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list saved messages: %w", err)
	}
	defer rows.Close()
	var out []SavedMessage
	for rows.Next() {
		var m SavedMessage
		if err := rows.Scan(&m.ID, &m.Position, &m.Text, &m.Pinned, &m.Main, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan saved message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Get returns one saved message by id.
func (s *Store) Get(ctx context.Context, id int64) (SavedMessage, error) {
	var m SavedMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, position, text, pinned, main, created_at, updated_at
		FROM saved_messages WHERE id = $1`, id).
		Scan(&m.ID, &m.Position, &m.Text, &m.Pinned, &m.Main, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedMessage{}, ErrNotFound
	}
	if err != nil {
		return SavedMessage{}, fmt.Errorf("get saved message: %w", err)
	}
	return m, nil
}

// Add appends a new message at the end of the list.
func (s *Store) Add(ctx context.Context, text string) (SavedMessage, error) {
	var m SavedMessage
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO saved_messages (position, text)
		VALUES ((SELECT COALESCE(MAX(position)+1, 0) FROM saved_messages), $1)
		RETURNING id, position, text, pinned, main, created_at, updated_at`, text).
		Scan(&m.ID, &m.Position, &m.Text, &m.Pinned, &m.Main, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return SavedMessage{}, fmt.Errorf("add saved message: %w", err)
	}
	return m, nil
}

// UpdateText replaces a message's body. Empty text is allowed here; blank
// sends are refused by the sender instead.
func (s *Store) UpdateText(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saved_messages SET text = $2, updated_at = now() WHERE id = $1`, id, text)
	if err != nil {
		return fmt.Errorf("update saved message: %w", err)
	}
	return requireRow(res)
}

// Delete removes a message and arms the undo slot. Pinned and main messages
// are refused outright, so no snapshot is taken for them.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var text string
	var position int
	var pinned, main bool
	err = tx.QueryRowContext(ctx, `
		SELECT text, position, pinned, main FROM saved_messages WHERE id = $1`, id).
		Scan(&text, &position, &pinned, &main)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load saved message: %w", err)
	}
	if pinned || main {
		return ErrUndeletable
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM saved_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete saved message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE saved_messages SET position = position - 1 WHERE position > $1`, position); err != nil {
		return fmt.Errorf("renumber after delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.mu.Lock()
	s.undo = &undoSlot{text: text, position: position, expiresAt: s.now().Add(undoWindow)}
	s.mu.Unlock()
	return nil
}

// Undo restores the most recently deleted message if the slot is still
// armed. Returns the restored message and true, or false when the slot is
// empty or expired. A second Undo after a restore is a no-op.
func (s *Store) Undo(ctx context.Context) (SavedMessage, bool, error) {
	s.mu.Lock()
	slot := s.undo
	s.undo = nil
	s.mu.Unlock()

	if slot == nil || s.now().After(slot.expiresAt) {
		return SavedMessage{}, false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SavedMessage{}, false, fmt.Errorf("begin undo: %w", err)
	}
	defer tx.Rollback()

	// The list may have shrunk since the delete; clamp so the restore
	// lands at the end rather than leaving a gap.
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_messages`).Scan(&count); err != nil {
		return SavedMessage{}, false, fmt.Errorf("count saved messages: %w", err)
	}
	pos := clampIndex(slot.position, count)

	if _, err := tx.ExecContext(ctx, `
		UPDATE saved_messages SET position = position + 1 WHERE position >= $1`, pos); err != nil {
		return SavedMessage{}, false, fmt.Errorf("renumber for undo: %w", err)
	}
	var m SavedMessage
	err = tx.QueryRowContext(ctx, `
		INSERT INTO saved_messages (position, text)
		VALUES ($1, $2)
		RETURNING id, position, text, pinned, main, created_at, updated_at`, pos, slot.text).
		Scan(&m.ID, &m.Position, &m.Text, &m.Pinned, &m.Main, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return SavedMessage{}, false, fmt.Errorf("restore saved message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SavedMessage{}, false, fmt.Errorf("commit undo: %w", err)
	}
	return m, true, nil
}

// TogglePin flips the pinned flag and returns the new value.
func (s *Store) TogglePin(ctx context.Context, id int64) (bool, error) {
	var pinned bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE saved_messages SET pinned = NOT pinned, updated_at = now()
		WHERE id = $1 RETURNING pinned`, id).Scan(&pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("toggle pin: %w", err)
	}
	return pinned, nil
}

// SetMain marks one message as the main message, clearing any previous
// holder, or clears the flag when on is false. At most one message is main
// at a time; a partial unique index backs that up.
func (s *Store) SetMain(ctx context.Context, id int64, on bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set main: %w", err)
	}
	defer tx.Rollback()

	if on {
		if _, err := tx.ExecContext(ctx, `
			UPDATE saved_messages SET main = FALSE, updated_at = now() WHERE main`); err != nil {
			return fmt.Errorf("clear previous main: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE saved_messages SET main = $2, updated_at = now() WHERE id = $1`, id, on)
	if err != nil {
		return fmt.Errorf("set main: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteUnpinned bulk-deletes every message that is neither pinned nor main
// and returns how many were removed. Bulk deletes are not undoable.
func (s *Store) DeleteUnpinned(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM saved_messages WHERE NOT pinned AND NOT main`)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY position) - 1 AS new_pos
			FROM saved_messages
		)
		UPDATE saved_messages m SET position = r.new_pos
		FROM ranked r WHERE m.id = r.id AND m.position <> r.new_pos`); err != nil {
		return 0, fmt.Errorf("renumber after bulk delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk delete: %w", err)
	}

	s.mu.Lock()
	s.undo = nil
	s.mu.Unlock()
	return int(n), nil
}

// Move repositions a message. The target index is clamped to the list bounds.
func (s *Store) Move(ctx context.Context, id int64, toPosition int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move: %w", err)
	}
	defer tx.Rollback()

	var from, count int
	err = tx.QueryRowContext(ctx, `SELECT position FROM saved_messages WHERE id = $1`, id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_messages`).Scan(&count); err != nil {
		return fmt.Errorf("count saved messages: %w", err)
	}
	to := clampIndex(toPosition, count-1)
	if to == from {
		return nil
	}

	if to > from {
		_, err = tx.ExecContext(ctx, `
			UPDATE saved_messages SET position = position - 1
			WHERE position > $1 AND position <= $2`, from, to)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE saved_messages SET position = position + 1
			WHERE position >= $2 AND position < $1`, from, to)
	}
	if err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE saved_messages SET position = $2, updated_at = now() WHERE id = $1`, id, to); err != nil {
		return fmt.Errorf("move saved message: %w", err)
	}
	return tx.Commit()
}

// UndoArmed reports whether an undo is currently possible.
func (s *Store) UndoArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo != nil && !s.now().After(s.undo.expiresAt)
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
