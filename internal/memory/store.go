package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// maxRecentMessages caps what RecentMessages returns regardless of the
	// caller-supplied limit.
	maxRecentMessages = 50
	// allMessagesCap bounds AllMessages to the most recent entries.
	allMessagesCap = 100
	// moodRetention is the per-user mood ring size; older entries are
	// trimmed on every insert.
	moodRetention = 50

	timeLayout = time.RFC3339Nano
)

// StorageError wraps a persistence I/O failure. Write failures always carry
// it; best-effort read paths may degrade at the call site instead.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store is the durable per-user memory: conversation messages, extracted
// facts, and mood observations. A single SQLite connection serializes
// conflicting writes at the storage layer.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One shared connection avoids writer lock contention under
	// concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id)`,
		`CREATE TABLE IF NOT EXISTS facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			fact TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(user_id, fact)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id, id)`,
		`CREATE TABLE IF NOT EXISTS moods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			mood TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moods_user ON moods(user_id, id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// AppendMessage durably records one conversation message. The new message is
// visible to MessageCount and read paths as soon as this returns.
func (s *Store) AppendMessage(userID, role, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (user_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, role, content, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return storageErr("append message", err)
	}
	return nil
}

// RecordFact inserts a fact for the user. Duplicate fact text for the same
// user is a no-op, not an error.
func (s *Store) RecordFact(userID, fact string) error {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO facts (user_id, fact, created_at)
		VALUES (?, ?, ?)
	`, userID, fact, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return storageErr("record fact", err)
	}
	return nil
}

// RecordMood inserts a mood observation and trims the user's mood history to
// the most recent entries in one transaction.
func (s *Store) RecordMood(userID, mood string) error {
	mood = strings.TrimSpace(mood)
	if mood == "" {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("record mood", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO moods (user_id, mood, created_at)
		VALUES (?, ?, ?)
	`, userID, mood, time.Now().UTC().Format(timeLayout)); err != nil {
		return storageErr("record mood", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM moods
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM moods WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)
	`, userID, userID, moodRetention); err != nil {
		return storageErr("trim moods", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("record mood", err)
	}
	return nil
}

// RecentMessages returns up to limit of the user's newest messages in
// chronological (oldest-first) order. The limit is clamped to a hard maximum
// to bound prompt size regardless of caller input.
func (s *Store) RecentMessages(userID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > maxRecentMessages {
		limit = maxRecentMessages
	}
	msgs, err := s.queryMessagesDesc(userID, limit)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

// AllMessages returns the user's history in chronological order, capped to
// the most recent entries to bound consumer-side memory.
func (s *Store) AllMessages(userID string) ([]Message, error) {
	msgs, err := s.queryMessagesDesc(userID, allMessagesCap)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (s *Store) queryMessagesDesc(userID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role, content, created_at
		FROM messages
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, storageErr("query messages", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &created); err != nil {
			return nil, storageErr("scan message", err)
		}
		m.CreatedAt = parseTime(created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate messages", err)
	}
	return msgs, nil
}

// Facts returns all of the user's facts, most recent first.
func (s *Store) Facts(userID string) ([]Fact, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, fact, created_at
		FROM facts
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, storageErr("query facts", err)
	}
	defer rows.Close()

	facts := make([]Fact, 0)
	for rows.Next() {
		var f Fact
		var created string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Fact, &created); err != nil {
			return nil, storageErr("scan fact", err)
		}
		f.CreatedAt = parseTime(created)
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate facts", err)
	}
	return facts, nil
}

// RecentMood returns the user's latest recorded mood, or "" when none exists.
func (s *Store) RecentMood(userID string) (string, error) {
	var mood string
	err := s.db.QueryRow(`
		SELECT mood FROM moods
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, userID).Scan(&mood)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("query mood", err)
	}
	return mood, nil
}

// MoodCount reports how many mood entries are retained for the user.
func (s *Store) MoodCount(userID string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM moods WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, storageErr("count moods", err)
	}
	return count, nil
}

// MessageCount reports the user's total stored message count.
func (s *Store) MessageCount(userID string) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, storageErr("count messages", err)
	}
	return count, nil
}

// ClearUser irreversibly deletes the user's messages, facts, and moods.
func (s *Store) ClearUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("clear user", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "facts", "moods"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE user_id = ?`, userID); err != nil {
			return storageErr("clear "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("clear user", err)
	}
	return nil
}

// UserIDs returns the distinct set of users ever observed.
func (s *Store) UserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM messages ORDER BY user_id`)
	if err != nil {
		return nil, storageErr("query user ids", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate user ids", err)
	}
	return ids, nil
}

// LastMessageTime returns the timestamp of the user's newest message, used
// to rebuild session state after a restart. The zero time means no history.
func (s *Store) LastMessageTime(userID string) (time.Time, error) {
	var created string
	err := s.db.QueryRow(`
		SELECT created_at FROM messages
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, userID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, storageErr("query last message time", err)
	}
	return parseTime(created), nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func reverseMessages(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
