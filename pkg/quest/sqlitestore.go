package quest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"durable-lists/internal/apperr"
	"durable-lists/internal/db"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a SQLite-backed quest store. Timestamps are stored as Unix
// milliseconds.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// NewSQLiteStore creates a SQLiteStore over an open handle.
func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlDB: sqlDB}
}

// EnsureTable creates the characters, quests and quest_assignments tables if they don't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS characters (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			experience INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quests (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			experience  INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quest_assignments (
			character_id TEXT NOT NULL REFERENCES characters(id),
			quest_id     TEXT NOT NULL REFERENCES quests(id),
			rank         INTEGER NOT NULL,
			PRIMARY KEY (character_id, quest_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quest_assignments_rank ON quest_assignments(character_id, rank)`,
		`CREATE INDEX IF NOT EXISTS idx_quests_status ON quests(status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateCharacter inserts a new character.
func (s *SQLiteStore) CreateCharacter(ctx context.Context, c *Character) (*Character, error) {
	c.ID = uuid.Must(uuid.NewV7()).String()
	c.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO characters (id, name, experience, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Experience, toMillis(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create character: %w", db.Classify(err))
	}
	return c, nil
}

// GetCharacter retrieves a single character by ID.
func (s *SQLiteStore) GetCharacter(ctx context.Context, id string) (*Character, error) {
	return scanSQLiteCharacter(s.sqlDB.QueryRowContext(ctx, `
		SELECT id, name, experience, created_at FROM characters WHERE id = ?`, id), id)
}

// CreateQuest inserts a new quest.
func (s *SQLiteStore) CreateQuest(ctx context.Context, q *Quest) (*Quest, error) {
	q.ID = uuid.Must(uuid.NewV7()).String()
	q.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if q.Status == "" {
		q.Status = StatusPending
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO quests (id, name, description, experience, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.Name, q.Description, q.Experience, q.Status, toMillis(q.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create quest: %w", db.Classify(err))
	}
	return q, nil
}

// GetQuest retrieves a single quest by ID.
func (s *SQLiteStore) GetQuest(ctx context.Context, id string) (*Quest, error) {
	return scanSQLiteQuest(s.sqlDB.QueryRowContext(ctx, `
		SELECT id, name, description, experience, status, created_at FROM quests WHERE id = ?`, id), id)
}

// ListQuests returns quests filtered by status (empty = all), oldest first. limit <= 0 means no limit.
func (s *SQLiteStore) ListQuests(ctx context.Context, status string, limit int) ([]Quest, error) {
	query := `SELECT id, name, description, experience, status, created_at FROM quests
		WHERE (? = '' OR status = ?) ORDER BY created_at ASC, id ASC`
	args := []any{status, status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	quests := []Quest{}
	for rows.Next() {
		var (
			q       Quest
			created int64
		)
		if err := rows.Scan(&q.ID, &q.Name, &q.Description, &q.Experience, &q.Status, &created); err != nil {
			return nil, err
		}
		q.CreatedAt = fromMillis(created)
		quests = append(quests, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return quests, nil
}

// Count returns the number of characters and quests.
func (s *SQLiteStore) Count(ctx context.Context) (int, int, error) {
	var characters, quests int
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM characters), (SELECT COUNT(*) FROM quests)`).Scan(&characters, &quests)
	return characters, quests, err
}

// InTx runs fn inside one write transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockCharacter is a plain read: the immediate transaction already holds
// the database write lock.
func (t *sqliteTx) LockCharacter(ctx context.Context, id string) (*Character, error) {
	return t.Character(ctx, id)
}

func (t *sqliteTx) Character(ctx context.Context, id string) (*Character, error) {
	return scanSQLiteCharacter(t.tx.QueryRowContext(ctx, `
		SELECT id, name, experience, created_at FROM characters WHERE id = ?`, id), id)
}

func (t *sqliteTx) Quest(ctx context.Context, id string) (*Quest, error) {
	return scanSQLiteQuest(t.tx.QueryRowContext(ctx, `
		SELECT id, name, description, experience, status, created_at FROM quests WHERE id = ?`, id), id)
}

func (t *sqliteTx) Assignments(ctx context.Context, characterID string) ([]Assignment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT character_id, quest_id, rank FROM quest_assignments
		WHERE character_id = ? ORDER BY rank ASC`, characterID)
	if err != nil {
		return nil, fmt.Errorf("assignments of %s: %w", characterID, err)
	}
	defer rows.Close()
	return scanAssignmentRows(rows)
}

func (t *sqliteTx) CountAssignments(ctx context.Context, characterID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM quest_assignments WHERE character_id = ?`, characterID).Scan(&n)
	return n, err
}

func (t *sqliteTx) HasAssignment(ctx context.Context, characterID, questID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM quest_assignments WHERE character_id = ? AND quest_id = ?)`,
		characterID, questID).Scan(&ok)
	return ok, err
}

func (t *sqliteTx) Front(ctx context.Context, characterID string) (*Assignment, error) {
	var a Assignment
	err := t.tx.QueryRowContext(ctx, `
		SELECT character_id, quest_id, rank FROM quest_assignments
		WHERE character_id = ? ORDER BY rank ASC LIMIT 1`, characterID).
		Scan(&a.CharacterID, &a.QuestID, &a.Rank)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("queue of %s", characterID)
	}
	if err != nil {
		return nil, fmt.Errorf("front of %s: %w", characterID, err)
	}
	return &a, nil
}

func (t *sqliteTx) InsertAssignment(ctx context.Context, a Assignment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO quest_assignments (character_id, quest_id, rank) VALUES (?, ?, ?)`,
		a.CharacterID, a.QuestID, a.Rank)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", db.Classify(err))
	}
	return nil
}

func (t *sqliteTx) DeleteAssignment(ctx context.Context, characterID, questID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM quest_assignments WHERE character_id = ? AND quest_id = ?`, characterID, questID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

func (t *sqliteTx) ShiftRanks(ctx context.Context, characterID string, rank int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE quest_assignments SET rank = rank - 1 WHERE character_id = ? AND rank > ?`, characterID, rank)
	if err != nil {
		return fmt.Errorf("shift ranks of %s: %w", characterID, err)
	}
	return nil
}

func (t *sqliteTx) AddExperience(ctx context.Context, characterID string, amount int) (int, error) {
	var total int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE characters SET experience = experience + ? WHERE id = ? RETURNING experience`,
		amount, characterID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("character %s", characterID)
	}
	if err != nil {
		return 0, fmt.Errorf("add experience to %s: %w", characterID, err)
	}
	return total, nil
}

func (t *sqliteTx) SetQuestStatus(ctx context.Context, questID, status string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE quests SET status = ? WHERE id = ?`, status, questID)
	if err != nil {
		return fmt.Errorf("set status of quest %s: %w", questID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status of quest %s: %w", questID, err)
	}
	if n == 0 {
		return apperr.NotFound("quest %s", questID)
	}
	return nil
}

func scanSQLiteCharacter(row *sql.Row, id string) (*Character, error) {
	var (
		c       Character
		created int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.Experience, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("character %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get character %s: %w", id, err)
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

func scanSQLiteQuest(row *sql.Row, id string) (*Quest, error) {
	var (
		q       Quest
		created int64
	)
	err := row.Scan(&q.ID, &q.Name, &q.Description, &q.Experience, &q.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("quest %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get quest %s: %w", id, err)
	}
	q.CreatedAt = fromMillis(created)
	return &q, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
