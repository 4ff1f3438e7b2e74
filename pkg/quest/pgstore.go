package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"durable-lists/internal/apperr"
	"durable-lists/internal/db"
)

var _ Store = (*PgStore)(nil)

// PgStore is a PostgreSQL-backed quest store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the characters, quests and quest_assignments tables if they don't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS characters (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			experience INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS quests (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			experience  INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS quest_assignments (
			character_id TEXT NOT NULL REFERENCES characters(id),
			quest_id     TEXT NOT NULL REFERENCES quests(id),
			rank         INTEGER NOT NULL,
			PRIMARY KEY (character_id, quest_id)
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_quest_assignments_rank ON quest_assignments(character_id, rank)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_quests_status ON quests(status)`)
	return err
}

// CreateCharacter inserts a new character.
func (s *PgStore) CreateCharacter(ctx context.Context, c *Character) (*Character, error) {
	c.ID = uuid.Must(uuid.NewV7()).String()
	c.CreatedAt = time.Now().Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO characters (id, name, experience, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Experience, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create character: %w", db.Classify(err))
	}
	return c, nil
}

// GetCharacter retrieves a single character by ID.
func (s *PgStore) GetCharacter(ctx context.Context, id string) (*Character, error) {
	return scanCharacter(s.pool.QueryRow(ctx, `
		SELECT id, name, experience, created_at FROM characters WHERE id = $1`, id), id)
}

// CreateQuest inserts a new quest.
func (s *PgStore) CreateQuest(ctx context.Context, q *Quest) (*Quest, error) {
	q.ID = uuid.Must(uuid.NewV7()).String()
	q.CreatedAt = time.Now().Truncate(time.Microsecond)
	if q.Status == "" {
		q.Status = StatusPending
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quests (id, name, description, experience, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.Name, q.Description, q.Experience, q.Status, q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create quest: %w", db.Classify(err))
	}
	return q, nil
}

// GetQuest retrieves a single quest by ID.
func (s *PgStore) GetQuest(ctx context.Context, id string) (*Quest, error) {
	return scanQuest(s.pool.QueryRow(ctx, `
		SELECT id, name, description, experience, status, created_at FROM quests WHERE id = $1`, id), id)
}

// ListQuests returns quests filtered by status (empty = all), oldest first. limit <= 0 means no limit.
func (s *PgStore) ListQuests(ctx context.Context, status string, limit int) ([]Quest, error) {
	query := `SELECT id, name, description, experience, status, created_at FROM quests
		WHERE ($1 = '' OR status = $1) ORDER BY created_at ASC, id ASC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()
	return scanQuestRows(rows)
}

// Count returns the number of characters and quests.
func (s *PgStore) Count(ctx context.Context) (int, int, error) {
	var characters, quests int
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM characters), (SELECT COUNT(*) FROM quests)`).Scan(&characters, &quests)
	return characters, quests, err
}

// InTx runs fn inside a read-committed transaction.
func (s *PgStore) InTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockCharacter(ctx context.Context, id string) (*Character, error) {
	return scanCharacter(t.tx.QueryRow(ctx, `
		SELECT id, name, experience, created_at FROM characters WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *pgTx) Character(ctx context.Context, id string) (*Character, error) {
	return scanCharacter(t.tx.QueryRow(ctx, `
		SELECT id, name, experience, created_at FROM characters WHERE id = $1`, id), id)
}

func (t *pgTx) Quest(ctx context.Context, id string) (*Quest, error) {
	return scanQuest(t.tx.QueryRow(ctx, `
		SELECT id, name, description, experience, status, created_at FROM quests WHERE id = $1`, id), id)
}

func (t *pgTx) Assignments(ctx context.Context, characterID string) ([]Assignment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT character_id, quest_id, rank FROM quest_assignments
		WHERE character_id = $1 ORDER BY rank ASC`, characterID)
	if err != nil {
		return nil, fmt.Errorf("assignments of %s: %w", characterID, err)
	}
	defer rows.Close()
	return scanAssignmentRows(rows)
}

func (t *pgTx) CountAssignments(ctx context.Context, characterID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM quest_assignments WHERE character_id = $1`, characterID).Scan(&n)
	return n, err
}

func (t *pgTx) HasAssignment(ctx context.Context, characterID, questID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM quest_assignments WHERE character_id = $1 AND quest_id = $2)`,
		characterID, questID).Scan(&ok)
	return ok, err
}

func (t *pgTx) Front(ctx context.Context, characterID string) (*Assignment, error) {
	var a Assignment
	err := t.tx.QueryRow(ctx, `
		SELECT character_id, quest_id, rank FROM quest_assignments
		WHERE character_id = $1 ORDER BY rank ASC LIMIT 1`, characterID).
		Scan(&a.CharacterID, &a.QuestID, &a.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("queue of %s", characterID)
	}
	if err != nil {
		return nil, fmt.Errorf("front of %s: %w", characterID, err)
	}
	return &a, nil
}

func (t *pgTx) InsertAssignment(ctx context.Context, a Assignment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO quest_assignments (character_id, quest_id, rank) VALUES ($1, $2, $3)`,
		a.CharacterID, a.QuestID, a.Rank)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", db.Classify(err))
	}
	return nil
}

func (t *pgTx) DeleteAssignment(ctx context.Context, characterID, questID string) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM quest_assignments WHERE character_id = $1 AND quest_id = $2`, characterID, questID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

func (t *pgTx) ShiftRanks(ctx context.Context, characterID string, rank int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE quest_assignments SET rank = rank - 1 WHERE character_id = $1 AND rank > $2`, characterID, rank)
	if err != nil {
		return fmt.Errorf("shift ranks of %s: %w", characterID, err)
	}
	return nil
}

func (t *pgTx) AddExperience(ctx context.Context, characterID string, amount int) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx, `
		UPDATE characters SET experience = experience + $1 WHERE id = $2 RETURNING experience`,
		amount, characterID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("character %s", characterID)
	}
	if err != nil {
		return 0, fmt.Errorf("add experience to %s: %w", characterID, err)
	}
	return total, nil
}

func (t *pgTx) SetQuestStatus(ctx context.Context, questID, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quests SET status = $1 WHERE id = $2`, status, questID)
	if err != nil {
		return fmt.Errorf("set status of quest %s: %w", questID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("quest %s", questID)
	}
	return nil
}

func scanCharacter(row pgx.Row, id string) (*Character, error) {
	var c Character
	err := row.Scan(&c.ID, &c.Name, &c.Experience, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("character %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get character %s: %w", id, err)
	}
	return &c, nil
}

func scanQuest(row pgx.Row, id string) (*Quest, error) {
	var q Quest
	err := row.Scan(&q.ID, &q.Name, &q.Description, &q.Experience, &q.Status, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("quest %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get quest %s: %w", id, err)
	}
	return &q, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanQuestRows(rows rowScanner) ([]Quest, error) {
	quests := []Quest{}
	for rows.Next() {
		var q Quest
		if err := rows.Scan(&q.ID, &q.Name, &q.Description, &q.Experience, &q.Status, &q.CreatedAt); err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return quests, nil
}

func scanAssignmentRows(rows rowScanner) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.CharacterID, &a.QuestID, &a.Rank); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}
