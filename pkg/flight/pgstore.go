package flight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"durable-lists/internal/apperr"
	"durable-lists/internal/db"
)

var _ Store = (*PgStore)(nil)

// PgStore is a PostgreSQL-backed flight store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the flight_nodes, flights and flight_list tables if they don't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS flight_nodes (
			id      TEXT PRIMARY KEY,
			prev_id TEXT,
			next_id TEXT
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS flights (
			id           TEXT PRIMARY KEY,
			code         TEXT NOT NULL UNIQUE,
			status       TEXT NOT NULL DEFAULT 'scheduled',
			scheduled_at TIMESTAMPTZ NOT NULL,
			origin       TEXT NOT NULL DEFAULT '',
			destination  TEXT NOT NULL DEFAULT '',
			node_id      TEXT UNIQUE REFERENCES flight_nodes(id),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS flight_list (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			head_id TEXT,
			tail_id TEXT,
			size    INTEGER NOT NULL DEFAULT 0
		)`)
	return err
}

// CreateFlight inserts a detached flight.
func (s *PgStore) CreateFlight(ctx context.Context, f *Flight) (*Flight, error) {
	return createPg(ctx, s.pool, f)
}

// GetFlight retrieves a single flight by ID.
func (s *PgStore) GetFlight(ctx context.Context, id string) (*Flight, error) {
	return scanFlight(s.pool.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = $1`, id), "flight "+id)
}

// ListFlights returns every stored flight, oldest first.
func (s *PgStore) ListFlights(ctx context.Context) ([]Flight, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+flightColumns+` FROM flights ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	flights := []Flight{}
	for rows.Next() {
		f, err := scanFlight(rows, "")
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return flights, nil
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

const flightColumns = `id, code, status, scheduled_at, origin, destination, node_id, created_at`

type pgTx struct {
	tx pgx.Tx
}

// Descriptor creates the singleton row on first use, then locks it so
// concurrent list mutations serialize on it.
func (t *pgTx) Descriptor(ctx context.Context) (*Descriptor, error) {
	_, err := t.tx.Exec(ctx, `INSERT INTO flight_list (id, size) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("create descriptor: %w", err)
	}
	var (
		d          Descriptor
		head, tail *string
	)
	err = t.tx.QueryRow(ctx, `SELECT head_id, tail_id, size FROM flight_list WHERE id = 1 FOR UPDATE`).
		Scan(&head, &tail, &d.Size)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	d.Head, d.Tail = deref(head), deref(tail)
	return &d, nil
}

func (t *pgTx) SaveDescriptor(ctx context.Context, d *Descriptor) error {
	_, err := t.tx.Exec(ctx, `UPDATE flight_list SET head_id = $1, tail_id = $2, size = $3 WHERE id = 1`,
		nilIfEmpty(d.Head), nilIfEmpty(d.Tail), d.Size)
	if err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

func (t *pgTx) CreateNode(ctx context.Context, n *Node) error {
	n.ID = uuid.Must(uuid.NewV7()).String()
	_, err := t.tx.Exec(ctx, `INSERT INTO flight_nodes (id, prev_id, next_id) VALUES ($1, $2, $3)`,
		n.ID, nilIfEmpty(n.PrevID), nilIfEmpty(n.NextID))
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

func (t *pgTx) Node(ctx context.Context, id string) (*Node, error) {
	var (
		n          Node
		prev, next *string
	)
	err := t.tx.QueryRow(ctx, `SELECT id, prev_id, next_id FROM flight_nodes WHERE id = $1`, id).
		Scan(&n.ID, &prev, &next)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("node %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	n.PrevID, n.NextID = deref(prev), deref(next)
	return &n, nil
}

func (t *pgTx) SaveNode(ctx context.Context, n *Node) error {
	tag, err := t.tx.Exec(ctx, `UPDATE flight_nodes SET prev_id = $1, next_id = $2 WHERE id = $3`,
		nilIfEmpty(n.PrevID), nilIfEmpty(n.NextID), n.ID)
	if err != nil {
		return fmt.Errorf("save node %s: %w", n.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("node %s", n.ID)
	}
	return nil
}

func (t *pgTx) DeleteNode(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM flight_nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

func (t *pgTx) DeleteAllNodes(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM flight_nodes`)
	if err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	return nil
}

func (t *pgTx) CreateFlight(ctx context.Context, f *Flight) (*Flight, error) {
	return createPg(ctx, t.tx, f)
}

func (t *pgTx) Flight(ctx context.Context, id string) (*Flight, error) {
	return scanFlight(t.tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = $1`, id), "flight "+id)
}

func (t *pgTx) FlightByNode(ctx context.Context, nodeID string) (*Flight, error) {
	return scanFlight(t.tx.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE node_id = $1`, nodeID),
		"flight at node "+nodeID)
}

func (t *pgTx) SetFlightNode(ctx context.Context, flightID, nodeID string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE flights SET node_id = $1 WHERE id = $2`, nilIfEmpty(nodeID), flightID)
	if err != nil {
		return fmt.Errorf("set node of flight %s: %w", flightID, db.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("flight %s", flightID)
	}
	return nil
}

func (t *pgTx) DetachAll(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `UPDATE flights SET node_id = NULL WHERE node_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("detach flights: %w", err)
	}
	return nil
}

func (t *pgTx) LinkedFlights(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM flights WHERE node_id IS NOT NULL`).Scan(&n)
	return n, err
}

func (t *pgTx) CountNodes(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM flight_nodes`).Scan(&n)
	return n, err
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func createPg(ctx context.Context, q pgExecer, f *Flight) (*Flight, error) {
	f.ID = uuid.Must(uuid.NewV7()).String()
	f.CreatedAt = time.Now().Truncate(time.Microsecond)
	f.ScheduledAt = f.ScheduledAt.Truncate(time.Microsecond)
	f.NodeID = ""
	_, err := q.Exec(ctx, `
		INSERT INTO flights (id, code, status, scheduled_at, origin, destination, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.Code, f.Status, f.ScheduledAt, f.Origin, f.Destination, f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create flight %s: %w", f.Code, db.Classify(err))
	}
	return f, nil
}

func scanFlight(row pgx.Row, what string) (*Flight, error) {
	var (
		f    Flight
		node *string
	)
	err := row.Scan(&f.ID, &f.Code, &f.Status, &f.ScheduledAt, &f.Origin, &f.Destination, &node, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("%s", what)
	}
	if err != nil {
		return nil, fmt.Errorf("scan flight: %w", err)
	}
	f.NodeID = deref(node)
	return &f, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
