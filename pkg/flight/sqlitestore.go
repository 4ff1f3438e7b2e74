package flight

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

// SQLiteStore is a SQLite-backed flight store. Timestamps are stored as Unix
// milliseconds.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// NewSQLiteStore creates a SQLiteStore over an open handle.
func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlDB: sqlDB}
}

// EnsureTable creates the flight_nodes, flights and flight_list tables if they don't exist.
func (s *SQLiteStore) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flight_nodes (
			id      TEXT PRIMARY KEY,
			prev_id TEXT,
			next_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS flights (
			id           TEXT PRIMARY KEY,
			code         TEXT NOT NULL UNIQUE,
			status       TEXT NOT NULL DEFAULT 'scheduled',
			scheduled_at INTEGER NOT NULL,
			origin       TEXT NOT NULL DEFAULT '',
			destination  TEXT NOT NULL DEFAULT '',
			node_id      TEXT UNIQUE REFERENCES flight_nodes(id),
			created_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flight_list (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			head_id TEXT,
			tail_id TEXT,
			size    INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateFlight inserts a detached flight.
func (s *SQLiteStore) CreateFlight(ctx context.Context, f *Flight) (*Flight, error) {
	return createSQLite(ctx, s.sqlDB, f)
}

// GetFlight retrieves a single flight by ID.
func (s *SQLiteStore) GetFlight(ctx context.Context, id string) (*Flight, error) {
	return scanSQLiteFlight(s.sqlDB.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`, id), "flight "+id)
}

// ListFlights returns every stored flight, oldest first.
func (s *SQLiteStore) ListFlights(ctx context.Context) ([]Flight, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+flightColumns+` FROM flights ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	flights := []Flight{}
	for rows.Next() {
		f, err := scanSQLiteFlight(rows, "")
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

func (t *sqliteTx) Descriptor(ctx context.Context) (*Descriptor, error) {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO flight_list (id, size) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("create descriptor: %w", err)
	}
	var (
		d          Descriptor
		head, tail sql.NullString
	)
	err = t.tx.QueryRowContext(ctx, `SELECT head_id, tail_id, size FROM flight_list WHERE id = 1`).
		Scan(&head, &tail, &d.Size)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	d.Head, d.Tail = head.String, tail.String
	return &d, nil
}

func (t *sqliteTx) SaveDescriptor(ctx context.Context, d *Descriptor) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE flight_list SET head_id = ?, tail_id = ?, size = ? WHERE id = 1`,
		nullString(d.Head), nullString(d.Tail), d.Size)
	if err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

func (t *sqliteTx) CreateNode(ctx context.Context, n *Node) error {
	n.ID = uuid.Must(uuid.NewV7()).String()
	_, err := t.tx.ExecContext(ctx, `INSERT INTO flight_nodes (id, prev_id, next_id) VALUES (?, ?, ?)`,
		n.ID, nullString(n.PrevID), nullString(n.NextID))
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

func (t *sqliteTx) Node(ctx context.Context, id string) (*Node, error) {
	var (
		n          Node
		prev, next sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, prev_id, next_id FROM flight_nodes WHERE id = ?`, id).
		Scan(&n.ID, &prev, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("node %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	n.PrevID, n.NextID = prev.String, next.String
	return &n, nil
}

func (t *sqliteTx) SaveNode(ctx context.Context, n *Node) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE flight_nodes SET prev_id = ?, next_id = ? WHERE id = ?`,
		nullString(n.PrevID), nullString(n.NextID), n.ID)
	if err != nil {
		return fmt.Errorf("save node %s: %w", n.ID, err)
	}
	return requireRow(res, "node "+n.ID)
}

func (t *sqliteTx) DeleteNode(ctx context.Context, id string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM flight_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return nil
}

func (t *sqliteTx) DeleteAllNodes(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM flight_nodes`)
	if err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	return nil
}

func (t *sqliteTx) CreateFlight(ctx context.Context, f *Flight) (*Flight, error) {
	return createSQLite(ctx, t.tx, f)
}

func (t *sqliteTx) Flight(ctx context.Context, id string) (*Flight, error) {
	return scanSQLiteFlight(t.tx.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`, id), "flight "+id)
}

func (t *sqliteTx) FlightByNode(ctx context.Context, nodeID string) (*Flight, error) {
	return scanSQLiteFlight(t.tx.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE node_id = ?`, nodeID),
		"flight at node "+nodeID)
}

func (t *sqliteTx) SetFlightNode(ctx context.Context, flightID, nodeID string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE flights SET node_id = ? WHERE id = ?`, nullString(nodeID), flightID)
	if err != nil {
		return fmt.Errorf("set node of flight %s: %w", flightID, db.Classify(err))
	}
	return requireRow(res, "flight "+flightID)
}

func (t *sqliteTx) DetachAll(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE flights SET node_id = NULL WHERE node_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("detach flights: %w", err)
	}
	return nil
}

func (t *sqliteTx) LinkedFlights(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights WHERE node_id IS NOT NULL`).Scan(&n)
	return n, err
}

func (t *sqliteTx) CountNodes(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM flight_nodes`).Scan(&n)
	return n, err
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createSQLite(ctx context.Context, q sqlExecer, f *Flight) (*Flight, error) {
	f.ID = uuid.Must(uuid.NewV7()).String()
	f.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	f.ScheduledAt = f.ScheduledAt.UTC().Truncate(time.Millisecond)
	f.NodeID = ""
	_, err := q.ExecContext(ctx, `
		INSERT INTO flights (id, code, status, scheduled_at, origin, destination, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Code, f.Status, f.ScheduledAt.UnixMilli(), f.Origin, f.Destination, f.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create flight %s: %w", f.Code, db.Classify(err))
	}
	return f, nil
}

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteFlight(row sqlRow, what string) (*Flight, error) {
	var (
		f                  Flight
		node               sql.NullString
		scheduled, created int64
	)
	err := row.Scan(&f.ID, &f.Code, &f.Status, &scheduled, &f.Origin, &f.Destination, &node, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("%s", what)
	}
	if err != nil {
		return nil, fmt.Errorf("scan flight: %w", err)
	}
	f.ScheduledAt = time.UnixMilli(scheduled).UTC()
	f.CreatedAt = time.UnixMilli(created).UTC()
	f.NodeID = node.String
	return &f, nil
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("%s", what)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
