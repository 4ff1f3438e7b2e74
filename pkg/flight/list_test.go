package flight

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durable-lists/internal/apperr"
	"durable-lists/internal/db"
)

func openTempStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	sqlDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "flights.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewSQLiteStore(sqlDB)
	require.NoError(t, store.EnsureTable(context.Background()))
	return store, sqlDB
}

func newFlight(code string) *Flight {
	return &Flight{Code: code, Origin: "MAD", Destination: "BOG"}
}

func flightCodes(flights []Flight) []string {
	out := make([]string, len(flights))
	for i, f := range flights {
		out[i] = f.Code
	}
	return out
}

func sequenceCodes(t *testing.T, l *List) []string {
	t.Helper()
	seq, err := l.Sequence(context.Background())
	require.NoError(t, err)
	return flightCodes(seq)
}

func requireValid(t *testing.T, l *List) *Report {
	t.Helper()
	rep, err := l.Verify(context.Background())
	require.NoError(t, err)
	require.True(t, rep.Valid, "integrity problems: %v", rep.Problems)
	return rep
}

func TestInsertFrontBackRemoveFront(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)

	_, err := l.InsertFront(ctx, newFlight("F1"))
	require.NoError(t, err)
	f2, err := l.InsertBack(ctx, newFlight("F2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2"}, sequenceCodes(t, l))

	got, err := l.RemoveFront(ctx)
	require.NoError(t, err)
	assert.Equal(t, "F1", got.Code)
	assert.False(t, got.Linked())

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		require.NoError(t, err)
		head, err := tx.Node(ctx, d.Head)
		require.NoError(t, err)
		assert.Equal(t, f2.NodeID, head.ID)
		assert.Empty(t, head.PrevID)
		assert.Empty(t, head.NextID)
		assert.Equal(t, d.Head, d.Tail)
		return nil
	})
	require.NoError(t, err)

	kept, err := l.Flight(ctx, got.ID)
	require.NoError(t, err)
	assert.Empty(t, kept.NodeID)
	requireValid(t, l)
}

func TestInsertAt(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)

	for _, c := range []string{"F1", "F2"} {
		_, err := l.InsertBack(ctx, newFlight(c))
		require.NoError(t, err)
	}
	_, err := l.InsertAt(ctx, newFlight("F3"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F3", "F2"}, sequenceCodes(t, l))

	_, err = l.InsertAt(ctx, newFlight("F4"), 5)
	require.ErrorIs(t, err, apperr.ErrOutOfRange)
	_, err = l.InsertAt(ctx, newFlight("F4"), -1)
	require.ErrorIs(t, err, apperr.ErrOutOfRange)

	all, err := l.Flights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2", "F3"}, flightCodes(all), "rejected insert must not leave a flight behind")

	_, err = l.InsertAt(ctx, newFlight("F0"), 0)
	require.NoError(t, err)
	_, err = l.InsertAt(ctx, newFlight("F9"), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"F0", "F1", "F3", "F2", "F9"}, sequenceCodes(t, l))
	requireValid(t, l)
}

func TestPeekAndEmpty(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)

	f, ok, err := l.PeekFront(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, f)
	_, ok, err = l.PeekBack(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.RemoveFront(ctx)
	assert.ErrorIs(t, err, apperr.ErrEmptyList)
	_, err = l.RemoveBack(ctx)
	assert.ErrorIs(t, err, apperr.ErrEmptyList)
	_, err = l.RemoveAt(ctx, 0)
	assert.ErrorIs(t, err, apperr.ErrOutOfRange)

	for _, c := range []string{"A", "B", "C"} {
		_, err := l.InsertBack(ctx, newFlight(c))
		require.NoError(t, err)
	}
	f, ok, err = l.PeekFront(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", f.Code)
	f, ok, err = l.PeekBack(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C", f.Code)
	assert.Equal(t, []string{"A", "B", "C"}, sequenceCodes(t, l))
}

func TestRemoveAt(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)
	for _, c := range []string{"A", "B", "C", "D", "E"} {
		_, err := l.InsertBack(ctx, newFlight(c))
		require.NoError(t, err)
	}

	_, err := l.RemoveAt(ctx, 5)
	require.ErrorIs(t, err, apperr.ErrOutOfRange)

	got, err := l.RemoveAt(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "D", got.Code)
	got, err = l.RemoveAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Code)
	got, err = l.RemoveAt(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "E", got.Code)
	assert.Equal(t, []string{"A", "C"}, sequenceCodes(t, l))
	requireValid(t, l)
}

func TestReinsertDetachedFlight(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)

	a, err := l.InsertBack(ctx, newFlight("A"))
	require.NoError(t, err)
	_, err = l.InsertBack(ctx, &Flight{ID: a.ID})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = l.InsertBack(ctx, newFlight("A"))
	require.ErrorIs(t, err, apperr.ErrConflict, "codes are unique")

	_, err = l.InsertBack(ctx, &Flight{ID: "missing"})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	removed, err := l.RemoveBack(ctx)
	require.NoError(t, err)
	back, err := l.InsertFront(ctx, &Flight{ID: removed.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, back.ID)
	assert.True(t, back.Linked())

	created, err := l.CreateFlight(ctx, Flight{Code: "B"})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, created.Status)
	assert.False(t, created.ScheduledAt.IsZero())
	_, err = l.InsertAt(ctx, &Flight{ID: created.ID}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, sequenceCodes(t, l))
	requireValid(t, l)
}

func TestAddEmergencyGoesFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)

	_, err := l.Add(ctx, newFlight("N1"), false)
	require.NoError(t, err)
	_, err = l.Add(ctx, newFlight("N2"), false)
	require.NoError(t, err)
	_, err = l.Add(ctx, &Flight{Code: "SOS", Status: StatusEmergency}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"SOS", "N1", "N2"}, sequenceCodes(t, l))
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)

	_, err := l.InsertBack(ctx, &Flight{Code: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = l.InsertBack(ctx, &Flight{Code: "X", Status: "cancelled"})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = l.InsertBack(ctx, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestReorderRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seed := []Flight{
		{Code: "IB300", Status: StatusDelayed, ScheduledAt: base.Add(3 * time.Hour)},
		{Code: "AV101", Status: StatusScheduled, ScheduledAt: base.Add(1 * time.Hour)},
		{Code: "LA900", Status: StatusEmergency, ScheduledAt: base.Add(5 * time.Hour)},
		{Code: "UX012", Status: StatusDelayed, ScheduledAt: base},
		{Code: "AF777", Status: StatusScheduled, ScheduledAt: base.Add(2 * time.Hour)},
	}
	want := map[string][]string{
		"delay":     {"AV101", "LA900", "AF777", "IB300", "UX012"},
		"time":      {"UX012", "AV101", "AF777", "IB300", "LA900"},
		"emergency": {"LA900", "IB300", "AV101", "UX012", "AF777"},
		"code":      {"AF777", "AV101", "IB300", "LA900", "UX012"},
	}

	for _, name := range CriterionNames() {
		t.Run(name, func(t *testing.T) {
			store, _ := openTempStore(t)
			l := NewList(store)
			ids := map[string]bool{}
			for _, f := range seed {
				got, err := l.InsertBack(ctx, &f)
				require.NoError(t, err)
				ids[got.ID] = true
			}

			out, err := l.ReorderBy(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, want[name], flightCodes(out))
			assert.True(t, slices.IsSortedFunc(out, Criteria[name]))

			seq, err := l.Sequence(ctx)
			require.NoError(t, err)
			assert.Equal(t, want[name], flightCodes(seq))
			require.Len(t, seq, len(ids))
			for _, f := range seq {
				assert.True(t, ids[f.ID], "flight %s changed identity", f.Code)
			}
			requireValid(t, l)
		})
	}
}

func TestReorderUnknownCriterion(t *testing.T) {
	store, _ := openTempStore(t)
	_, err := NewList(store).ReorderBy(context.Background(), "alphabet")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	assert.Contains(t, err.Error(), "code, delay, emergency, time")
}

func TestReorderKeepsDetachedFlightsDetached(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)
	for _, c := range []string{"B", "A", "C"} {
		_, err := l.InsertBack(ctx, newFlight(c))
		require.NoError(t, err)
	}
	gone, err := l.RemoveBack(ctx)
	require.NoError(t, err)

	out, err := l.ReorderBy(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, flightCodes(out))

	f, err := l.Flight(ctx, gone.ID)
	require.NoError(t, err)
	assert.False(t, f.Linked())
	requireValid(t, l)
}

// TestRandomOperations checks the list against a slice model after every
// mutation and verifies the chain each time.
func TestRandomOperations(t *testing.T) {
	ctx := context.Background()
	store, _ := openTempStore(t)
	l := NewList(store)
	rng := rand.New(rand.NewPCG(7, 42))

	var model []string
	for i := 0; i < 120; i++ {
		code := fmt.Sprintf("R%03d", i)
		switch op := rng.IntN(6); {
		case op == 0:
			_, err := l.InsertFront(ctx, newFlight(code))
			require.NoError(t, err)
			model = append([]string{code}, model...)
		case op == 1:
			_, err := l.InsertBack(ctx, newFlight(code))
			require.NoError(t, err)
			model = append(model, code)
		case op == 2:
			pos := rng.IntN(len(model) + 1)
			_, err := l.InsertAt(ctx, newFlight(code), pos)
			require.NoError(t, err)
			model = slices.Insert(model, pos, code)
		case len(model) == 0:
			_, err := l.RemoveFront(ctx)
			require.ErrorIs(t, err, apperr.ErrEmptyList)
		case op == 3:
			got, err := l.RemoveFront(ctx)
			require.NoError(t, err)
			require.Equal(t, model[0], got.Code)
			model = model[1:]
		case op == 4:
			got, err := l.RemoveBack(ctx)
			require.NoError(t, err)
			require.Equal(t, model[len(model)-1], got.Code)
			model = model[:len(model)-1]
		default:
			pos := rng.IntN(len(model))
			got, err := l.RemoveAt(ctx, pos)
			require.NoError(t, err)
			require.Equal(t, model[pos], got.Code)
			model = slices.Delete(model, pos, pos+1)
		}

		rep := requireValid(t, l)
		require.Equal(t, len(model), rep.Size)
		require.Equal(t, rep.Size, rep.Forward)
		require.Equal(t, rep.Size, rep.Backward)
		if len(model) == 0 {
			require.Empty(t, sequenceCodes(t, l))
		} else {
			require.Equal(t, model, sequenceCodes(t, l))
		}
	}
}

func TestSequenceStopsOnCycle(t *testing.T) {
	ctx := context.Background()
	store, sqlDB := openTempStore(t)
	l := NewList(store)
	for _, c := range []string{"A", "B", "C"} {
		_, err := l.InsertBack(ctx, newFlight(c))
		require.NoError(t, err)
	}

	_, err := sqlDB.ExecContext(ctx, `
		UPDATE flight_nodes SET next_id = (SELECT head_id FROM flight_list WHERE id = 1)
		WHERE id = (SELECT tail_id FROM flight_list WHERE id = 1)`)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, sequenceCodes(t, l))

	rep, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Valid)
	assert.NotEmpty(t, rep.Problems)
}

// faultyStore fails the named Tx step so tests can observe rollback.
type faultyStore struct {
	Store
	failOn string
}

func (s *faultyStore) InTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, failOn: s.failOn})
	})
}

type faultyTx struct {
	Tx
	failOn string
}

var errInjected = errors.New("injected failure")

func (t *faultyTx) SaveDescriptor(ctx context.Context, d *Descriptor) error {
	if t.failOn == "descriptor" {
		return errInjected
	}
	return t.Tx.SaveDescriptor(ctx, d)
}

func (t *faultyTx) DeleteNode(ctx context.Context, id string) error {
	if t.failOn == "delete" {
		return errInjected
	}
	return t.Tx.DeleteNode(ctx, id)
}

func (t *faultyTx) CreateNode(ctx context.Context, n *Node) error {
	if t.failOn == "create" {
		return errInjected
	}
	return t.Tx.CreateNode(ctx, n)
}

func TestMutationsRollBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		failOn string
		op     func(*List) error
	}{
		{"descriptor", func(l *List) error { _, err := l.InsertBack(ctx, newFlight("NEW")); return err }},
		{"create", func(l *List) error { _, err := l.InsertAt(ctx, newFlight("NEW"), 1); return err }},
		{"delete", func(l *List) error { _, err := l.RemoveAt(ctx, 1); return err }},
		{"delete", func(l *List) error { _, err := l.RemoveFront(ctx); return err }},
		{"create", func(l *List) error { _, err := l.ReorderBy(ctx, "code"); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.failOn, func(t *testing.T) {
			store, _ := openTempStore(t)
			healthy := NewList(store)
			for _, c := range []string{"C", "A", "B"} {
				_, err := healthy.InsertBack(ctx, newFlight(c))
				require.NoError(t, err)
			}

			err := tc.op(NewList(&faultyStore{Store: store, failOn: tc.failOn}))
			require.ErrorIs(t, err, errInjected)
			assert.Equal(t, "STORE_FAILURE", apperr.Code(err))

			assert.Equal(t, []string{"C", "A", "B"}, sequenceCodes(t, healthy))
			all, err := healthy.Flights(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 3)
			requireValid(t, healthy)
		})
	}
}
