package quest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durable-lists/internal/apperr"
	"durable-lists/internal/db"
)

func openTempStore(t *testing.T) *SQLiteStore {
	t.Helper()
	sqlDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "quests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewSQLiteStore(sqlDB)
	require.NoError(t, store.EnsureTable(context.Background()))
	return store
}

func seed(t *testing.T, q *Queue, character string, quests map[string]int, order ...string) (*Character, map[string]*Quest) {
	t.Helper()
	ctx := context.Background()
	c, err := q.CreateCharacter(ctx, character)
	require.NoError(t, err)
	out := make(map[string]*Quest, len(order))
	for _, name := range order {
		qu, err := q.CreateQuest(ctx, name, "", quests[name])
		require.NoError(t, err)
		out[name] = qu
	}
	return c, out
}

func ranks(t *testing.T, store Store, characterID string) []int {
	t.Helper()
	var out []int
	err := store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		as, err := tx.Assignments(ctx, characterID)
		for _, a := range as {
			out = append(out, a.Rank)
		}
		return err
	})
	require.NoError(t, err)
	return out
}

func names(quests []Quest) []string {
	out := make([]string, len(quests))
	for i, q := range quests {
		out[i] = q.Name
	}
	return out
}

func TestEnqueueDequeueScenario(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)
	q := NewQueue(store)
	x, quests := seed(t, q, "X", map[string]int{"A": 100, "B": 50}, "A", "B")

	_, err := q.Enqueue(ctx, x.ID, quests["A"].ID)
	require.NoError(t, err)
	res, err := q.Enqueue(ctx, x.ID, quests["B"].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rank)
	assert.Equal(t, "Quest 'B' assigned to character 'X'", res.Message)

	list, err := q.List(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(list))

	done, err := q.DequeueFront(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", done.Quest)
	assert.Equal(t, 100, done.ExperienceGained)
	assert.Equal(t, 100, done.ExperienceTotal)

	list, err = q.List(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(list))
	assert.Equal(t, []int{0}, ranks(t, store, x.ID))

	a, err := q.Quest(ctx, quests["A"].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)

	c, err := q.Character(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Experience)
}

func TestFIFOOrderAndGapFreeRanks(t *testing.T) {
	ctx := context.Background()
	store := openTempStore(t)
	q := NewQueue(store)
	order := []string{"q1", "q2", "q3", "q4", "q5"}
	xp := map[string]int{"q1": 1, "q2": 2, "q3": 3, "q4": 4, "q5": 5}
	c, quests := seed(t, q, "hero", xp, order...)

	for i, name := range order {
		res, err := q.Enqueue(ctx, c.ID, quests[name].ID)
		require.NoError(t, err)
		assert.Equal(t, i, res.Rank)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ranks(t, store, c.ID))

	total := 0
	for i, name := range order {
		done, err := q.DequeueFront(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, name, done.Quest)
		total += xp[name]
		assert.Equal(t, total, done.ExperienceTotal)

		want := make([]int, 0, len(order)-i-1)
		for r := 0; r < len(order)-i-1; r++ {
			want = append(want, r)
		}
		got := ranks(t, store, c.ID)
		if len(want) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, want, got)
		}
	}
}

func TestQueuesArePerCharacter(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTempStore(t))
	a, quests := seed(t, q, "a", map[string]int{"shared": 10}, "shared")
	b, err := q.CreateCharacter(ctx, "b")
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, a.ID, quests["shared"].ID)
	require.NoError(t, err)
	res, err := q.Enqueue(ctx, b.ID, quests["shared"].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rank)

	_, err = q.DequeueFront(ctx, a.ID)
	require.NoError(t, err)
	list, err := q.List(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, names(list))
}

func TestEnqueueErrors(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTempStore(t))
	c, quests := seed(t, q, "hero", map[string]int{"A": 5}, "A")

	_, err := q.Enqueue(ctx, "missing", quests["A"].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = q.Enqueue(ctx, c.ID, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = q.Enqueue(ctx, c.ID, quests["A"].ID)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, c.ID, quests["A"].ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, []int{0}, ranks(t, q.store, c.ID))
}

func TestDequeueErrors(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTempStore(t))

	_, err := q.DequeueFront(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	c, err := q.CreateCharacter(ctx, "idle")
	require.NoError(t, err)
	_, err = q.DequeueFront(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, err.Error(), "no pending quests")

	_, err = q.List(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	list, err := q.List(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTempStore(t))

	_, err := q.CreateCharacter(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = q.CreateCharacter(ctx, "abcdefghijklmnopqrstuvwxyzabcde")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = q.CreateQuest(ctx, "ok", "", -1)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	qu, err := q.CreateQuest(ctx, "  Slay the dragon ", "big one", 0)
	require.NoError(t, err)
	assert.Equal(t, "Slay the dragon", qu.Name)
	assert.Equal(t, StatusPending, qu.Status)
}

func TestSearchQuests(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTempStore(t))
	for _, name := range []string{"Slay the dragon", "Gather herbs", "Dragon egg hunt"} {
		_, err := q.CreateQuest(ctx, name, "", 1)
		require.NoError(t, err)
	}

	got, err := q.SearchQuests(ctx, "drgn", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Slay the dragon", "Dragon egg hunt"}, names(got))

	got, err = q.SearchQuests(ctx, "herb", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Gather herbs"}, names(got))

	got, err = q.SearchQuests(ctx, "zzz", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuestsFilterByStatus(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(openTempStore(t))
	c, quests := seed(t, q, "hero", map[string]int{"A": 1, "B": 2}, "A", "B")
	_, err := q.Enqueue(ctx, c.ID, quests["A"].ID)
	require.NoError(t, err)
	_, err = q.DequeueFront(ctx, c.ID)
	require.NoError(t, err)

	done, err := q.Quests(ctx, StatusCompleted, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(done))
	all, err := q.Quests(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(all))
	one, err := q.Quests(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

// faultyStore fails the named Tx step after every earlier step has run.
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

func (t *faultyTx) DeleteAssignment(ctx context.Context, characterID, questID string) error {
	if t.failOn == "delete" {
		return errInjected
	}
	return t.Tx.DeleteAssignment(ctx, characterID, questID)
}

func (t *faultyTx) ShiftRanks(ctx context.Context, characterID string, rank int) error {
	if t.failOn == "shift" {
		return errInjected
	}
	return t.Tx.ShiftRanks(ctx, characterID, rank)
}

func TestDequeueRollsBackOnStoreFailure(t *testing.T) {
	for _, step := range []string{"delete", "shift"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			store := openTempStore(t)
			healthy := NewQueue(store)
			c, quests := seed(t, healthy, "hero", map[string]int{"A": 40, "B": 2}, "A", "B")
			for _, name := range []string{"A", "B"} {
				_, err := healthy.Enqueue(ctx, c.ID, quests[name].ID)
				require.NoError(t, err)
			}

			broken := NewQueue(&faultyStore{Store: store, failOn: step})
			_, err := broken.DequeueFront(ctx, c.ID)
			require.ErrorIs(t, err, errInjected)
			var se *apperr.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "STORE_FAILURE", apperr.Code(err))

			got, err := healthy.Character(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, got.Experience)
			a, err := healthy.Quest(ctx, quests["A"].ID)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, a.Status)
			assert.Equal(t, []int{0, 1}, ranks(t, store, c.ID))
		})
	}
}
