// Package quest implements a durable FIFO queue of quests per character.
//
// Queue order lives in the rank column of the assignment table. Every
// mutation runs in a single store transaction, so experience, quest status,
// and the rank compaction that follows a dequeue are applied together or not
// at all.
package quest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"durable-lists/internal/apperr"
)

var tracer = otel.Tracer("durable-lists/pkg/quest")

// Queue is the quest queue engine.
type Queue struct {
	store Store
}

// NewQueue creates a Queue over store.
func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// CreateCharacter registers a character with zero experience.
func (q *Queue) CreateCharacter(ctx context.Context, name string) (*Character, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxCharacterName {
		return nil, apperr.Invalid("character name must be 1-%d characters", MaxCharacterName)
	}
	c, err := q.store.CreateCharacter(ctx, &Character{Name: name})
	if err != nil {
		return nil, apperr.Store("create character", err)
	}
	return c, nil
}

// CreateQuest registers a pending quest.
func (q *Queue) CreateQuest(ctx context.Context, name, description string, experience int) (*Quest, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxQuestName {
		return nil, apperr.Invalid("quest name must be 1-%d characters", MaxQuestName)
	}
	if experience < 0 {
		return nil, apperr.Invalid("experience must be >= 0")
	}
	qu, err := q.store.CreateQuest(ctx, &Quest{
		Name:        name,
		Description: description,
		Experience:  experience,
		Status:      StatusPending,
	})
	if err != nil {
		return nil, apperr.Store("create quest", err)
	}
	return qu, nil
}

// Character returns a character by ID.
func (q *Queue) Character(ctx context.Context, id string) (*Character, error) {
	c, err := q.store.GetCharacter(ctx, id)
	return c, apperr.Store("get character", err)
}

// Quest returns a quest by ID.
func (q *Queue) Quest(ctx context.Context, id string) (*Quest, error) {
	qu, err := q.store.GetQuest(ctx, id)
	return qu, apperr.Store("get quest", err)
}

// Quests lists quests filtered by status (empty = all).
func (q *Queue) Quests(ctx context.Context, status string, limit int) ([]Quest, error) {
	quests, err := q.store.ListQuests(ctx, status, limit)
	return quests, apperr.Store("list quests", err)
}

// Counts returns how many characters and quests are stored.
func (q *Queue) Counts(ctx context.Context) (characters, quests int, err error) {
	characters, quests, err = q.store.Count(ctx)
	return characters, quests, apperr.Store("count", err)
}

type questNames []Quest

func (n questNames) String(i int) string { return n[i].Name }
func (n questNames) Len() int            { return len(n) }

// SearchQuests fuzzy-matches quest names against pattern, best match first.
func (q *Queue) SearchQuests(ctx context.Context, pattern string, limit int) ([]Quest, error) {
	all, err := q.store.ListQuests(ctx, "", 0)
	if err != nil {
		return nil, apperr.Store("search quests", err)
	}
	matches := fuzzy.FindFrom(pattern, questNames(all))
	out := make([]Quest, 0, len(matches))
	for _, m := range matches {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, all[m.Index])
	}
	return out, nil
}

// List returns the character's queued quests, front first.
func (q *Queue) List(ctx context.Context, characterID string) ([]Quest, error) {
	var quests []Quest
	err := q.run(ctx, "list", characterID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Character(ctx, characterID); err != nil {
			return err
		}
		queue, err := tx.Assignments(ctx, characterID)
		if err != nil {
			return err
		}
		quests = make([]Quest, 0, len(queue))
		for _, a := range queue {
			qu, err := tx.Quest(ctx, a.QuestID)
			if err != nil {
				return err
			}
			quests = append(quests, *qu)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quests, nil
}

// Enqueue places questID at the back of the character's queue.
func (q *Queue) Enqueue(ctx context.Context, characterID, questID string) (*Enqueued, error) {
	var out *Enqueued
	err := q.run(ctx, "enqueue", characterID, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockCharacter(ctx, characterID)
		if err != nil {
			return err
		}
		qu, err := tx.Quest(ctx, questID)
		if err != nil {
			return err
		}
		dup, err := tx.HasAssignment(ctx, characterID, questID)
		if err != nil {
			return err
		}
		if dup {
			return apperr.Conflict("quest %s is already assigned to character %s", questID, characterID)
		}
		n, err := tx.CountAssignments(ctx, characterID)
		if err != nil {
			return err
		}
		a := Assignment{CharacterID: characterID, QuestID: questID, Rank: n}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return err
		}
		out = &Enqueued{
			Assignment: a,
			Message:    fmt.Sprintf("Quest '%s' assigned to character '%s'", qu.Name, c.Name),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DequeueFront completes the oldest quest in the character's queue: the
// reward is added to the character, the quest is marked completed, and the
// remaining ranks are compacted.
func (q *Queue) DequeueFront(ctx context.Context, characterID string) (*Completion, error) {
	var out *Completion
	err := q.run(ctx, "dequeue", characterID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockCharacter(ctx, characterID); err != nil {
			return err
		}
		front, err := tx.Front(ctx, characterID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("character %s has no pending quests", characterID)
		}
		if err != nil {
			return err
		}
		qu, err := tx.Quest(ctx, front.QuestID)
		if err != nil {
			return err
		}
		total, err := tx.AddExperience(ctx, characterID, qu.Experience)
		if err != nil {
			return err
		}
		if err := tx.SetQuestStatus(ctx, qu.ID, StatusCompleted); err != nil {
			return err
		}
		if err := tx.DeleteAssignment(ctx, characterID, qu.ID); err != nil {
			return err
		}
		if err := tx.ShiftRanks(ctx, characterID, front.Rank); err != nil {
			return err
		}
		out = &Completion{
			Message:          fmt.Sprintf("Quest '%s' completed", qu.Name),
			Quest:            qu.Name,
			QuestID:          qu.ID,
			ExperienceGained: qu.Experience,
			ExperienceTotal:  total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("quest completed",
		slog.String("character_id", characterID),
		slog.String("quest_id", out.QuestID),
		slog.Int("gained", out.ExperienceGained),
		slog.Int("total", out.ExperienceTotal))
	return out, nil
}

func (q *Queue) run(ctx context.Context, op, characterID string, fn func(context.Context, Tx) error) error {
	ctx, span := tracer.Start(ctx, "quest."+op)
	defer span.End()
	span.SetAttributes(attribute.String("character.id", characterID))

	err := apperr.Store(op, q.store.InTx(ctx, fn))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
