package quest

import (
	"context"
	"time"
)

// Quest statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Name limits enforced on creation.
const (
	MaxCharacterName = 30
	MaxQuestName     = 50
)

// Character accumulates experience by completing queued quests.
type Character struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Experience int       `json:"experience"`
	CreatedAt  time.Time `json:"created_at"`
}

// Quest is a unit of work with an experience reward.
type Quest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Experience  int       `json:"experience"` // reward granted on completion
	Status      string    `json:"status"`     // pending, completed
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment places a quest in a character's queue. Rank is the zero-based
// FIFO position; ranks of one character are always 0..n-1.
type Assignment struct {
	CharacterID string `json:"character_id"`
	QuestID     string `json:"quest_id"`
	Rank        int    `json:"rank"`
}

// Enqueued is the result of placing a quest at the back of a queue.
type Enqueued struct {
	Assignment
	Message string `json:"message"`
}

// Completion summarises a dequeued quest.
type Completion struct {
	Message          string `json:"message"`
	Quest            string `json:"quest"`
	QuestID          string `json:"quest_id"`
	ExperienceGained int    `json:"experience_gained"`
	ExperienceTotal  int    `json:"experience_total"`
}

// Store is the contract for quest persistence.
type Store interface {
	CreateCharacter(ctx context.Context, c *Character) (*Character, error)
	GetCharacter(ctx context.Context, id string) (*Character, error)
	CreateQuest(ctx context.Context, q *Quest) (*Quest, error)
	GetQuest(ctx context.Context, id string) (*Quest, error)
	ListQuests(ctx context.Context, status string, limit int) ([]Quest, error)
	Count(ctx context.Context) (characters, quests int, err error)

	// InTx runs fn in one transaction: commit when fn returns nil, roll back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	EnsureTable(ctx context.Context) error
}

// Tx is the record access available inside one transaction.
type Tx interface {
	// LockCharacter reads a character and holds it for the rest of the
	// transaction so concurrent queue mutations of that character serialize.
	LockCharacter(ctx context.Context, id string) (*Character, error)
	Character(ctx context.Context, id string) (*Character, error)
	Quest(ctx context.Context, id string) (*Quest, error)

	// Assignments returns the character's queue ordered by rank.
	Assignments(ctx context.Context, characterID string) ([]Assignment, error)
	CountAssignments(ctx context.Context, characterID string) (int, error)
	HasAssignment(ctx context.Context, characterID, questID string) (bool, error)
	// Front returns the assignment with the lowest rank.
	Front(ctx context.Context, characterID string) (*Assignment, error)
	InsertAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, characterID, questID string) error
	// ShiftRanks decrements the rank of every assignment above rank.
	ShiftRanks(ctx context.Context, characterID string, rank int) error

	AddExperience(ctx context.Context, characterID string, amount int) (int, error)
	SetQuestStatus(ctx context.Context, questID, status string) error
}
