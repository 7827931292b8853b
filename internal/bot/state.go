package bot

import (
	"sync"

	"task-planner/internal/model"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageTags
	stageDueDate
	stageReminder
	stageRepetition
)

type conversationState struct {
	stage conversationStage
	draft model.Draft
}

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// chatState holds at most one pending value per Telegram user.
type chatState[T any] struct {
	mu     sync.Mutex
	values map[int64]T
}

func newChatState[T any]() *chatState[T] {
	return &chatState[T]{values: make(map[int64]T)}
}

func (c *chatState[T]) get(userID int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[userID]
	return v, ok
}

func (c *chatState[T]) set(userID int64, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[userID] = v
}

func (c *chatState[T]) clear(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, userID)
}
