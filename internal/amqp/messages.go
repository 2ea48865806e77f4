package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensecal/internal/core"
)

// EventType is the kind of change an ExpenseEvent describes.
type EventType string

const (
	ExpenseCreated EventType = "expense.created"
	ExpenseUpdated EventType = "expense.updated"
	ExpenseDeleted EventType = "expense.deleted"
)

func (t EventType) IsValid() bool {
	switch t {
	case ExpenseCreated, ExpenseUpdated, ExpenseDeleted:
		return true
	}
	return false
}

// ExpenseEvent carries the full record so consumers never read the store.
// For deletes Expense is the record as it was before removal.
type ExpenseEvent struct {
	Type      EventType    `json:"type"`
	ID        string       `json:"id"`
	Expense   core.Expense `json:"expense"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewExpenseEvent creates an event for e stamped with the current time.
func NewExpenseEvent(t EventType, e core.Expense) ExpenseEvent {
	return ExpenseEvent{
		Type:      t,
		ID:        e.ID,
		Expense:   e,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes and sanity checks an event body.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, err
	}
	if !ev.Type.IsValid() {
		return ExpenseEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.ID == "" {
		return ExpenseEvent{}, fmt.Errorf("event without id")
	}
	return ev, nil
}
