package sync

import (
	"encoding/json"
	"fmt"
)

// MutationOp tags the local operations the coordinator accepts.
type MutationOp string

const (
	OpSet       MutationOp = "set"
	OpAdd       MutationOp = "add"
	OpRemove    MutationOp = "remove"
	OpIncrement MutationOp = "increment"
	OpDecrement MutationOp = "decrement"
	OpInsert    MutationOp = "insert"
	OpDelete    MutationOp = "delete"
)

// Mutation is a tagged local operation. Which fields are meaningful
// depends on Op: Value for set, Element for add/remove, Amount for
// increment/decrement, Pos/Content/Length for text edits.
type Mutation struct {
	Op      MutationOp      `json:"op"`
	Value   json.RawMessage `json:"value,omitempty"`
	Element string          `json:"element,omitempty"`
	Amount  int64           `json:"amount,omitempty"`
	Pos     int             `json:"pos,omitempty"`
	Content string          `json:"content,omitempty"`
	Length  int             `json:"length,omitempty"`
}

// SetMutation builds a register write.
func SetMutation(value any) (Mutation, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Mutation{}, fmt.Errorf("failed to serialize value: %w", err)
	}
	return Mutation{Op: OpSet, Value: raw}, nil
}

// AddMutation builds a set insertion.
func AddMutation(element string) Mutation {
	return Mutation{Op: OpAdd, Element: element}
}

// RemoveMutation builds a two-phase set removal.
func RemoveMutation(element string) Mutation {
	return Mutation{Op: OpRemove, Element: element}
}

// IncrementMutation builds a counter increment.
func IncrementMutation(amount int64) Mutation {
	return Mutation{Op: OpIncrement, Amount: amount}
}

// DecrementMutation builds a PN counter decrement.
func DecrementMutation(amount int64) Mutation {
	return Mutation{Op: OpDecrement, Amount: amount}
}

// InsertMutation builds a text insertion.
func InsertMutation(pos int, content string) Mutation {
	return Mutation{Op: OpInsert, Pos: pos, Content: content}
}

// DeleteMutation builds a text deletion.
func DeleteMutation(pos, length int) Mutation {
	return Mutation{Op: OpDelete, Pos: pos, Length: length}
}
