package ot

import "fmt"

// OpKind tags the two text operation variants.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// Op is a text operation, applied left-to-right against a string.
// Content is used by inserts, Length by deletes. Replica identifies
// the author and breaks ties between concurrent inserts at the same
// position.
type Op struct {
	Kind    OpKind `json:"kind"`
	Pos     int    `json:"pos"`
	Content string `json:"content,omitempty"`
	Length  int    `json:"length,omitempty"`
	Replica string `json:"replica,omitempty"`
}

// IsNoop reports whether applying the operation cannot change any text.
func (op Op) IsNoop() bool {
	switch op.Kind {
	case OpInsert:
		return len(op.Content) == 0
	case OpDelete:
		return op.Length <= 0
	}
	return true
}

// Apply splices the operation into text. Positions are byte offsets.
// Out-of-range positions are an invalid local operation and return an
// error with the text unchanged.
func Apply(text string, op Op) (string, error) {
	switch op.Kind {
	case OpInsert:
		if op.Pos < 0 || op.Pos > len(text) {
			return text, fmt.Errorf("insert position %d out of bounds (len %d)", op.Pos, len(text))
		}
		return text[:op.Pos] + op.Content + text[op.Pos:], nil
	case OpDelete:
		if op.Length < 0 || op.Pos < 0 || op.Pos+op.Length > len(text) {
			return text, fmt.Errorf("delete range [%d,%d) out of bounds (len %d)", op.Pos, op.Pos+op.Length, len(text))
		}
		return text[:op.Pos] + text[op.Pos+op.Length:], nil
	}
	return text, fmt.Errorf("unknown op kind: %s", op.Kind)
}
