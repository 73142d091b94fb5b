package merkletree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the label has no leaf at the requested epoch.
	ErrNotFound = errors.New("[merkletree] Label not found")
	// ErrLabelExists indicates an absence proof was requested for a
	// label that is present.
	ErrLabelExists = errors.New("[merkletree] Label exists")
	// ErrEmptyValue indicates an update without a value.
	ErrEmptyValue = errors.New("[merkletree] Empty value")
	// ErrUnknownEpoch indicates an epoch that has not been finalized.
	ErrUnknownEpoch = errors.New("[merkletree] Unknown epoch")
	// ErrInvalidRange indicates a history range other than from < to <= latest.
	ErrInvalidRange = errors.New("[merkletree] Invalid epoch range")
	// ErrInvalidProof indicates a well-formed proof that does not
	// reproduce the expected root.
	ErrInvalidProof = errors.New("[merkletree] Proof does not verify")
)

// A StructuralError reports a tree or proof whose shape violates the
// trie invariants: a child that does not extend its parent, a label
// of the wrong length, or a malformed record.
type StructuralError struct {
	Op     string
	Label  NodeLabel
	Epoch  uint64
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("[merkletree] %s: structural error at label %v epoch %d: %s",
		e.Op, e.Label, e.Epoch, e.Reason)
}

// IsStructural reports whether err is or wraps a StructuralError.
func IsStructural(err error) bool {
	var s *StructuralError
	return errors.As(err, &s)
}
