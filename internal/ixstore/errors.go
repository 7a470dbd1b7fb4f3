package ixstore

import (
	"errors"
	"fmt"
)

// Lifecycle errors. Scenario mutation is only legal between creation and
// commit; solving is only legal after commit.
var (
	ErrAlreadyCommitted = errors.New("scenario is committed and sealed")
	ErrNotCommitted     = errors.New("scenario has not been committed")
	ErrAlreadySolved    = errors.New("scenario already has solve results attached")
	ErrNotFound         = errors.New("scenario not found")
)

// RefError reports a referential-integrity violation: a parameter or
// category row referencing a label that was never declared in the set (or
// category mapping) backing that dimension.
type RefError struct {
	Item  string // parameter or set name being written
	Dim   string // dimension name within the schema
	Label string // offending label
	Ref   string // set or category table the label was checked against
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s: label %q not declared in %s (dimension %s)", e.Item, e.Label, e.Ref, e.Dim)
}

// DuplicateError reports a second parameter row for a key that already
// holds a value. Parameter tables are write-once per key so that every
// (scenario, key) pair carries exactly one value.
type DuplicateError struct {
	Par string
	Key Key
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: duplicate row for key %v", e.Par, []string(e.Key))
}

// SchemaError reports an attempt to write an item the store has no schema
// for, or a key whose arity does not match the schema.
type SchemaError struct {
	Item string
	Msg  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Item, e.Msg)
}
