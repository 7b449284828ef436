// Package editlock enforces the single-editable-row rule: across a whole
// UI session, at most one row (a list name, the new-list-name field, an
// item description, or a new-item-description field) may be in edit mode
// at any instant.
package editlock

import "errors"

// ErrNotEditing is returned when commit is requested with no edit active.
var ErrNotEditing = errors.New("no edit in progress")

// Kind identifies which sort of row is being edited.
type Kind int

const (
	// ListName is an existing list's name row.
	ListName Kind = iota + 1
	// NewListName is the new-list input field.
	NewListName
	// ItemDescription is an existing item's description row.
	ItemDescription
	// NewItemDescription is a list's new-item input field.
	NewItemDescription
)

// Target is one editable row. ID carries the list id for ListName and
// NewItemDescription, the item id for ItemDescription, and is zero for
// NewListName.
type Target struct {
	Kind Kind
	ID   int64
}

// Coordinator is the edit state machine for one UI session: Idle, or
// Editing exactly one Target.
type Coordinator struct {
	active *Target
}

// Active reports the target currently in edit mode, if any.
func (c *Coordinator) Active() (Target, bool) {
	if c.active == nil {
		return Target{}, false
	}
	return *c.active, true
}

// Begin puts t into edit mode. If another target was already active it is
// cancelled first and returned, so the caller can discard its pending
// value; the machine never moves directly between two editing states.
func (c *Coordinator) Begin(t Target) (Target, bool) {
	prev, hadPrev := c.Cancel()
	c.active = &t
	return prev, hadPrev
}

// Commit ends the active edit and returns its target so the caller can
// persist the pending value. Committing while idle is an error.
func (c *Coordinator) Commit() (Target, error) {
	if c.active == nil {
		return Target{}, ErrNotEditing
	}
	t := *c.active
	c.active = nil
	return t, nil
}

// Cancel ends the active edit, if any, without persisting anything.
func (c *Coordinator) Cancel() (Target, bool) {
	if c.active == nil {
		return Target{}, false
	}
	t := *c.active
	c.active = nil
	return t, true
}
