package core

import (
	"fmt"
	"sort"
)

// Category separates independent kinds of room membership. A connection
// holds at most one room per category.
type Category int

const (
	// CategoryPrimary is the collaborative workspace the connection views.
	CategoryPrimary Category = iota
	// CategoryEditorContext is a finer-grained sub-room, e.g. one element.
	CategoryEditorContext

	categoryCount
)

func (c Category) String() string {
	switch c {
	case CategoryPrimary:
		return "primary"
	case CategoryEditorContext:
		return "editorContext"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ParseCategory maps a category name to its value. Empty means primary.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "", "primary":
		return CategoryPrimary, nil
	case "editorContext", "editor-context", "editor_context":
		return CategoryEditorContext, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

func (c Category) valid() bool {
	return c >= 0 && c < categoryCount
}

// JoinRoom places the connection in label for the given category, silently
// leaving whatever room it held in that category. It returns the room that
// was left and false when nothing changed: unknown connection, empty label,
// or the connection already being in label.
func (r *Registry) JoinRoom(id, label string, cat Category) (prev string, joined bool) {
	if label == "" || !cat.valid() {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok {
		return "", false
	}
	prev = st.rooms[cat]
	if prev == label {
		return prev, false
	}
	if prev != "" {
		removeFromIndex(r.rooms[cat], prev, id)
	}
	st.rooms[cat] = label
	addToIndex(r.rooms[cat], label, id)
	return prev, true
}

// LeaveRoom drops the connection's room in the given category.
func (r *Registry) LeaveRoom(id string, cat Category) (string, bool) {
	if !cat.valid() {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok || st.rooms[cat] == "" {
		return "", false
	}
	label := st.rooms[cat]
	removeFromIndex(r.rooms[cat], label, id)
	st.rooms[cat] = ""
	return label, true
}

// MembersOf returns the sorted ids of connections in label for the category.
func (r *Registry) MembersOf(label string, cat Category) []string {
	if !cat.valid() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.rooms[cat][label])
}

// RoomOf returns the connection's room in the category, or "".
func (r *Registry) RoomOf(id string, cat Category) string {
	if !cat.valid() {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.conns[id]
	if !ok {
		return ""
	}
	return st.rooms[cat]
}

// Rooms returns the labels currently in use for the category.
func (r *Registry) Rooms(cat Category) []string {
	if !cat.valid() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, 0, len(r.rooms[cat]))
	for label := range r.rooms[cat] {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
