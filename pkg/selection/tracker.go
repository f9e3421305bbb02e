// Package selection tracks which rows of a paged table are selected.
//
// The selection is always a subset of the rows currently on display. When the
// row set changes (new page, refresh, filter change) the selection is pruned to
// the rows that are still present; it is never grown implicitly.
package selection

import "sync"

// Tracker holds the selection state of one table. Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	visible  []string
	present  map[string]struct{}
	selected map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		present:  make(map[string]struct{}),
		selected: make(map[string]struct{}),
	}
}

// Reconcile replaces the visible row set and drops selected ids that are no
// longer visible. It returns the number of pruned ids.
func (t *Tracker) Reconcile(rowIDs []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.visible = append(t.visible[:0:0], rowIDs...)
	t.present = make(map[string]struct{}, len(rowIDs))
	for _, id := range rowIDs {
		t.present[id] = struct{}{}
	}

	pruned := 0
	for id := range t.selected {
		if _, ok := t.present[id]; !ok {
			delete(t.selected, id)
			pruned++
		}
	}
	return pruned
}

// Toggle flips the selection of a visible row. Unknown ids are ignored.
// It reports whether the row is selected afterwards.
func (t *Tracker) Toggle(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.present[id]; !ok {
		return false
	}
	if _, ok := t.selected[id]; ok {
		delete(t.selected, id)
		return false
	}
	t.selected[id] = struct{}{}
	return true
}

// ToggleAll selects every visible row, or clears the selection when every
// visible row is already selected.
func (t *Tracker) ToggleAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allSelectedLocked() {
		t.selected = make(map[string]struct{})
		return
	}
	for _, id := range t.visible {
		t.selected[id] = struct{}{}
	}
}

// Clear drops the whole selection.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected = make(map[string]struct{})
}

// IsSelected reports whether id is selected.
func (t *Tracker) IsSelected(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.selected[id]
	return ok
}

// Selected returns the selected ids in display order.
func (t *Tracker) Selected() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.selected))
	for _, id := range t.visible {
		if _, ok := t.selected[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of selected rows.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.selected)
}

// AllSelected reports whether there are visible rows and all of them are selected.
func (t *Tracker) AllSelected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allSelectedLocked()
}

func (t *Tracker) allSelectedLocked() bool {
	if len(t.visible) == 0 {
		return false
	}
	for _, id := range t.visible {
		if _, ok := t.selected[id]; !ok {
			return false
		}
	}
	return true
}
