package review

// ActionType tags a selection edit.
type ActionType string

// Selection actions. SelectAll, DeselectAll, and Invert operate on the
// currently visible (search-filtered) links only; Toggle works on any link
// in the preview, visible or not.
const (
	ActionToggle      ActionType = "TOGGLE"
	ActionSelectAll   ActionType = "SELECT_ALL"
	ActionDeselectAll ActionType = "DESELECT_ALL"
	ActionInvert      ActionType = "INVERT"
)

// Action is one selection edit fed to Reduce.
type Action struct {
	Type ActionType
	// URL identifies the link for Toggle.
	URL string
	// Visible lists the URLs the user can currently see, in preview order.
	// It scopes SelectAll, DeselectAll, and Invert.
	Visible []string
}

// Selection is an immutable set of selected link URLs. Edits go through
// Reduce, which returns a fresh value and never mutates the receiver.
type Selection struct {
	members map[string]struct{}
}

// NewSelection builds a Selection containing the given URLs.
func NewSelection(urls ...string) Selection {
	members := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		members[u] = struct{}{}
	}
	return Selection{members: members}
}

// Has reports membership of url.
func (s Selection) Has(url string) bool {
	_, ok := s.members[url]
	return ok
}

// Len returns the number of selected URLs.
func (s Selection) Len() int {
	return len(s.members)
}

// Ordered returns the selected subset of order, preserving order's sequence.
func (s Selection) Ordered(order []string) []string {
	out := make([]string, 0, len(s.members))
	for _, u := range order {
		if s.Has(u) {
			out = append(out, u)
		}
	}
	return out
}

func (s Selection) clone() map[string]struct{} {
	members := make(map[string]struct{}, len(s.members))
	for u := range s.members {
		members[u] = struct{}{}
	}
	return members
}

// Reduce applies one Action and returns the resulting Selection.
//
//   - Toggle flips membership of the URL.
//   - SelectAll replaces the selection with exactly the visible set.
//   - DeselectAll empties the selection.
//   - Invert flips membership for every visible URL and leaves links outside
//     the visible set untouched; applied twice against an unchanged visible
//     set it restores the original selection.
func Reduce(s Selection, act Action) Selection {
	switch act.Type {
	case ActionToggle:
		members := s.clone()
		if _, ok := members[act.URL]; ok {
			delete(members, act.URL)
		} else {
			members[act.URL] = struct{}{}
		}
		return Selection{members: members}
	case ActionSelectAll:
		return NewSelection(act.Visible...)
	case ActionDeselectAll:
		return NewSelection()
	case ActionInvert:
		members := s.clone()
		for _, u := range act.Visible {
			if _, ok := members[u]; ok {
				delete(members, u)
			} else {
				members[u] = struct{}{}
			}
		}
		return Selection{members: members}
	default:
		return s
	}
}
