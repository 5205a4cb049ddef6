package review

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReduceToggle(t *testing.T) {
	t.Parallel()

	sel := NewSelection("a")
	sel = Reduce(sel, Action{Type: ActionToggle, URL: "b"})
	require.True(t, sel.Has("a"))
	require.True(t, sel.Has("b"))

	sel = Reduce(sel, Action{Type: ActionToggle, URL: "a"})
	require.False(t, sel.Has("a"))
	require.Equal(t, 1, sel.Len())
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	before := NewSelection("a")
	_ = Reduce(before, Action{Type: ActionToggle, URL: "a"})
	require.True(t, before.Has("a"))
}

func TestReduceSelectAllReplacesWithVisible(t *testing.T) {
	t.Parallel()

	sel := NewSelection("hidden")
	sel = Reduce(sel, Action{Type: ActionSelectAll, Visible: []string{"a", "b"}})
	require.Equal(t, 2, sel.Len())
	require.True(t, sel.Has("a"))
	require.True(t, sel.Has("b"))
	require.False(t, sel.Has("hidden"))
}

func TestReduceDeselectAll(t *testing.T) {
	t.Parallel()

	sel := NewSelection("a", "b")
	sel = Reduce(sel, Action{Type: ActionDeselectAll})
	require.Zero(t, sel.Len())
}

func TestReduceInvertScopedToVisible(t *testing.T) {
	t.Parallel()

	sel := NewSelection("a", "hidden")
	visible := []string{"a", "b"}

	sel = Reduce(sel, Action{Type: ActionInvert, Visible: visible})
	require.False(t, sel.Has("a"))
	require.True(t, sel.Has("b"))
	require.True(t, sel.Has("hidden"))
}

func TestReduceInvertTwiceIsIdentity(t *testing.T) {
	t.Parallel()

	original := NewSelection("a", "c", "hidden")
	visible := []string{"a", "b", "c", "d"}

	sel := Reduce(original, Action{Type: ActionInvert, Visible: visible})
	sel = Reduce(sel, Action{Type: ActionInvert, Visible: visible})

	for _, u := range append(visible, "hidden") {
		require.Equal(t, original.Has(u), sel.Has(u), "url %s", u)
	}
	require.Equal(t, original.Len(), sel.Len())
}

func TestOrderedFollowsGivenOrder(t *testing.T) {
	t.Parallel()

	sel := NewSelection("c", "a")
	require.Equal(t, []string{"a", "c"}, sel.Ordered([]string{"a", "b", "c"}))
}
