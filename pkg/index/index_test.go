package index

import (
	"testing"
)

func TestRoutePicksLeftmostSatisfyingSeparator(t *testing.T) {
	keys := [][]byte{[]byte("b"), []byte("d"), []byte("f")}

	cases := []struct {
		key  string
		want int
	}{
		{"a", 0},
		{"b", 0},
		{"c", 1},
		{"d", 1},
		{"e", 2},
		{"f", 2},
		{"g", 3},
	}
	for _, c := range cases {
		if got := Route(keys, []byte(c.key)); got != c.want {
			t.Fatalf("Route(%q) = %d, want %d", c.key, got, c.want)
		}
	}
}

func TestDescendToReachesCorrectLeaf(t *testing.T) {
	a := NewArena()

	leafA := a.NewLeaf(100, []byte("a"), []byte("b"))
	leafB := a.NewLeaf(200, []byte("c"), []byte("d"))
	leafC := a.NewLeaf(300, []byte("e"), []byte("f"))

	root := a.NewInner(
		[][]byte{[]byte("b"), []byte("d")},
		[]NodeID{leafA, leafB, leafC},
	)
	a.SetRoot(root)

	for _, c := range []struct {
		key  string
		want NodeID
	}{
		{"a", leafA},
		{"b", leafA},
		{"c", leafB},
		{"d", leafB},
		{"e", leafC},
		{"f", leafC},
	} {
		if got := a.DescendTo([]byte(c.key)); got != c.want {
			t.Fatalf("DescendTo(%q) = %v, want %v", c.key, got, c.want)
		}
	}
}

func TestNewInnerSetsParentBackLinks(t *testing.T) {
	a := NewArena()
	leaf := a.NewLeaf(1, []byte("a"), []byte("a"))
	inner := a.NewInner([][]byte{}, []NodeID{leaf})

	if got := a.Get(leaf).Parent; got != inner {
		t.Fatalf("leaf parent = %v, want %v", got, inner)
	}
}

func TestResetClearsArena(t *testing.T) {
	a := NewArena()
	leaf := a.NewLeaf(1, []byte("a"), []byte("a"))
	a.SetRoot(leaf)

	a.Reset()

	if a.Root() != NilNode {
		t.Fatalf("expected NilNode root after Reset, got %v", a.Root())
	}
}
