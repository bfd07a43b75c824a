package enginefacade

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nvmtree/nvmtree/pkg/config"
	"github.com/nvmtree/nvmtree/pkg/status"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "e.pool")
	cfg := config.NewDefaultConfig(path)
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, path
}

func TestNameReturnsEngineIdentifier(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.Name() != "nvmtree" {
		t.Fatalf("Name() = %q, want nvmtree", e.Name())
	}
}

func TestPutGetRemoveThroughFacade(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := e.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("Get = %q", v)
	}

	if err := e.Remove([]byte("k")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := e.Get([]byte("k")); status.FromError(err) != status.NotFound {
		t.Fatalf("expected NotFound after remove, got %v", err)
	}
}

func TestPutEmptyKeyReturnsInvalidArgument(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Put(nil, []byte("v")); status.FromError(err) != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestReopenAfterCloseRecoversData(t *testing.T) {
	e, path := newTestEngine(t)
	for _, k := range []string{"a", "b", "c"} {
		if err := e.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cfg := config.NewDefaultConfig(path)
	e2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	for _, k := range []string{"a", "b", "c"} {
		v, err := e2.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%s) after reopen: %v", k, err)
		}
		if string(v) != k {
			t.Fatalf("Get(%s) = %q", k, v)
		}
	}
}

func TestDefragInvalidWindowReturnsInvalidArgument(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.Defrag(80, 50); status.FromError(err) != status.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestDefragPreservesDataAfterHeavyChurn(t *testing.T) {
	e, _ := newTestEngine(t)

	n := 200
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("k-%04d", i)
		if err := e.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	for i := 0; i < n; i += 2 {
		k := fmt.Sprintf("k-%04d", i)
		if err := e.Remove([]byte(k)); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}

	if err := e.Defrag(0, 100); err != nil {
		t.Fatalf("Defrag: %v", err)
	}

	for i := 1; i < n; i += 2 {
		k := fmt.Sprintf("k-%04d", i)
		v, err := e.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%s) after defrag: %v", k, err)
		}
		if string(v) != k {
			t.Fatalf("Get(%s) = %q", k, v)
		}
	}
}

func TestRangeAndCountOpsThroughFacade(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		e.Put([]byte(k), []byte(k))
	}

	if n := e.CountAll(); n != 5 {
		t.Fatalf("CountAll = %d, want 5", n)
	}

	var got []string
	e.Between([]byte("b"), []byte("d"), func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	})
	if len(got) != 1 {
		t.Fatalf("Between visited %v, want 1 entry", got)
	}

	if _, _, ok := e.GetBegin(); !ok {
		t.Fatalf("GetBegin ok=false on non-empty tree")
	}
}
