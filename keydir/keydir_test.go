package keydir

import (
	"testing"

	"github.com/kl4mm/hash-db/entry"
	"github.com/kl4mm/hash-db/page"
)

func TestInsertGetRemove(t *testing.T) {
	kd := New()

	if _, ok := kd.Get([]byte("a")); ok {
		t.Fatalf("expected miss on empty key directory")
	}

	kd.Insert([]byte("a"), Data{PageID: 1, Offset: 10})
	d, ok := kd.Get([]byte("a"))
	if !ok || d.PageID != 1 || d.Offset != 10 {
		t.Fatalf("Get = %+v, %v; want {1 10} true", d, ok)
	}

	prev, hadPrev := kd.Insert([]byte("a"), Data{PageID: 2, Offset: 20})
	if !hadPrev || prev.PageID != 1 {
		t.Fatalf("Insert should report the previous binding")
	}

	kd.Remove([]byte("a"))
	if _, ok := kd.Get([]byte("a")); ok {
		t.Fatalf("expected miss after Remove")
	}
}

func TestLen(t *testing.T) {
	kd := New()
	kd.Insert([]byte("a"), Data{})
	kd.Insert([]byte("b"), Data{})
	if kd.Len() != 2 {
		t.Fatalf("Len = %d, want 2", kd.Len())
	}
	kd.Remove([]byte("a"))
	if kd.Len() != 1 {
		t.Fatalf("Len = %d, want 1", kd.Len())
	}
}

// fakeDisk is a minimal pageReader backed by a slice of pre-built pages, so
// bootstrap logic can be tested without the disk package.
type fakeDisk struct {
	pages [][]byte
}

func (f *fakeDisk) PageCount() (uint32, error) { return uint32(len(f.pages)), nil }

func (f *fakeDisk) ReadPage(id page.ID) ([]byte, error) {
	return f.pages[id], nil
}

const testPageSize = 256

func buildPage(t *testing.T, id page.ID, entries ...*entry.Entry) []byte {
	t.Helper()
	p := page.New(id, testPageSize)
	for _, e := range entries {
		if _, err := p.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return p.Bytes()
}

func TestBootstrapEmptyFile(t *testing.T) {
	kd, cur, id, err := Bootstrap(&fakeDisk{}, testPageSize)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if kd.Len() != 0 {
		t.Fatalf("expected empty key directory")
	}
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	if cur.Len() != 0 {
		t.Fatalf("expected a fresh empty current page")
	}
}

func TestBootstrapReplaysPutsAndDeletesAcrossPages(t *testing.T) {
	page0 := buildPage(t, 0,
		entry.New(entry.Put, []byte("a"), []byte("1"), 1),
		entry.New(entry.Put, []byte("b"), []byte("2"), 2),
	)
	page1 := buildPage(t, 1,
		entry.New(entry.Put, []byte("a"), []byte("3"), 3), // overwrites a
		entry.New(entry.Delete, []byte("b"), nil, 4),       // removes b
		entry.New(entry.Put, []byte("c"), []byte("9"), 5),
	)

	fd := &fakeDisk{pages: [][]byte{page0, page1}}
	kd, cur, id, err := Bootstrap(fd, testPageSize)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if id != 1 {
		t.Fatalf("latest page id = %d, want 1", id)
	}
	if cur.ID != 1 {
		t.Fatalf("current page id = %d, want 1", cur.ID)
	}

	if _, ok := kd.Get([]byte("b")); ok {
		t.Fatalf("b should have been deleted")
	}

	a, ok := kd.Get([]byte("a"))
	if !ok || a.PageID != 1 {
		t.Fatalf("a should point at page 1, got %+v ok=%v", a, ok)
	}

	c, ok := kd.Get([]byte("c"))
	if !ok || c.PageID != 1 {
		t.Fatalf("c should point at page 1, got %+v ok=%v", c, ok)
	}

	if kd.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (a and c live, b deleted)", kd.Len())
	}
}
