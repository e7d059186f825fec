package store

import (
	"context"
	"sync"
	"testing"

	"github.com/speak2fill/speak2fill/internal/form"
)

func testSession(id string) *form.Session {
	fields := []form.Field{
		{FieldID: "name", Label: "Name", BBox: form.BBox{10, 10, 100, 40}, InputMode: form.InputModeVoice, WriteLanguage: "en"},
		{FieldID: "phone", Label: "Phone", BBox: form.BBox{10, 50, 100, 80}, InputMode: form.InputModeVoice, WriteLanguage: "numeric"},
	}
	return form.NewSession(id, "form.png", "en", fields, nil, 200, 100)
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Create(ctx, testSession("s1"), []byte("img")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := st.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "s1" || len(got.Fields) != 2 {
		t.Errorf("unexpected session: %+v", got)
	}

	img, err := st.GetImage(ctx, "s1")
	if err != nil || string(img) != "img" {
		t.Errorf("GetImage = %q, %v", img, err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if _, err := st.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if _, err := st.Update(ctx, "missing", func(*form.Session) error { return nil }); err != ErrNotFound {
		t.Errorf("Update err = %v, want ErrNotFound", err)
	}
	if _, err := st.GetImage(ctx, "missing"); err != ErrNotFound {
		t.Errorf("GetImage err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	if err := st.Create(ctx, testSession("s1"), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create(ctx, testSession("s1"), nil); err == nil {
		t.Error("duplicate Create should fail")
	}
}

func TestMemoryStore_UpdateErrorLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.Create(ctx, testSession("s1"), nil)

	errBoom := context.DeadlineExceeded
	_, err := st.Update(ctx, "s1", func(s *form.Session) error {
		s.Cursor = 99
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("Update err = %v, want %v", err, errBoom)
	}

	got, _ := st.Get(ctx, "s1")
	if got.Cursor != 0 {
		t.Errorf("cursor = %d, failed mutation must not apply", got.Cursor)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.Create(ctx, testSession("s1"), nil)

	a, _ := st.Get(ctx, "s1")
	a.FilledValues["name"] = "tampered"
	a.Cursor = 5

	b, _ := st.Get(ctx, "s1")
	if b.Cursor != 0 || len(b.FilledValues) != 0 {
		t.Error("mutating a Get result leaked into the store")
	}
}

// Duplicate network retries race on one session; each increment must be
// applied exactly once.
func TestMemoryStore_ConcurrentUpdatesSerialized(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.Create(ctx, testSession("s1"), nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Update(ctx, "s1", func(s *form.Session) error {
				s.Cursor++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := st.Get(ctx, "s1")
	if got.Cursor != n {
		t.Errorf("cursor = %d, want %d (lost update)", got.Cursor, n)
	}
}
