package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/speak2fill/speak2fill/internal/form"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := NewSQLiteStore(db)
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return st
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)

	sess := testSession("s1")
	sess.OCRItems = []form.OCRItem{{Text: "Name", BBox: form.BBox{5, 5, 50, 20}, Score: 0.91}}
	if err := st.Create(ctx, sess, []byte{0x89, 0x50}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := st.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "s1" || got.ImageWidth != 200 || got.ImageHeight != 100 {
		t.Errorf("unexpected session: %+v", got)
	}
	if len(got.Fields) != 2 || got.Fields[1].WriteLanguage != "numeric" {
		t.Errorf("fields did not survive round trip: %+v", got.Fields)
	}
	if len(got.OCRItems) != 1 || got.OCRItems[0].Score != 0.91 {
		t.Errorf("ocr items did not survive round trip: %+v", got.OCRItems)
	}
	if got.Phase != form.PhaseAskInput || got.Cursor != 0 {
		t.Errorf("fresh session state wrong: phase=%s cursor=%d", got.Phase, got.Cursor)
	}

	img, err := st.GetImage(ctx, "s1")
	if err != nil || len(img) != 2 {
		t.Errorf("GetImage = %v, %v", img, err)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)

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

func TestSQLiteStore_UpdatePersistsStateAndTurns(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	st.Create(ctx, testSession("s1"), nil)

	updated, err := st.Update(ctx, "s1", func(s *form.Session) error {
		s.FilledValues["name"] = "Ravi"
		s.Phase = form.PhaseAwaitConfirmation
		s.AppendTurn("user", "Ravi")
		s.AppendTurn("assistant", "Please write Ravi in the Name box.")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Phase != form.PhaseAwaitConfirmation {
		t.Errorf("phase = %s", updated.Phase)
	}

	got, _ := st.Get(ctx, "s1")
	if got.FilledValues["name"] != "Ravi" {
		t.Errorf("filled values not persisted: %v", got.FilledValues)
	}
	if len(got.History) != 2 || got.History[0].Role != "user" || got.History[1].Role != "assistant" {
		t.Errorf("history not persisted in order: %+v", got.History)
	}

	// A second update must append, not rewrite, the earlier turns.
	st.Update(ctx, "s1", func(s *form.Session) error {
		s.Cursor = 1
		s.Phase = form.PhaseAskInput
		s.AppendTurn("assistant", "Next: Phone.")
		return nil
	})
	got, _ = st.Get(ctx, "s1")
	if len(got.History) != 3 {
		t.Errorf("history length = %d, want 3", len(got.History))
	}
	if got.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", got.Cursor)
	}
}

func TestSQLiteStore_UpdateErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newSQLiteStore(t)
	st.Create(ctx, testSession("s1"), nil)

	errBoom := context.DeadlineExceeded
	_, err := st.Update(ctx, "s1", func(s *form.Session) error {
		s.Cursor = 2
		s.AppendTurn("assistant", "never persisted")
		return errBoom
	})
	if err != errBoom {
		t.Fatalf("Update err = %v, want %v", err, errBoom)
	}

	got, _ := st.Get(ctx, "s1")
	if got.Cursor != 0 || len(got.History) != 0 {
		t.Errorf("failed update leaked state: cursor=%d history=%d", got.Cursor, len(got.History))
	}
}
