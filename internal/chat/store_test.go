package chat

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zhubert/gameforge/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return store
}

func TestStore_CreateAndLoad(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	c, err := store.Create("make pong", "m")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.dir, c.ID+".json")); err != nil {
		t.Errorf("chat file was not created: %v", err)
	}

	loaded, err := store.Load(c.ID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Title != "make pong" || len(loaded.Messages) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Messages[0].Role != llm.RoleUser || loaded.Messages[0].Content != "make pong" {
		t.Errorf("first message = %+v", loaded.Messages[0])
	}
}

func TestStore_AddMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	c, err := store.Create("snake", "m")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	m, err := store.AddMessage(c.ID, llm.RoleAssistant, "```tsx\nx", StateIncomplete)
	if err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if m.Position != 1 {
		t.Errorf("Position = %d, want 1", m.Position)
	}

	loaded, err := store.Load(c.ID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, ok := loaded.MessageByID(m.ID)
	if !ok || got.State != StateIncomplete {
		t.Errorf("stored message = %+v, %v", got, ok)
	}

	if _, err := store.AddMessage("missing", llm.RoleUser, "x", StateNone); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddMessage() on missing chat error = %v", err)
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	for _, id := range []string{"nonexistent", "../escape", ""} {
		if _, err := store.Load(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	c, err := store.Create("snake", "m")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := store.Delete(c.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Load(c.ID); !errors.Is(err, ErrNotFound) {
		t.Error("chat should be gone")
	}
	// Deleting again is fine.
	if err := store.Delete(c.ID); err != nil {
		t.Errorf("second Delete() error: %v", err)
	}
}

func TestStore_ListAndMostRecent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	recent, err := store.MostRecent()
	if err != nil || recent != nil {
		t.Fatalf("MostRecent() on empty store = %v, %v", recent, err)
	}

	older := New("older", "m")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	if err := store.Save(older); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	newer, err := store.Create("newer", "m")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Corrupted files are skipped.
	if err := os.WriteFile(filepath.Join(store.dir, "bad.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("List() = %+v", list)
	}

	recent, err = store.MostRecent()
	if err != nil {
		t.Fatalf("MostRecent() error: %v", err)
	}
	if recent.ID != newer.ID {
		t.Errorf("MostRecent() = %s, want %s", recent.ID, newer.ID)
	}
}

func TestStore_FindMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	c, err := store.Create("snake", "m")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	m, err := store.AddMessage(c.ID, llm.RoleAssistant, "reply", StateComplete)
	if err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}

	found, got, err := store.FindMessage(m.ID)
	if err != nil {
		t.Fatalf("FindMessage() error: %v", err)
	}
	if found.ID != c.ID || got.Content != "reply" {
		t.Errorf("FindMessage() = %s, %+v", found.ID, got)
	}
	if _, _, err := store.FindMessage("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindMessage() error = %v", err)
	}
}

func TestStore_SetTitleKeepsConcurrentMessages(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	c, err := store.Create("make pong", "m")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := store.AddMessage(c.ID, llm.RoleUser, "faster paddles", StateNone); err != nil {
				t.Errorf("AddMessage() error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := store.SetTitle(c.ID, "Pong"); err != nil {
				t.Errorf("SetTitle() error: %v", err)
			}
		}()
	}
	wg.Wait()

	loaded, err := store.Load(c.ID)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Title != "Pong" {
		t.Errorf("Title = %q, want Pong", loaded.Title)
	}
	if len(loaded.Messages) != 9 {
		t.Errorf("got %d messages, want 9", len(loaded.Messages))
	}

	if err := store.SetTitle("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTitle(missing) error = %v, want ErrNotFound", err)
	}
}
