package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/recurrence"
	"github.com/cyp0633/calrecur/storage"
)

func def(id string) event.Definition {
	d := recurrence.Date(2025, 1, 6)
	return event.Definition{ID: id, Title: "event " + id, StartDate: d, EndDate: d}
}

func TestStore_LoadAllKeepsOrder(t *testing.T) {
	store := New(def("b"), def("a"), def("c"))
	ctx := context.Background()

	got, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d definitions, want 3", len(got))
	}
	for i, want := range []string{"b", "a", "c"} {
		if got[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestStore_UpsertAndDelete(t *testing.T) {
	store := New(def("a"))
	ctx := context.Background()

	updated := def("a")
	updated.Title = "renamed"
	if err := store.Upsert(ctx, updated, def("b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("got %d definitions, want 2", store.Len())
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "renamed" {
		t.Errorf("got title %q, want %q", got.Title, "renamed")
	}

	if err := store.Delete(ctx, "a", "missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = store.Get(ctx, "a")
	if err == nil {
		t.Error("expected error getting deleted definition")
	} else if !storage.IsType(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, _ := store.LoadAll(ctx)
	if len(all) != 1 || all[0].ID != "b" {
		t.Errorf("unexpected contents after delete: %+v", all)
	}
}

func TestStore_UpsertRejectsEmptyID(t *testing.T) {
	store := New()
	err := store.Upsert(context.Background(), event.Definition{})
	if !storage.IsType(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("store should stay empty after rejected upsert")
	}
}

func TestStore_SaveAllReplaces(t *testing.T) {
	store := New(def("a"), def("b"))
	ctx := context.Background()

	if err := store.SaveAll(ctx, []event.Definition{def("c")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := store.LoadAll(ctx)
	if len(all) != 1 || all[0].ID != "c" {
		t.Errorf("unexpected contents after SaveAll: %+v", all)
	}
}

func TestStore_FailWrites(t *testing.T) {
	store := New(def("a"))
	ctx := context.Background()
	boom := errors.New("disk full")

	store.FailWrites(boom)
	if err := store.Upsert(ctx, def("b")); !errors.Is(err, boom) {
		t.Errorf("expected wrapped failure, got %v", err)
	}
	if err := store.SaveAll(ctx, nil); !storage.IsType(err, storage.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("failed writes changed the store: %d definitions", store.Len())
	}

	store.FailWrites(nil)
	if err := store.Upsert(ctx, def("b")); err != nil {
		t.Errorf("unexpected error after recovery: %v", err)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	d := def("a")
	d.ReminderOffsets = []int{10}
	store := New(d)
	ctx := context.Background()

	all, _ := store.LoadAll(ctx)
	all[0].ReminderOffsets[0] = 99
	all[0].Title = "mutated"

	again, _ := store.LoadAll(ctx)
	if again[0].ReminderOffsets[0] != 10 || again[0].Title != "event a" {
		t.Errorf("store leaked internal state: %+v", again[0])
	}
}

func TestApply_UsesIncremental(t *testing.T) {
	store := New(def("a"), def("b"))
	ctx := context.Background()

	change := storage.Changeset{Upserted: []event.Definition{def("c")}, Deleted: []string{"a"}}
	// The snapshot is ignored by incremental backends.
	if err := storage.Apply(ctx, store, change, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := store.LoadAll(ctx)
	if len(all) != 2 || all[0].ID != "b" || all[1].ID != "c" {
		t.Errorf("unexpected contents: %+v", all)
	}
}
