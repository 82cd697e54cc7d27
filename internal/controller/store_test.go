package controller

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/database"
	_ "github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/migrations" // registers the schema
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "controller.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func TestSQLiteStore_SaveListDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)

	later := Rearm{
		ID:        "b",
		DeviceID:  "device001",
		Topic:     "device/device001/action/switch",
		Action:    descriptor.SwitchAction(descriptor.ValueOn),
		DueAt:     base.Add(20 * time.Second),
		CreatedAt: base.Add(10 * time.Second),
	}
	sooner := Rearm{
		ID:        "a",
		DeviceID:  "device002",
		Topic:     "device/device002/action/switch",
		Action:    descriptor.SwitchAction(descriptor.ValueOn),
		DueAt:     base.Add(10 * time.Second),
		CreatedAt: base,
	}

	for _, r := range []Rearm{later, sooner} {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", r.ID, err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = [%s %s], want due-time order [a b]", got[0].ID, got[1].ID)
	}
	if !got[0].DueAt.Equal(sooner.DueAt) || !got[0].CreatedAt.Equal(sooner.CreatedAt) {
		t.Errorf("times did not round-trip: %+v", got[0])
	}
	if got[1].Action != later.Action || got[1].Topic != later.Topic || got[1].DeviceID != later.DeviceID {
		t.Errorf("entry did not round-trip: %+v", got[1])
	}

	// Saving the same id replaces the row.
	later.DueAt = base.Add(time.Minute)
	if err := store.Save(ctx, later); err != nil {
		t.Fatalf("Save() replace error = %v", err)
	}
	got, _ = store.List(ctx)
	if len(got) != 2 || !got[1].DueAt.Equal(later.DueAt) {
		t.Errorf("replace did not update due time: %+v", got)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "unknown"); err != nil {
		t.Errorf("Delete(unknown) error = %v, want nil", err)
	}
	got, _ = store.List(ctx)
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("after delete = %+v, want only b", got)
	}
}

func TestSQLiteStore_ListOrdersSubSecondDueTimes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	whole := time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)

	due := map[string]time.Time{
		"half":  whole.Add(500 * time.Millisecond),
		"whole": whole,
		"tenth": whole.Add(100 * time.Millisecond),
		"next":  whole.Add(time.Second),
	}
	for id, at := range due {
		r := Rearm{
			ID:        id,
			DeviceID:  "device001",
			Topic:     "device/device001/action/switch",
			Action:    descriptor.SwitchAction(descriptor.ValueOn),
			DueAt:     at,
			CreatedAt: whole,
		}
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"whole", "tenth", "half", "next"}
	if len(got) != len(want) {
		t.Fatalf("List() returned %d entries, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].ID, id)
		}
		if !got[i].DueAt.Equal(due[id]) {
			t.Errorf("List()[%d].DueAt = %v, want %v", i, got[i].DueAt, due[id])
		}
	}
}

func TestSQLiteStore_SurvivesSchedulerRestart(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	clock := newFakeClock()

	first := newTestScheduler(t, "", clock, &recordingPublisher{}, store, nil)
	if _, _, err := first.Schedule(ctx, "device001", testTopic, switchOn); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	first.Stop()

	pub := &recordingPublisher{}
	clock2 := newFakeClock()
	second := newTestScheduler(t, "", clock2, pub, store, nil)
	n, err := second.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Restore() = %d, want 1", n)
	}

	clock2.FireAll()
	if len(pub.Delivered()) != 1 {
		t.Errorf("delivered = %d, want 1", len(pub.Delivered()))
	}
	left, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(left) != 0 {
		t.Errorf("store has %d entries after delivery, want 0", len(left))
	}
	second.Stop()
}
