package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agendia/assistant/internal/storage"
)

func newTestStore(t *testing.T, maxTurns int, ttl time.Duration) *Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewStore(s.DB(), maxTurns, ttl)
}

func TestLoadAbsentSession(t *testing.T) {
	store := newTestStore(t, 5, time.Hour)
	m, err := store.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != nil {
		t.Errorf("got %+v, want nil for absent session", m)
	}
}

func TestUpdateCreatesAndAppends(t *testing.T) {
	store := newTestStore(t, 5, time.Hour)
	ctx := context.Background()

	if err := store.Update(ctx, "s1", "u1", "hola", "buenas", "appointments"); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := store.Update(ctx, "s1", "u1", "¿horarios?", "aquí tienes", ""); err != nil {
		t.Fatalf("second update: %v", err)
	}

	m, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if m == nil {
		t.Fatal("memory absent after updates")
	}
	if len(m.Turns) != 4 {
		t.Fatalf("got %d turns, want 4", len(m.Turns))
	}
	if m.Turns[0].Content != "hola" || m.Turns[3].Content != "aquí tienes" {
		t.Errorf("turns out of order: %+v", m.Turns)
	}
	// Active module hint survives updates that don't set it.
	if m.ActiveModule != "appointments" {
		t.Errorf("active module = %q, want appointments", m.ActiveModule)
	}
}

func TestSlidingWindowTrim(t *testing.T) {
	const maxTurns = 3
	store := newTestStore(t, maxTurns, time.Hour)
	ctx := context.Background()

	for i := range 10 {
		user := fmt.Sprintf("pregunta %d", i)
		if err := store.Update(ctx, "s1", "u1", user, fmt.Sprintf("respuesta %d", i), ""); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	m, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if len(m.Turns) != maxTurns*2 {
		t.Fatalf("got %d turns, want %d", len(m.Turns), maxTurns*2)
	}
	// The most recent exchange is always present.
	last := m.Turns[len(m.Turns)-2]
	if last.Content != "pregunta 9" {
		t.Errorf("latest user turn = %q, want pregunta 9", last.Content)
	}
}

func TestExpiredMemoryDeletedOnLoad(t *testing.T) {
	store := newTestStore(t, 5, time.Hour)
	ctx := context.Background()

	if err := store.Update(ctx, "s1", "u1", "hola", "buenas", ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Move the clock past the TTL.
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	m, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if m != nil {
		t.Error("expired memory still returned")
	}

	// The stale row must be gone even with the real clock back.
	store.now = time.Now
	m, err = store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if m != nil {
		t.Error("expired row was not deleted")
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t, 5, time.Hour)
	ctx := context.Background()

	if err := store.Update(ctx, "s1", "u1", "hola", "buenas", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	m, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if m != nil {
		t.Error("memory survives Clear")
	}

	// Clearing again is not an error.
	if err := store.Clear(ctx, "s1"); err != nil {
		t.Errorf("clearing absent session: %v", err)
	}
}

func TestFormat(t *testing.T) {
	m := &Memory{Turns: []Turn{
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "buenas"},
	}}
	got := Format(m)
	want := "Usuario: hola\nAsistente: buenas"
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}

	if Format(nil) != "" {
		t.Error("Format(nil) should be empty")
	}
	if Format(&Memory{}) != "" {
		t.Error("Format(empty) should be empty")
	}
	if strings.Contains(Format(&Memory{}), "Usuario") {
		t.Error("empty memory rendered a header")
	}
}
