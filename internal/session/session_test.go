package session

import (
	"testing"
	"time"
)

func TestTouchCreatesAndUpdates(t *testing.T) {
	m := NewManager(7 * 24 * time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return base })

	if _, ok := m.Get("u1"); ok {
		t.Fatalf("expected no session before first touch")
	}

	m.Touch("u1", "Ming")
	st, ok := m.Get("u1")
	if !ok {
		t.Fatalf("expected session after touch")
	}
	if st.DisplayName != "Ming" {
		t.Fatalf("expected display name Ming, got %q", st.DisplayName)
	}
	if !st.LastInteractionAt.Equal(base) {
		t.Fatalf("expected interaction time %v, got %v", base, st.LastInteractionAt)
	}

	// Empty display name hint keeps the previous one.
	m.SetNow(func() time.Time { return base.Add(time.Hour) })
	m.Touch("u1", "")
	st, _ = m.Get("u1")
	if st.DisplayName != "Ming" {
		t.Fatalf("expected display name preserved, got %q", st.DisplayName)
	}
	if !st.LastInteractionAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("expected interaction time bumped")
	}
}

func TestSeedOnlyWhenAbsent(t *testing.T) {
	m := NewManager(7 * 24 * time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return base })

	m.Touch("u1", "Ming")
	m.Seed("u1", base.Add(-48*time.Hour))
	st, _ := m.Get("u1")
	if !st.LastInteractionAt.Equal(base) {
		t.Fatalf("seed must not overwrite an existing session")
	}

	m.Seed("u2", base.Add(-time.Hour))
	st, ok := m.Get("u2")
	if !ok {
		t.Fatalf("expected seeded session")
	}
	if !st.LastInteractionAt.Equal(base.Add(-time.Hour)) {
		t.Fatalf("unexpected seeded interaction time %v", st.LastInteractionAt)
	}
	if st.DisplayName != "" {
		t.Fatalf("seeded session has no display name backing")
	}
}

func TestSweepEvictsStale(t *testing.T) {
	m := NewManager(7 * 24 * time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return base })

	m.Touch("stale", "A")
	m.Touch("fresh", "B")
	m.Touch("proactive-only", "C")

	// Eight days later only the recently active entries survive.
	m.SetNow(func() time.Time { return base.Add(6 * 24 * time.Hour) })
	m.Touch("fresh", "")
	m.MarkProactive("proactive-only")

	m.SetNow(func() time.Time { return base.Add(8 * 24 * time.Hour) })
	evicted := m.Sweep()
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := m.Get("stale"); ok {
		t.Fatalf("expected stale session evicted")
	}
	if _, ok := m.Get("fresh"); !ok {
		t.Fatalf("expected fresh session retained")
	}
	if _, ok := m.Get("proactive-only"); !ok {
		t.Fatalf("expected proactive send to count as activity")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Len())
	}
}

func TestClear(t *testing.T) {
	m := NewManager(time.Hour)
	m.Touch("u1", "Ming")
	m.Clear("u1")
	if _, ok := m.Get("u1"); ok {
		t.Fatalf("expected session cleared")
	}
}
