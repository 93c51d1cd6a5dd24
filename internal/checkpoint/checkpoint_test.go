package checkpoint

import (
	"testing"
	"time"
)

func testState() *State {
	return &State{
		SessionID: "abc-123",
		SeedURL:   "https://example.com/",
		Visited:   []string{"https://example.com/", "https://example.com/a"},
		Pending: []PendingEntry{
			{URL: "https://example.com/b", Depth: 1, Priority: 60, Referer: "https://example.com/", DiscoveredAt: time.Now()},
			{URL: "https://example.com/c", Depth: 1, Priority: 10, Referer: "https://example.com/", DiscoveredAt: time.Now()},
		},
		PagesVisited: 2,
		ConfigJSON:   "{}",
	}
}

func newTestManager(t *testing.T, cfg *ManagerConfig) *Manager {
	t.Helper()
	if cfg == nil {
		cfg = DefaultManagerConfig()
	}
	cfg.BaseDir = t.TempDir()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)
	id, err := m.Save(testState())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.SeedURL != "https://example.com/" {
		t.Errorf("unexpected seed: %s", loaded.SeedURL)
	}
	if len(loaded.Visited) != 2 {
		t.Errorf("expected 2 visited, got %d", len(loaded.Visited))
	}
	if len(loaded.Pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(loaded.Pending))
	}
	// Pending order survives the roundtrip.
	if loaded.Pending[0].URL != "https://example.com/b" || loaded.Pending[0].Priority != 60 {
		t.Errorf("unexpected first pending entry: %+v", loaded.Pending[0])
	}
	if loaded.Completed() != 2 {
		t.Errorf("expected 2 completed, got %d", loaded.Completed())
	}
}

func TestUncompressedRoundtrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &ManagerConfig{MaxKeep: 5, Compression: false})
	id, err := m.Save(testState())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := m.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SessionID != "abc-123" {
		t.Errorf("unexpected session id: %s", loaded.SessionID)
	}
}

func TestLoadLatest(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)

	first := testState()
	first.PagesVisited = 1
	if _, err := m.Save(first); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	second := testState()
	second.PagesVisited = 5
	if _, err := m.Save(second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	latest, err := m.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latest.PagesVisited != 5 {
		t.Errorf("expected the later checkpoint, got pages_visited=%d", latest.PagesVisited)
	}
}

func TestLoadLatestEmpty(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)
	if _, err := m.LoadLatest(); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestPruneOldCheckpoints(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &ManagerConfig{MaxKeep: 2, Compression: true})

	for i := 0; i < 4; i++ {
		if _, err := m.Save(testState()); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	infos, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Errorf("expected 2 retained checkpoints, got %d", len(infos))
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)
	if _, err := m.Save(testState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	infos, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no checkpoints after clear, got %d", len(infos))
	}
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)
	if _, err := m.Load("checkpoint_0"); err == nil {
		t.Error("expected error for missing checkpoint")
	}
}
