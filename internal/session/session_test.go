package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kokistudios/orbctl/internal/store"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".orbctl")
	if err := store.Init(dir, false); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	s, err := store.Load(dir)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	return s
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		input, want string
	}{
		{"Fleet triage", "fleet-triage"},
		{"Sinks #2!", "sinks-2"},
		{"", "console"},
		{"  spaces  everywhere  ", "spaces-everywhere"},
		{"a very long session name that keeps going and going", "a-very-long-session-name-that-keeps-goin"},
	}
	for _, tc := range cases {
		got := slugify(tc.input)
		if got != tc.want {
			t.Errorf("slugify(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestGenerateID_Format(t *testing.T) {
	id := GenerateID("triage")
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts in ID %q", id)
	}
	if len(parts[0]) != 8 {
		t.Errorf("date part %q should be 8 chars", parts[0])
	}
	if len(parts[2]) != 8 {
		t.Errorf("suffix %q should be 8 chars", parts[2])
	}
}

func TestCreateAndGet(t *testing.T) {
	s := setupStore(t)

	sess, err := Create(s, "triage")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Status != StatusActive {
		t.Errorf("expected active, got %s", sess.Status)
	}
	if sess.Storage != "file" {
		t.Errorf("expected storage from config, got %s", sess.Storage)
	}

	got, err := Get(s, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "triage" {
		t.Errorf("expected name triage, got %s", got.Name)
	}

	if _, err := Get(s, "missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestCurrent_PrefersEnv(t *testing.T) {
	s := setupStore(t)
	a, _ := Create(s, "a")
	Create(s, "b")

	t.Setenv(EnvSession, a.ID)
	cur, err := Current(s)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != a.ID {
		t.Errorf("expected %s, got %s", a.ID, cur.ID)
	}

	t.Setenv(EnvSession, "nope")
	if _, err := Current(s); err == nil {
		t.Error("expected error for unknown pinned session")
	}
}

func TestCurrent_MostRecentOrNew(t *testing.T) {
	s := setupStore(t)
	t.Setenv(EnvSession, "")

	first, err := Current(s)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	again, _ := Current(s)
	if again.ID != first.ID {
		t.Errorf("expected existing session to be reused")
	}

	other, _ := Create(s, "other")
	time.Sleep(10 * time.Millisecond)
	if err := Touch(s, first.ID, "/pages/sinks"); err != nil {
		t.Fatal(err)
	}
	cur, _ := Current(s)
	if cur.ID != first.ID {
		t.Errorf("expected most recently touched session %s, got %s (other %s)", first.ID, cur.ID, other.ID)
	}
	if cur.LastRoute != "/pages/sinks" {
		t.Errorf("expected last route recorded, got %q", cur.LastRoute)
	}
}

func TestEnd_RemovesStorage(t *testing.T) {
	s := setupStore(t)
	sess, _ := Create(s, "ending")

	st, err := OpenStorage(s, sess)
	if err != nil {
		t.Fatalf("OpenStorage: %v", err)
	}
	if err := st.Set("/pages/sinks", "[]"); err != nil {
		t.Fatal(err)
	}
	st.Close()
	if _, err := os.Stat(StoragePath(s, sess)); err != nil {
		t.Fatalf("expected storage file: %v", err)
	}

	if err := End(s, sess.ID); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := os.Stat(StoragePath(s, sess)); !os.IsNotExist(err) {
		t.Error("expected storage file removed")
	}
	ended, _ := Get(s, sess.ID)
	if ended.Status != StatusEnded || ended.EndedAt == nil {
		t.Errorf("expected ended session, got %+v", ended)
	}
	if _, err := OpenStorage(s, ended); err == nil {
		t.Error("expected error opening storage of ended session")
	}
	if err := End(s, sess.ID); err == nil {
		t.Error("expected error ending twice")
	}

	active, _ := GetActive(s)
	if len(active) != 0 {
		t.Errorf("expected no active sessions, got %d", len(active))
	}
}

func TestOpenStorage_SQLite(t *testing.T) {
	s := setupStore(t)
	s.Config.Storage.Backend = "sqlite"
	sess, _ := Create(s, "db")

	st, err := OpenStorage(s, sess)
	if err != nil {
		t.Fatalf("OpenStorage: %v", err)
	}
	defer st.Close()
	if !strings.HasSuffix(StoragePath(s, sess), "filters.db") {
		t.Errorf("unexpected storage path %s", StoragePath(s, sess))
	}
}
