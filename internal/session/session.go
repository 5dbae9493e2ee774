package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/orbctl/internal/persist"
	"github.com/kokistudios/orbctl/internal/store"
)

// SessionStatus is the lifecycle state of a console session.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// EnvSession pins the console session used by the CLI.
const EnvSession = "ORBCTL_SESSION"

// Session scopes filter storage. Filters saved in one session are not seen
// by another, and are dropped when the session ends.
type Session struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Status    SessionStatus `yaml:"status"`
	Storage   string        `yaml:"storage"` // persist driver
	LastRoute string        `yaml:"last_route,omitempty"`
	CreatedAt time.Time     `yaml:"created_at"`
	UpdatedAt time.Time     `yaml:"updated_at"`
	EndedAt   *time.Time    `yaml:"ended_at,omitempty"`
}

var storageFiles = map[string]string{
	"file":   "filters.json",
	"sqlite": "filters.db",
}

func GenerateID(name string) string {
	date := time.Now().Format("20060102")
	slug := slugify(name)
	suffix := randomHex(8)
	return fmt.Sprintf("%s-%s-%s", date, slug, suffix)
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = regexp.MustCompile(`[^a-z0-9\s-]`).ReplaceAllString(s, "")
	s = regexp.MustCompile(`[\s]+`).ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "console"
	}
	return s
}

func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)[:n]
}

// Create starts a session using the configured storage backend.
func Create(s *store.Store, name string) (*Session, error) {
	id := GenerateID(name)
	sessDir := s.Path("sessions", id)
	for {
		if _, err := os.Stat(sessDir); err != nil {
			break // doesn't exist, good
		}
		id = GenerateID(name)
		sessDir = s.Path("sessions", id)
	}

	backend := s.Config.Storage.Backend
	if backend == "" {
		backend = "file"
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        id,
		Name:      name,
		Status:    StatusActive,
		Storage:   backend,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := os.MkdirAll(sessDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := save(s, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func Get(s *store.Store, id string) (*Session, error) {
	p := s.Path("sessions", id, "session.yaml")
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("invalid session file: %w", err)
	}
	return &sess, nil
}

// List returns all sessions, most recently updated first.
func List(s *store.Store) ([]Session, error) {
	entries, err := os.ReadDir(s.Path("sessions"))
	if err != nil {
		return nil, fmt.Errorf("cannot read sessions directory: %w", err)
	}

	var sessions []Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := Get(s, e.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, *sess)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func GetActive(s *store.Store) ([]Session, error) {
	all, err := List(s)
	if err != nil {
		return nil, err
	}
	var active []Session
	for _, sess := range all {
		if sess.Status == StatusActive {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Current resolves the session the CLI works in: the one named by
// ORBCTL_SESSION, else the most recently used active one, else a new one.
func Current(s *store.Store) (*Session, error) {
	if id := os.Getenv(EnvSession); id != "" {
		sess, err := Get(s, id)
		if err != nil {
			return nil, err
		}
		if sess.Status != StatusActive {
			return nil, fmt.Errorf("session %s has ended", id)
		}
		return sess, nil
	}
	active, err := GetActive(s)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return &active[0], nil
	}
	return Create(s, "console")
}

// Touch records the last route viewed in the session.
func Touch(s *store.Store, id, route string) error {
	sess, err := Get(s, id)
	if err != nil {
		return err
	}
	sess.LastRoute = route
	sess.UpdatedAt = time.Now().UTC()
	return save(s, sess)
}

// End marks the session ended and drops its filter storage.
func End(s *store.Store, id string) error {
	sess, err := Get(s, id)
	if err != nil {
		return err
	}
	if sess.Status == StatusEnded {
		return fmt.Errorf("session %s is already ended", id)
	}
	if f, ok := storageFiles[sess.Storage]; ok {
		if err := os.Remove(s.Path("sessions", id, f)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove filter storage: %w", err)
		}
	}
	now := time.Now().UTC()
	sess.Status = StatusEnded
	sess.EndedAt = &now
	sess.UpdatedAt = now
	return save(s, sess)
}

// StoragePath is where the session's filters live, or "" for the memory
// backend.
func StoragePath(s *store.Store, sess *Session) string {
	f, ok := storageFiles[sess.Storage]
	if !ok {
		return ""
	}
	return s.Path("sessions", sess.ID, f)
}

// OpenStorage opens the session's filter store. The caller closes it.
func OpenStorage(s *store.Store, sess *Session) (persist.Store, error) {
	if sess.Status != StatusActive {
		return nil, fmt.Errorf("session %s has ended", sess.ID)
	}
	return persist.Open(sess.Storage, StoragePath(s, sess))
}

func save(s *store.Store, sess *Session) error {
	data, err := yaml.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	p := s.Path("sessions", sess.ID, "session.yaml")
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
