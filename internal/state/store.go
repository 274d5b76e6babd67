package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no document exists for the requested key.
var ErrNotFound = errors.New("state document not found")

// resumeWarnWindow: a session updated this recently by someone else is
// probably still being driven by another process.
const resumeWarnWindow = 5 * time.Minute

// Store reads and writes state documents under a base directory.
// Documents are single-writer; the store does no cross-process locking.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir resolves the state directory: $XDG_STATE_HOME/hostlock or
// ~/.local/state/hostlock.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "hostlock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hostlock/state"
	}
	return filepath.Join(home, ".local", "state", "hostlock")
}

// NewHost creates and persists a fresh host document.
func (s *Store) NewHost(host string, snapshot map[string]string, originalUser, deployUser string) (*HostState, error) {
	h := newHostState(host, snapshot, originalUser, deployUser)
	h.path = s.hostPath(host)
	if err := h.save(); err != nil {
		return nil, err
	}
	return h, nil
}

// LoadHost loads the document for a host, or ErrNotFound.
func (s *Store) LoadHost(host string) (*HostState, error) {
	path := s.hostPath(host)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("host %s: %w", host, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read host state %s: %w", path, err)
	}

	h := &HostState{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("failed to parse host state %s: %w", path, err)
	}
	// Older schema versions: default missing optional fields rather
	// than fail.
	if h.Steps == nil {
		h.Steps = make(map[string]StepStatus)
	}
	if h.SchemaVersion == 0 {
		h.SchemaVersion = SchemaVersion
	}
	h.path = path
	return h, nil
}

// LoadOrCreateHost loads the existing document or creates a fresh one.
func (s *Store) LoadOrCreateHost(host string, snapshot map[string]string, originalUser, deployUser string) (*HostState, error) {
	h, err := s.LoadHost(host)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.NewHost(host, snapshot, originalUser, deployUser)
}

// NewSession creates and persists a fresh wizard session.
func (s *Store) NewSession(projectPath string, stepOrder []string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		SchemaVersion: SchemaVersion,
		ID:            newSessionID(),
		ProjectPath:   projectPath,
		StepOrder:     stepOrder,
		StepResults:   make(map[string]map[string]any),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sess.path = s.sessionPath(sess.ID)
	if err := sess.save(); err != nil {
		return nil, err
	}
	return sess, nil
}

// LoadSession loads one session by id, or ErrNotFound.
func (s *Store) LoadSession(id string) (*Session, error) {
	path := s.sessionPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", path, err)
	}

	sess := &Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	if sess.StepResults == nil {
		sess.StepResults = make(map[string]map[string]any)
	}
	if sess.SchemaVersion == 0 {
		sess.SchemaVersion = SchemaVersion
	}
	sess.path = path
	return sess, nil
}

// Sessions enumerates all session documents, most recently updated first.
func (s *Store) Sessions() ([]*Session, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		sess, err := s.LoadSession(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue // unparseable documents are skipped, not fatal
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// MostRecentSession returns the most recently updated incomplete session.
func (s *Store) MostRecentSession() (*Session, error) {
	sessions, err := s.Sessions()
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if !sess.Completed {
			return sess, nil
		}
	}
	return nil, ErrNotFound
}

// CanResume reports whether the session is resumable, and a warning when
// another process looks to be driving it right now.
func CanResume(sess *Session) (ok bool, warning string) {
	if sess.Completed {
		return false, ""
	}
	if age := time.Since(sess.UpdatedAt); age < resumeWarnWindow {
		return true, fmt.Sprintf("session %s was updated %v ago; another hostlock process may still be running", sess.ID, age.Round(time.Second))
	}
	return true, ""
}

func (s *Store) hostPath(host string) string {
	return filepath.Join(s.dir, "hosts", sanitize(host)+".json")
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, "sessions", sanitize(id)+".json")
}

// sanitize maps a host/session identifier to a safe file name.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// writeJSONAtomic writes the document to a temp file in the target
// directory, syncs it, and renames it into place, so a crash mid-write
// cannot leave a half-written document.
func writeJSONAtomic(path string, doc any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", path, err)
	}
	return nil
}
