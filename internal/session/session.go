package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kobzarvs/gapedit/internal/logger"
)

// ViewState is the saved position of one contig editor.
type ViewState struct {
	CursorSeq int `json:"cursor_seq"`
	CursorPos int `json:"cursor_pos"`
	Display   int `json:"display"`
}

// Session stores the view state of every contig that has been edited,
// keyed by a name that survives contig renumbering.
type Session struct {
	Views      map[string]ViewState `json:"views"`
	LastContig string               `json:"last_contig,omitempty"`
	LastSaved  time.Time            `json:"last_saved"`
}

// Manager handles session persistence
type Manager struct {
	mu       sync.RWMutex
	session  Session
	path     string
	dirty    bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager loads the saved session and starts autosaving it every
// interval. A zero interval disables autosave.
func NewManager(interval time.Duration) (*Manager, error) {
	path, err := sessionPath()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		session: Session{
			Views: make(map[string]ViewState),
		},
		path:     path,
		stopChan: make(chan struct{}),
	}

	m.load()

	if interval > 0 {
		go m.autosaveLoop(interval)
	}

	return m, nil
}

func sessionPath() (string, error) {
	// XDG state directory
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(stateDir, "gapedit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// Path is the session file.
func (m *Manager) Path() string { return m.path }

func (m *Manager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return // No existing session, start fresh
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		logger.Warn("ignoring unreadable session file", "path", m.path, "err", err)
		return
	}
	if session.Views == nil {
		session.Views = make(map[string]ViewState)
	}
	m.session = session
}

// Save persists the session to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.dirty {
		return nil
	}

	m.session.LastSaved = time.Now()
	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return err
	}

	m.dirty = false
	return nil
}

// ForceSave saves even if not dirty
func (m *Manager) ForceSave() error {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
	return m.Save()
}

// View returns the saved state for a contig key.
func (m *Manager) View(key string) (ViewState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.session.Views[key]
	return state, ok
}

// SetView records the state for a contig key and makes it the last
// edited contig.
func (m *Manager) SetView(key string, state ViewState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Views[key] = state
	m.session.LastContig = key
	m.dirty = true
}

// ForgetView drops the state of a contig that no longer exists.
func (m *Manager) ForgetView(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.session.Views[key]; !ok {
		return
	}
	delete(m.session.Views, key)
	if m.session.LastContig == key {
		m.session.LastContig = ""
	}
	m.dirty = true
}

// LastContig returns the key of the last edited contig.
func (m *Manager) LastContig() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.LastContig
}

func (m *Manager) autosaveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Save(); err != nil {
				logger.Warn("session autosave failed", "path", m.path, "err", err)
			}
		case <-m.stopChan:
			return
		}
	}
}

// Stop stops the autosave loop and saves final state
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	return m.ForceSave()
}
