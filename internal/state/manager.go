package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/MEKXH/autorecord/internal/recorder"
)

const recorderStateFileMode = 0600

// RecorderState is the last persisted view of the recorder registry.
type RecorderState struct {
	SavedAt   time.Time       `json:"saved_at"`
	Recorders []recorder.Info `json:"recorders"`
}

// Manager persists lightweight runtime state.
type Manager struct {
	recordersPath string
	mu            sync.Mutex
}

// NewManager creates a state manager writing under stateDir.
func NewManager(stateDir string) *Manager {
	return &Manager{
		recordersPath: filepath.Join(stateDir, "recorders.json"),
	}
}

// Path returns the recorder state file location.
func (m *Manager) Path() string {
	return m.recordersPath
}

// LoadRecorderState reads recorder state from disk.
// Missing or malformed files are treated as empty state.
func (m *Manager) LoadRecorderState() (RecorderState, error) {
	data, err := os.ReadFile(m.recordersPath)
	if err != nil {
		if os.IsNotExist(err) {
			return RecorderState{}, nil
		}
		return RecorderState{}, err
	}

	var st RecorderState
	if err := json.Unmarshal(data, &st); err != nil {
		return RecorderState{}, nil
	}
	kept := st.Recorders[:0]
	for _, info := range st.Recorders {
		if strings.TrimSpace(info.Application) == "" || strings.TrimSpace(info.Stream) == "" {
			continue
		}
		kept = append(kept, info)
	}
	st.Recorders = kept
	return st, nil
}

// SaveRecorderState atomically replaces the recorder state on disk.
func (m *Manager) SaveRecorderState(recorders []recorder.Info) error {
	st := RecorderState{
		SavedAt:   time.Now().UTC(),
		Recorders: recorders,
	}
	if st.Recorders == nil {
		st.Recorders = []recorder.Info{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.recordersPath), 0755); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(m.recordersPath, renameio.WithPermissions(recorderStateFileMode))
	if err != nil {
		return fmt.Errorf("create pending recorder state: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			slog.Debug("cleanup pending recorder state", "error", err)
		}
	}()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("write recorder state: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace recorder state: %w", err)
	}
	return nil
}
