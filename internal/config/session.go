package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ethosengine/elohim-recovery/internal/models"
)

// Session persists coordinator state between CLI invocations: the active
// recovery request, any issued credential, and the interview currently
// being conducted. The remote doorway stays the source of truth; the
// session only remembers which ids to ask it about.
type Session struct {
	ActiveRequestID string                     `toml:"active_request_id,omitempty"`
	Credential      *models.RecoveryCredential `toml:"credential,omitempty"`
	InterviewID     string                     `toml:"interview_id,omitempty"`
	InterviewReqID  string                     `toml:"interview_request_id,omitempty"`
}

// LoadSession loads a session file. A missing file is an empty session,
// not an error.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &s, nil
}

// Save writes the session to disk.
func (s *Session) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
