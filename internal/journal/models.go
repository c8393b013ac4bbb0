package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entry is one command as it left the service. The journal is a diagnostic
// record only; nothing reads it back into session state.
type Entry struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"index:idx_session_sent,priority:1" json:"session_id"`
	SentAt    time.Time      `gorm:"index:idx_session_sent,priority:2;index:idx_sent_at" json:"sent_at"`
	Kind      string         `json:"kind"`
	Target    string         `json:"target"`
	Params    datatypes.JSON `json:"params"`
}

func (Entry) TableName() string { return "command_journal" }
