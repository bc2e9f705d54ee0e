package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vandvik/models"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

const (
	keyConversations = "conversations"
	keyVoicePref     = "voice-settings"
)

// SnapshotStore persists full-snapshot JSON blobs under fixed keys: the
// conversation list and the voice preference. No partial writes.
type SnapshotStore interface {
	SaveConversations(convos []models.Conversation) error
	LoadConversations() ([]models.Conversation, error)
	SaveVoicePref(pref models.VoicePref) error
	LoadVoicePref() (*models.VoicePref, error)
}

type ProviderSQL struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewProviderSQL(dbPath string, logger *slog.Logger) (*ProviderSQL, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", dbPath, err)
	}
	p := &ProviderSQL{db: db, logger: logger}
	p.Migrate()
	return p, nil
}

func (p *ProviderSQL) Close() error {
	return p.db.Close()
}

// SaveConversations writes the full list as one snapshot. An empty list is
// never persisted, so a transient empty state cannot erase prior history.
func (p *ProviderSQL) SaveConversations(convos []models.Conversation) error {
	if len(convos) == 0 {
		return nil
	}
	data, err := json.Marshal(convos)
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return p.setValue(keyConversations, string(data))
}

// LoadConversations returns nil with no error when nothing was persisted.
func (p *ProviderSQL) LoadConversations() ([]models.Conversation, error) {
	raw, ok, err := p.getValue(keyConversations)
	if err != nil || !ok {
		return nil, err
	}
	convos := []models.Conversation{}
	if err := json.Unmarshal([]byte(raw), &convos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversations: %w", err)
	}
	return convos, nil
}

func (p *ProviderSQL) SaveVoicePref(pref models.VoicePref) error {
	data, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to marshal voice pref: %w", err)
	}
	return p.setValue(keyVoicePref, string(data))
}

func (p *ProviderSQL) LoadVoicePref() (*models.VoicePref, error) {
	raw, ok, err := p.getValue(keyVoicePref)
	if err != nil || !ok {
		return nil, err
	}
	pref := &models.VoicePref{}
	if err := json.Unmarshal([]byte(raw), pref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal voice pref: %w", err)
	}
	pref.Rate = pref.ClampedRate()
	return pref, nil
}

func (p *ProviderSQL) setValue(key, value string) error {
	query := `INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES ($1, $2, $3);`
	_, err := p.db.Exec(query, key, value, time.Now())
	return err
}

func (p *ProviderSQL) getValue(key string) (string, bool, error) {
	var value string
	err := p.db.Get(&value, "SELECT value FROM kv WHERE key=$1;", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
