package httpd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/logging"
)

// AnnotationStore persists annotation envelopes between sessions, keyed
// by document fingerprint.
type AnnotationStore interface {
	// Load fetches the stored envelope for a document. The second
	// return is false when nothing has been stored yet.
	Load(ctx context.Context, fingerprint string) (annotations.Envelope, bool, error)

	// Save stores the envelope, replacing any previous one.
	Save(ctx context.Context, fingerprint string, env annotations.Envelope) error
}

// NewStore selects the annotation store backend: Supabase when the
// config carries credentials, the local filesystem otherwise.
func NewStore(cfg Config, log logging.Logger) AnnotationStore {
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		store, err := NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
		if err == nil {
			log.Info("annotation store: supabase", "url", cfg.SupabaseURL)
			return store
		}
		log.Warn("supabase store unavailable, falling back to files", "error", err)
	}
	log.Info("annotation store: filesystem", "dir", cfg.DataDir)
	return NewFileStore(cfg.DataDir)
}

// ============================================================================
// Filesystem store
// ============================================================================

// FileStore keeps one JSON envelope per document under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created
// on first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path(fingerprint string) string {
	return filepath.Join(f.dir, fingerprint+".json")
}

// Load reads the stored envelope for a document, if any.
func (f *FileStore) Load(ctx context.Context, fingerprint string) (annotations.Envelope, bool, error) {
	data, err := os.ReadFile(f.path(fingerprint))
	if os.IsNotExist(err) {
		return annotations.Envelope{}, false, nil
	}
	if err != nil {
		return annotations.Envelope{}, false, fmt.Errorf("load annotations: %w", err)
	}
	env, err := annotations.DecodeJSON(data)
	if err != nil {
		return annotations.Envelope{}, false, err
	}
	return env, true, nil
}

// Save writes the envelope to disk.
func (f *FileStore) Save(ctx context.Context, fingerprint string, env annotations.Envelope) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	if err := os.WriteFile(f.path(fingerprint), data, 0o644); err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	return nil
}

// ============================================================================
// Supabase store
// ============================================================================

// SupabaseStore keeps envelopes in a Supabase table, one row per
// document fingerprint with the envelope JSON in a payload column.
type SupabaseStore struct {
	client *supabase.Client
	table  string
}

// NewSupabaseStore connects to a Supabase project.
func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: "annotations"}, nil
}

// Load fetches the stored envelope for a document from Supabase.
func (s *SupabaseStore) Load(ctx context.Context, fingerprint string) (annotations.Envelope, bool, error) {
	data, _, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("fingerprint", fingerprint).
		Execute()
	if err != nil {
		return annotations.Envelope{}, false, fmt.Errorf("failed to load annotations: %w", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return annotations.Envelope{}, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(rows) == 0 {
		return annotations.Envelope{}, false, nil
	}

	env, err := annotations.DecodeJSON([]byte(getString(rows[0], "payload")))
	if err != nil {
		return annotations.Envelope{}, false, err
	}
	return env, true, nil
}

// Save upserts the envelope row for a document.
func (s *SupabaseStore) Save(ctx context.Context, fingerprint string, env annotations.Envelope) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}

	row := map[string]interface{}{
		"fingerprint": fingerprint,
		"payload":     string(encoded),
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	}
	_, _, err = s.client.From(s.table).
		Upsert(row, "fingerprint", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to save annotations: %w", err)
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
