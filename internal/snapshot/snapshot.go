// Package snapshot persists a project listing to two local JSON files and
// replays it in place of the live service.
package snapshot

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

const formatVersion = 1

var (
	//go:embed schemas/secrets.schema.json
	secretsSchema string
	//go:embed schemas/versions.schema.json
	versionsSchema string
)

type secretsFile struct {
	Kind    string             `json:"kind"`
	Version int                `json:"version"`
	SavedAt time.Time          `json:"saved_at"`
	Secrets []inventory.Secret `json:"secrets"`
}

type versionsFile struct {
	Kind     string                         `json:"kind"`
	Version  int                            `json:"version"`
	SavedAt  time.Time                      `json:"saved_at"`
	Versions map[string][]inventory.Version `json:"versions"`
}

// Store reads and writes the secrets and versions artifacts.
type Store struct {
	secretsPath  string
	versionsPath string
	now          func() time.Time
}

// NewStore creates a store for the two artifact paths.
func NewStore(secretsPath, versionsPath string) *Store {
	return &Store{
		secretsPath:  secretsPath,
		versionsPath: versionsPath,
		now:          time.Now,
	}
}

// Paths returns the secrets and versions artifact paths.
func (s *Store) Paths() (string, string) {
	return s.secretsPath, s.versionsPath
}

// Record saves ds. It lets a Store be used as the pruner's snapshot recorder.
func (s *Store) Record(ds *inventory.Dataset) error {
	return s.Save(ds)
}

// Save writes ds to both artifacts. Each file is replaced atomically; the last
// write wins.
func (s *Store) Save(ds *inventory.Dataset) error {
	savedAt := s.now().UTC()

	secrets := ds.Secrets
	if secrets == nil {
		secrets = []inventory.Secret{}
	}
	versions := make(map[string][]inventory.Version, len(ds.Versions))
	for name, vs := range ds.Versions {
		if vs == nil {
			vs = []inventory.Version{}
		}
		versions[name] = vs
	}

	if err := writeJSON(s.secretsPath, secretsFile{
		Kind:    "secrets",
		Version: formatVersion,
		SavedAt: savedAt,
		Secrets: secrets,
	}); err != nil {
		return dserrors.SnapshotError{Op: dserrors.OpSave, Path: s.secretsPath, Err: err}
	}

	if err := writeJSON(s.versionsPath, versionsFile{
		Kind:     "versions",
		Version:  formatVersion,
		SavedAt:  savedAt,
		Versions: versions,
	}); err != nil {
		return dserrors.SnapshotError{Op: dserrors.OpSave, Path: s.versionsPath, Err: err}
	}

	return nil
}

// Load reads both artifacts. Missing, unreadable or malformed files are a
// SnapshotError; there is no fallback.
func (s *Store) Load() (*inventory.Dataset, error) {
	var sf secretsFile
	if err := readJSON(s.secretsPath, secretsSchema, &sf); err != nil {
		return nil, dserrors.SnapshotError{Op: dserrors.OpLoad, Path: s.secretsPath, Err: err}
	}

	var vf versionsFile
	if err := readJSON(s.versionsPath, versionsSchema, &vf); err != nil {
		return nil, dserrors.SnapshotError{Op: dserrors.OpLoad, Path: s.versionsPath, Err: err}
	}

	ds := inventory.NewDataset()
	ds.Secrets = append(ds.Secrets, sf.Secrets...)
	for name, vs := range vf.Versions {
		ds.Versions[name] = vs
	}
	return ds, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

func readJSON(path, schema string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist")
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("not a valid JSON document: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("schema validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return nil
}

// Source replays a loaded dataset as an inventory.Source.
type Source struct {
	ds *inventory.Dataset
}

// NewSource wraps ds.
func NewSource(ds *inventory.Dataset) *Source {
	return &Source{ds: ds}
}

// ListSecrets returns the recorded secrets.
func (s *Source) ListSecrets(ctx context.Context) ([]inventory.Secret, error) {
	out := make([]inventory.Secret, len(s.ds.Secrets))
	copy(out, s.ds.Secrets)
	return out, nil
}

// ListVersions returns the recorded versions of secret. A secret whose
// versions were not recorded (its listing failed when the snapshot was taken)
// is reported as a retrieval failure.
func (s *Source) ListVersions(ctx context.Context, secret inventory.Secret) ([]inventory.Version, error) {
	vs, ok := s.ds.Versions[secret.Name]
	if !ok {
		return nil, dserrors.RetrievalError{
			Op:       dserrors.OpListVersions,
			Resource: secret.Name,
			Err:      fmt.Errorf("no versions recorded in snapshot"),
		}
	}
	out := make([]inventory.Version, len(vs))
	copy(out, vs)
	return out, nil
}
