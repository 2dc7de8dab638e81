package gcpsm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/config"
	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/secure"
)

const serviceAccountType = "service_account"

// Credentials holds a service-account key file. The raw JSON stays encrypted
// in a secure buffer until a client is built from it.
type Credentials struct {
	Path        string
	ClientEmail string
	ProjectID   string

	key *secure.SecureBuffer
}

type serviceAccountKey struct {
	Type        string          `json:"type"`
	ProjectID   string          `json:"project_id"`
	ClientEmail string          `json:"client_email"`
	PrivateKey  json.RawMessage `json:"private_key"`
}

// hasPrivateKey reports whether private_key is a non-empty JSON string, then
// wipes the raw copy.
func (k *serviceAccountKey) hasPrivateKey() bool {
	defer memguard.WipeBytes(k.PrivateKey)
	raw := bytes.TrimSpace(k.PrivateKey)
	return len(raw) > 2 && raw[0] == '"'
}

// LoadCredentials reads and checks the service-account key at path.
func LoadCredentials(path string) (*Credentials, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, dserrors.AuthError{Path: path, Message: "failed to get home directory", Err: err}
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dserrors.AuthError{
				Path:    path,
				Message: "credentials file not found",
				Suggestion: fmt.Sprintf("Provide a valid credentials file path in %s or place the file at %s",
					config.KeyCredentialsPath, config.DefaultCredentialsPath),
			}
		}
		return nil, dserrors.AuthError{
			Path:       path,
			Message:    "failed to read credentials file",
			Suggestion: "Check file permissions",
			Err:        err,
		}
	}

	var key serviceAccountKey
	err = json.Unmarshal(data, &key)
	hasKey := key.hasPrivateKey()
	if err != nil {
		memguard.WipeBytes(data)
		return nil, dserrors.AuthError{
			Path:       path,
			Message:    "credentials file is not valid JSON",
			Suggestion: "Download a new JSON key for the service account",
		}
	}

	switch {
	case key.Type != serviceAccountType:
		memguard.WipeBytes(data)
		return nil, dserrors.AuthError{
			Path:       path,
			Message:    fmt.Sprintf("unsupported credential type %q", key.Type),
			Suggestion: "Use a service-account key (type \"service_account\")",
		}
	case key.ClientEmail == "" || !hasKey:
		memguard.WipeBytes(data)
		return nil, dserrors.AuthError{
			Path:       path,
			Message:    "credentials file is missing client_email or private_key",
			Suggestion: "Download a new JSON key for the service account",
		}
	}

	buf, err := secure.NewSecureBuffer(data)
	if err != nil {
		return nil, dserrors.AuthError{Path: path, Message: "credentials file is empty", Err: err}
	}
	return &Credentials{
		Path:        path,
		ClientEmail: key.ClientEmail,
		ProjectID:   key.ProjectID,
		key:         buf,
	}, nil
}

// Destroy drops the encrypted key. Credentials cannot build a client after
// Destroy.
func (c *Credentials) Destroy() {
	if c != nil && c.key != nil {
		c.key.Destroy()
	}
}

// open decrypts the key JSON. The caller must Destroy the returned buffer.
func (c *Credentials) open() (*memguard.LockedBuffer, error) {
	if c == nil || c.key == nil {
		return nil, dserrors.AuthError{Message: "credentials were not loaded"}
	}
	buf, err := c.key.Open()
	if err != nil {
		return nil, dserrors.AuthError{Path: c.Path, Message: "failed to open credentials", Err: err}
	}
	return buf, nil
}
