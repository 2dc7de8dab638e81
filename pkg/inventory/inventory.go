package inventory

import (
	"context"
	"strings"
	"time"
)

// State is the lifecycle state of a secret version.
type State string

const (
	StateUnspecified State = "STATE_UNSPECIFIED"
	StateEnabled     State = "ENABLED"
	StateDisabled    State = "DISABLED"
	StateDestroyed   State = "DESTROYED"
)

// ParseState maps a state name to a State. Unknown names map to StateUnspecified.
func ParseState(s string) State {
	switch State(strings.ToUpper(strings.TrimSpace(s))) {
	case StateEnabled:
		return StateEnabled
	case StateDisabled:
		return StateDisabled
	case StateDestroyed:
		return StateDestroyed
	default:
		return StateUnspecified
	}
}

// Secret is a project-scoped secret.
type Secret struct {
	// Name is the full resource name, e.g. projects/my-project/secrets/db-password.
	Name       string            `json:"name" yaml:"name"`
	ID         string            `json:"id" yaml:"id"`
	CreateTime time.Time         `json:"create_time" yaml:"create_time"`
	Labels     map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Version is one revision of a secret.
type Version struct {
	// Name is the full resource name, e.g. projects/my-project/secrets/db-password/versions/3.
	Name       string    `json:"name" yaml:"name"`
	Secret     string    `json:"secret" yaml:"secret"`
	ID         string    `json:"id" yaml:"id"`
	State      State     `json:"state" yaml:"state"`
	CreateTime time.Time `json:"create_time" yaml:"create_time"`
}

// Enabled reports whether the version is currently ENABLED.
func (v Version) Enabled() bool {
	return v.State == StateEnabled
}

// Source lists secrets and their versions.
//
// ListSecrets returns an empty slice and a nil error when the project has no
// secrets; a listing failure is always reported as an error.
type Source interface {
	ListSecrets(ctx context.Context) ([]Secret, error)
	ListVersions(ctx context.Context, secret Secret) ([]Version, error)
}

// Disabler disables a single secret version.
type Disabler interface {
	DisableVersion(ctx context.Context, version Version) error
}

// Dataset is a complete listing of a project: every secret and, keyed by the
// secret's Name, every version of it.
type Dataset struct {
	Secrets  []Secret             `json:"secrets"`
	Versions map[string][]Version `json:"versions"`
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Secrets:  []Secret{},
		Versions: make(map[string][]Version),
	}
}

// VersionCount returns the total number of versions across all secrets.
func (d *Dataset) VersionCount() int {
	n := 0
	for _, vs := range d.Versions {
		n += len(vs)
	}
	return n
}

// ShortName returns the last path segment of a resource name.
func ShortName(resourceName string) string {
	if i := strings.LastIndex(resourceName, "/"); i >= 0 {
		return resourceName[i+1:]
	}
	return resourceName
}

// SecretName returns the owning secret resource name of a version resource name,
// e.g. projects/p/secrets/s for projects/p/secrets/s/versions/2.
func SecretName(versionName string) string {
	if i := strings.Index(versionName, "/versions/"); i >= 0 {
		return versionName[:i]
	}
	return versionName
}
