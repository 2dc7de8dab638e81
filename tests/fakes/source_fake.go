package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

// FakeProject is the project used for resource names built by FakeSource.
const FakeProject = "fake-project"

// FakeSource is an in-memory inventory.Source and inventory.Disabler.
//
// Disabling a version changes its state in place, so running a pruner twice
// against the same FakeSource observes the first run's effects.
//
// Example usage:
//
//	src := fakes.NewFakeSource().
//	    WithVersions("A", fakes.Enabled("1", t1), fakes.Enabled("2", t2)).
//	    WithDisableError("A", "1", errors.New("transport"))
type FakeSource struct {
	secrets  []inventory.Secret
	versions map[string][]inventory.Version

	listErr     error
	versionErrs map[string]error
	disableErrs map[string]error

	disableCalls []string

	mu sync.Mutex
}

// VersionSpec describes a version to add to a FakeSource.
type VersionSpec struct {
	ID      string
	State   inventory.State
	Created time.Time
}

// Enabled builds an ENABLED VersionSpec.
func Enabled(id string, created time.Time) VersionSpec {
	return VersionSpec{ID: id, State: inventory.StateEnabled, Created: created}
}

// Disabled builds a DISABLED VersionSpec.
func Disabled(id string, created time.Time) VersionSpec {
	return VersionSpec{ID: id, State: inventory.StateDisabled, Created: created}
}

// Destroyed builds a DESTROYED VersionSpec.
func Destroyed(id string, created time.Time) VersionSpec {
	return VersionSpec{ID: id, State: inventory.StateDestroyed, Created: created}
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		versions:    make(map[string][]inventory.Version),
		versionErrs: make(map[string]error),
		disableErrs: make(map[string]error),
	}
}

// SecretName returns the resource name FakeSource uses for secretID.
func SecretName(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", FakeProject, secretID)
}

// VersionName returns the resource name FakeSource uses for a version.
func VersionName(secretID, versionID string) string {
	return fmt.Sprintf("%s/versions/%s", SecretName(secretID), versionID)
}

// WithVersions adds a secret and its versions.
func (f *FakeSource) WithVersions(secretID string, specs ...VersionSpec) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := SecretName(secretID)
	f.secrets = append(f.secrets, inventory.Secret{Name: name, ID: secretID})

	versions := make([]inventory.Version, 0, len(specs))
	for _, s := range specs {
		versions = append(versions, inventory.Version{
			Name:       VersionName(secretID, s.ID),
			Secret:     name,
			ID:         s.ID,
			State:      s.State,
			CreateTime: s.Created,
		})
	}
	f.versions[name] = versions
	return f
}

// WithListError makes ListSecrets fail.
func (f *FakeSource) WithListError(err error) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
	return f
}

// WithVersionsError makes ListVersions fail for secretID.
func (f *FakeSource) WithVersionsError(secretID string, err error) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionErrs[SecretName(secretID)] = err
	return f
}

// WithDisableError makes DisableVersion fail for one version.
func (f *FakeSource) WithDisableError(secretID, versionID string, err error) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disableErrs[VersionName(secretID, versionID)] = err
	return f
}

// ListSecrets implements inventory.Source.
func (f *FakeSource) ListSecrets(ctx context.Context) ([]inventory.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, dserrors.RetrievalError{Op: dserrors.OpListSecrets, Resource: "projects/" + FakeProject, Err: f.listErr}
	}
	out := make([]inventory.Secret, len(f.secrets))
	copy(out, f.secrets)
	return out, nil
}

// ListVersions implements inventory.Source.
func (f *FakeSource) ListVersions(ctx context.Context, secret inventory.Secret) ([]inventory.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.versionErrs[secret.Name]; ok {
		return nil, dserrors.RetrievalError{Op: dserrors.OpListVersions, Resource: secret.Name, Err: err}
	}
	vs := f.versions[secret.Name]
	out := make([]inventory.Version, len(vs))
	copy(out, vs)
	return out, nil
}

// DisableVersion implements inventory.Disabler.
func (f *FakeSource) DisableVersion(ctx context.Context, version inventory.Version) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disableCalls = append(f.disableCalls, version.Name)
	if err, ok := f.disableErrs[version.Name]; ok {
		return err
	}

	vs := f.versions[version.Secret]
	for i := range vs {
		if vs[i].Name == version.Name {
			vs[i].State = inventory.StateDisabled
			return nil
		}
	}
	return fmt.Errorf("version %s not found", version.Name)
}

// DisableCalls returns the version names DisableVersion was called with.
func (f *FakeSource) DisableCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.disableCalls))
	copy(out, f.disableCalls)
	return out
}

// EnabledVersions returns the IDs of the currently ENABLED versions of secretID, sorted.
func (f *FakeSource) EnabledVersions(secretID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for _, v := range f.versions[SecretName(secretID)] {
		if v.Enabled() {
			ids = append(ids, v.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Dataset returns a copy of the current data.
func (f *FakeSource) Dataset() *inventory.Dataset {
	f.mu.Lock()
	defer f.mu.Unlock()

	ds := inventory.NewDataset()
	ds.Secrets = append(ds.Secrets, f.secrets...)
	for name, vs := range f.versions {
		cp := make([]inventory.Version, len(vs))
		copy(cp, vs)
		ds.Versions[name] = cp
	}
	return ds
}
