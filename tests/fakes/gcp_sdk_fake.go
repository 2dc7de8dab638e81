package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/gcpsm"
)

// FakeGCPSecretManagerClient is an in-memory implementation of gcpsm.API.
type FakeGCPSecretManagerClient struct {
	// Secrets maps full resource names (projects/X/secrets/Y) to their data
	Secrets map[string]*GCPSecretData
	// Versions maps version resource names (projects/X/secrets/Y/versions/Z) to their data
	Versions map[string]*GCPSecretVersionData
	// Errors maps resource names to errors to return. For listings the key is
	// the request parent.
	Errors map[string]error
	// PageSize splits listings into pages of this many items (0 means one page)
	PageSize int
	// ListSecretsFunc allows custom behavior for ListSecrets
	ListSecretsFunc func(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) gcpsm.SecretIterator
	// DisableSecretVersionFunc allows custom behavior for DisableSecretVersion
	DisableSecretVersionFunc func(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)

	// DisableCalls records the version names passed to DisableSecretVersion
	DisableCalls []string
	// ListCallOptions records the call options of every listing request
	ListCallOptions [][]gax.CallOption
	// PagesServed counts pages handed out by iterators
	PagesServed int
	Closed      bool

	mu sync.Mutex
}

// GCPSecretData holds the data for a mock GCP secret
type GCPSecretData struct {
	Name       string
	CreateTime *timestamppb.Timestamp
	Labels     map[string]string
}

// GCPSecretVersionData holds version-specific data for a GCP secret
type GCPSecretVersionData struct {
	Name       string
	State      secretmanagerpb.SecretVersion_State
	CreateTime *timestamppb.Timestamp
}

// NewFakeGCPSecretManagerClient creates a new mock GCP Secret Manager client
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Secrets:  make(map[string]*GCPSecretData),
		Versions: make(map[string]*GCPSecretVersionData),
		Errors:   make(map[string]error),
	}
}

var _ gcpsm.API = (*FakeGCPSecretManagerClient)(nil)

// AddSecret adds a secret under parent (projects/X or projects/X/locations/Y)
func (f *FakeGCPSecretManagerClient) AddSecret(parent, secretID string, created time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	fullName := fmt.Sprintf("%s/secrets/%s", parent, secretID)
	f.Secrets[fullName] = &GCPSecretData{
		Name:       fullName,
		CreateTime: timestamppb.New(created),
		Labels:     map[string]string{},
	}
	return fullName
}

// AddSecretVersion adds a version, creating the secret if needed
func (f *FakeGCPSecretManagerClient) AddSecretVersion(parent, secretID, version string, state secretmanagerpb.SecretVersion_State, created time.Time) string {
	secretName := fmt.Sprintf("%s/secrets/%s", parent, secretID)
	f.mu.Lock()
	_, exists := f.Secrets[secretName]
	f.mu.Unlock()
	if !exists {
		f.AddSecret(parent, secretID, created)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	versionName := fmt.Sprintf("%s/versions/%s", secretName, version)
	f.Versions[versionName] = &GCPSecretVersionData{
		Name:       versionName,
		State:      state,
		CreateTime: timestamppb.New(created),
	}
	return versionName
}

// AddError configures the mock to return an error for a specific resource
func (f *FakeGCPSecretManagerClient) AddError(resourceName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[resourceName] = err
}

// State returns the current state of a version
func (f *FakeGCPSecretManagerClient) State(versionName string) secretmanagerpb.SecretVersion_State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.Versions[versionName]; ok {
		return v.State
	}
	return secretmanagerpb.SecretVersion_STATE_UNSPECIFIED
}

// ListSecrets mocks the ListSecrets operation
func (f *FakeGCPSecretManagerClient) ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) gcpsm.SecretIterator {
	f.recordListOptions(opts)
	if f.ListSecretsFunc != nil {
		return f.ListSecretsFunc(ctx, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Parent]; exists {
		return &FakeIterator[*secretmanagerpb.Secret]{err: err}
	}

	prefix := req.Parent + "/secrets/"
	var names []string
	for name := range f.Secrets {
		rest := strings.TrimPrefix(name, prefix)
		if strings.HasPrefix(name, prefix) && !strings.Contains(rest, "/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	secrets := make([]*secretmanagerpb.Secret, 0, len(names))
	for _, name := range names {
		data := f.Secrets[name]
		secrets = append(secrets, &secretmanagerpb.Secret{
			Name:       data.Name,
			CreateTime: data.CreateTime,
			Labels:     data.Labels,
		})
	}

	return &FakeIterator[*secretmanagerpb.Secret]{ctx: ctx, pages: paginate(secrets, f.PageSize), owner: f}
}

// ListSecretVersions mocks the ListSecretVersions operation
func (f *FakeGCPSecretManagerClient) ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest, opts ...gax.CallOption) gcpsm.VersionIterator {
	f.recordListOptions(opts)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Parent]; exists {
		return &FakeIterator[*secretmanagerpb.SecretVersion]{err: err}
	}
	if _, exists := f.Secrets[req.Parent]; !exists {
		return &FakeIterator[*secretmanagerpb.SecretVersion]{err: status.Errorf(codes.NotFound, "Secret %s not found", req.Parent)}
	}

	prefix := req.Parent + "/versions/"
	var names []string
	for name := range f.Versions {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	versions := make([]*secretmanagerpb.SecretVersion, 0, len(names))
	for _, name := range names {
		data := f.Versions[name]
		versions = append(versions, &secretmanagerpb.SecretVersion{
			Name:       data.Name,
			State:      data.State,
			CreateTime: data.CreateTime,
		})
	}

	return &FakeIterator[*secretmanagerpb.SecretVersion]{ctx: ctx, pages: paginate(versions, f.PageSize), owner: f}
}

// DisableSecretVersion mocks the DisableSecretVersion operation
func (f *FakeGCPSecretManagerClient) DisableSecretVersion(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	f.DisableCalls = append(f.DisableCalls, req.Name)
	custom := f.DisableSecretVersionFunc
	f.mu.Unlock()

	if custom != nil {
		return custom(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[req.Name]; exists {
		return nil, err
	}

	version, exists := f.Versions[req.Name]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret version %s not found", req.Name)
	}
	if version.State == secretmanagerpb.SecretVersion_DESTROYED {
		return nil, status.Errorf(codes.FailedPrecondition, "Secret version %s is destroyed", req.Name)
	}

	version.State = secretmanagerpb.SecretVersion_DISABLED

	return &secretmanagerpb.SecretVersion{
		Name:       version.Name,
		CreateTime: version.CreateTime,
		State:      version.State,
	}, nil
}

// Close marks the client closed
func (f *FakeGCPSecretManagerClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakeGCPSecretManagerClient) recordListOptions(opts []gax.CallOption) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCallOptions = append(f.ListCallOptions, opts)
}

func (f *FakeGCPSecretManagerClient) pageServed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PagesServed++
}

// FakeIterator walks pre-built pages and returns iterator.Done at the end
type FakeIterator[T any] struct {
	ctx   context.Context
	pages [][]T
	page  int
	index int
	err   error
	owner *FakeGCPSecretManagerClient
}

// Next returns the next item in the iteration
func (it *FakeIterator[T]) Next() (T, error) {
	var zero T
	if it.err != nil {
		return zero, it.err
	}
	if it.ctx != nil {
		if err := it.ctx.Err(); err != nil {
			return zero, status.FromContextError(err).Err()
		}
	}

	for it.page < len(it.pages) && it.index >= len(it.pages[it.page]) {
		it.page++
		it.index = 0
	}
	if it.page >= len(it.pages) {
		return zero, iterator.Done
	}
	if it.index == 0 && it.owner != nil {
		it.owner.pageServed()
	}

	item := it.pages[it.page][it.index]
	it.index++
	return item, nil
}

// NewFakeSecretIterator creates an iterator that fails with err after
// yielding secrets
func NewFakeSecretIterator(secrets []*secretmanagerpb.Secret, err error) *FailingIterator[*secretmanagerpb.Secret] {
	return &FailingIterator[*secretmanagerpb.Secret]{items: secrets, err: err}
}

// FailingIterator yields items then returns err (or iterator.Done if err is nil)
type FailingIterator[T any] struct {
	items []T
	index int
	err   error
}

// Next returns the next item in the iteration
func (it *FailingIterator[T]) Next() (T, error) {
	var zero T
	if it.index < len(it.items) {
		item := it.items[it.index]
		it.index++
		return item, nil
	}
	if it.err != nil {
		return zero, it.err
	}
	return zero, iterator.Done
}

func paginate[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	var pages [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, items[start:end])
	}
	return pages
}

// GCP error helpers

// GCPNotFoundError creates a mock GCP not found error
func GCPNotFoundError(resourceName string) error {
	return status.Errorf(codes.NotFound, "Resource %s not found", resourceName)
}

// GCPPermissionDeniedError creates a mock GCP permission denied error
func GCPPermissionDeniedError(message string) error {
	return status.Error(codes.PermissionDenied, message)
}

// GCPUnauthenticatedError creates a mock GCP unauthenticated error
func GCPUnauthenticatedError(message string) error {
	return status.Error(codes.Unauthenticated, message)
}

// GCPUnavailableError creates a mock transport failure
func GCPUnavailableError(message string) error {
	return status.Error(codes.Unavailable, message)
}

// GCPResourceExhaustedError creates a mock GCP resource exhausted (throttled) error
func GCPResourceExhaustedError() error {
	return status.Errorf(codes.ResourceExhausted, "Quota exceeded")
}
