package gcpsm

import (
	"context"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
)

// API is the subset of the Secret Manager client used here. It is satisfied by
// the adapter around *secretmanager.Client and by fakes. Listing call options
// apply to every page request.
type API interface {
	ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) SecretIterator
	ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest, opts ...gax.CallOption) VersionIterator
	DisableSecretVersion(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	Close() error
}

// SecretIterator yields secrets until it returns iterator.Done.
type SecretIterator interface {
	Next() (*secretmanagerpb.Secret, error)
}

// VersionIterator yields secret versions until it returns iterator.Done.
type VersionIterator interface {
	Next() (*secretmanagerpb.SecretVersion, error)
}

type clientAPI struct {
	client *secretmanager.Client
}

func (c clientAPI) ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest, opts ...gax.CallOption) SecretIterator {
	return c.client.ListSecrets(ctx, req, opts...)
}

func (c clientAPI) ListSecretVersions(ctx context.Context, req *secretmanagerpb.ListSecretVersionsRequest, opts ...gax.CallOption) VersionIterator {
	return c.client.ListSecretVersions(ctx, req, opts...)
}

func (c clientAPI) DisableSecretVersion(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return c.client.DisableSecretVersion(ctx, req)
}

func (c clientAPI) Close() error {
	return c.client.Close()
}
