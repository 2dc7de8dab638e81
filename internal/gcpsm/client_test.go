package gcpsm_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/config"
	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/gcpsm"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/logging"
	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
	"github.com/muehlemann-popp/gcp-secrets-disabler/tests/fakes"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		ProjectID:   "my-project",
		Region:      config.DefaultRegion,
		CallTimeout: time.Second,
	}
}

func TestListSecretsDrainsAllPages(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.PageSize = 2
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		api.AddSecret("projects/my-project", id, t0)
	}
	api.AddSecret("projects/other-project", "x", t0)

	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())
	secrets, err := client.ListSecrets(context.Background())
	require.NoError(t, err)

	require.Len(t, secrets, 5)
	assert.Equal(t, 3, api.PagesServed)
	assert.Equal(t, "projects/my-project/secrets/a", secrets[0].Name)
	assert.Equal(t, "a", secrets[0].ID)
	assert.True(t, secrets[0].CreateTime.Equal(t0))
}

func TestListSecretsEmptyProject(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	secrets, err := client.ListSecrets(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, secrets)
	assert.Empty(t, secrets)
}

func TestListSecretsFailure(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.AddError("projects/my-project", fakes.GCPUnavailableError("connection reset"))
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	secrets, err := client.ListSecrets(context.Background())
	require.Error(t, err)
	assert.Nil(t, secrets)

	var retErr dserrors.RetrievalError
	require.ErrorAs(t, err, &retErr)
	assert.Equal(t, dserrors.OpListSecrets, retErr.Op)
	assert.Equal(t, "projects/my-project", retErr.Resource)
}

func TestListSecretsFailsMidway(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.ListSecretsFunc = func(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) gcpsm.SecretIterator {
		return fakes.NewFakeSecretIterator(
			[]*secretmanagerpb.Secret{{Name: req.Parent + "/secrets/a"}},
			fakes.GCPUnavailableError("page 2 lost"),
		)
	}
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	secrets, err := client.ListSecrets(context.Background())
	require.Error(t, err)
	assert.Nil(t, secrets, "partial pages must not be returned")
}

func TestListSecretsRejectedCredentials(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.AddError("projects/my-project", fakes.GCPPermissionDeniedError("caller lacks secretmanager.secrets.list"))
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	_, err := client.ListSecrets(context.Background())
	require.Error(t, err)

	var authErr dserrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "authentication", dserrors.Stage(err))

	var retErr dserrors.RetrievalError
	assert.ErrorAs(t, err, &retErr, "the failing call is still identified")
}

func TestListVersions(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.PageSize = 1
	api.AddSecretVersion("projects/my-project", "db", "1", secretmanagerpb.SecretVersion_ENABLED, t0)
	api.AddSecretVersion("projects/my-project", "db", "2", secretmanagerpb.SecretVersion_DISABLED, t0.Add(time.Hour))
	api.AddSecretVersion("projects/my-project", "db", "3", secretmanagerpb.SecretVersion_DESTROYED, t0.Add(2*time.Hour))

	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())
	secret := inventory.Secret{Name: "projects/my-project/secrets/db", ID: "db"}

	versions, err := client.ListVersions(context.Background(), secret)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, api.PagesServed)

	assert.Equal(t, "1", versions[0].ID)
	assert.Equal(t, secret.Name, versions[0].Secret)
	assert.Equal(t, inventory.StateEnabled, versions[0].State)
	assert.Equal(t, inventory.StateDisabled, versions[1].State)
	assert.Equal(t, inventory.StateDestroyed, versions[2].State)
	assert.True(t, versions[2].CreateTime.Equal(t0.Add(2*time.Hour)))
}

func TestListVersionsFailure(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.AddSecret("projects/my-project", "db", t0)
	api.AddError("projects/my-project/secrets/db", fakes.GCPResourceExhaustedError())
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	_, err := client.ListVersions(context.Background(), inventory.Secret{Name: "projects/my-project/secrets/db"})
	require.Error(t, err)

	var retErr dserrors.RetrievalError
	require.ErrorAs(t, err, &retErr)
	assert.Equal(t, dserrors.OpListVersions, retErr.Op)
	assert.Equal(t, "projects/my-project/secrets/db", retErr.Resource)
	assert.Contains(t, err.Error(), "throttled")
}

func TestRegionalParent(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.AddSecret("projects/my-project/locations/europe-west6", "regional", t0)
	api.AddSecret("projects/my-project", "global", t0)

	cfg := testConfig()
	cfg.Region = "europe-west6"
	client := gcpsm.NewClientWithAPI(api, cfg, logging.Discard())

	secrets, err := client.ListSecrets(context.Background())
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "regional", secrets[0].ID)
}

func TestDisableVersion(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	name := api.AddSecretVersion("projects/my-project", "db", "1", secretmanagerpb.SecretVersion_ENABLED, t0)
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	err := client.DisableVersion(context.Background(), inventory.Version{Name: name})
	require.NoError(t, err)
	assert.Equal(t, secretmanagerpb.SecretVersion_DISABLED, api.State(name))
	assert.Equal(t, []string{name}, api.DisableCalls)
}

func TestDisableVersionFailure(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	name := api.AddSecretVersion("projects/my-project", "db", "1", secretmanagerpb.SecretVersion_ENABLED, t0)
	api.AddError(name, fakes.GCPUnavailableError("transport"))
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	err := client.DisableVersion(context.Background(), inventory.Version{Name: name})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, secretmanagerpb.SecretVersion_ENABLED, api.State(name))
}

func TestDisableVersionHonoursCallTimeout(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.DisableSecretVersionFunc = func(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
		<-ctx.Done()
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond
	client := gcpsm.NewClientWithAPI(api, cfg, logging.Discard())

	start := time.Now()
	err := client.DisableVersion(context.Background(), inventory.Version{Name: "projects/my-project/secrets/db/versions/1"})
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDisableVersionUnexpectedState(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.DisableSecretVersionFunc = func(ctx context.Context, req *secretmanagerpb.DisableSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
		return &secretmanagerpb.SecretVersion{Name: req.Name, State: secretmanagerpb.SecretVersion_ENABLED}, nil
	}
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	err := client.DisableVersion(context.Background(), inventory.Version{Name: "projects/my-project/secrets/db/versions/1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENABLED after disable")
}

func TestClose(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())
	require.NoError(t, client.Close())
	assert.True(t, api.Closed)
}

func TestListingTimeoutAppliesPerRequest(t *testing.T) {
	t.Parallel()

	api := fakes.NewFakeGCPSecretManagerClient()
	api.PageSize = 1
	api.AddSecretVersion("projects/my-project", "db", "1", secretmanagerpb.SecretVersion_ENABLED, t0)
	api.AddSecretVersion("projects/my-project", "db", "2", secretmanagerpb.SecretVersion_ENABLED, t0)

	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())
	secrets, err := client.ListSecrets(context.Background())
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	_, err = client.ListVersions(context.Background(), secrets[0])
	require.NoError(t, err)

	want := []gax.CallOption{gax.WithTimeout(time.Second)}
	assert.Equal(t, [][]gax.CallOption{want, want}, api.ListCallOptions)
}

func TestListSecretsLeavesDeadlineToRequests(t *testing.T) {
	t.Parallel()

	var hasDeadline bool
	api := fakes.NewFakeGCPSecretManagerClient()
	api.ListSecretsFunc = func(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) gcpsm.SecretIterator {
		_, hasDeadline = ctx.Deadline()
		return fakes.NewFakeSecretIterator(nil, nil)
	}
	client := gcpsm.NewClientWithAPI(api, testConfig(), logging.Discard())

	_, err := client.ListSecrets(context.Background())
	require.NoError(t, err)
	assert.False(t, hasDeadline, "a long paginated listing must not share one deadline")
}
