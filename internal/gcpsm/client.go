package gcpsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/config"
	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/logging"
	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

// Client lists and disables secret versions of one project. It implements
// inventory.Source and inventory.Disabler.
type Client struct {
	api     API
	parent  string
	timeout time.Duration
	logger  *logging.Logger
}

// NewClient connects to Secret Manager with the given service-account
// credentials, honouring the configured region.
func NewClient(ctx context.Context, cfg config.Config, creds *Credentials, logger *logging.Logger) (*Client, error) {
	key, err := creds.open()
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	sm, err := secretmanager.NewClient(ctx, clientOptions(cfg, key.Bytes())...)
	if err != nil {
		return nil, dserrors.AuthError{
			Path:       creds.Path,
			Message:    "failed to create Secret Manager client",
			Suggestion: "Check that the key is valid and has not been revoked",
			Err:        err,
		}
	}

	logger.Debug("Connected to Secret Manager as %s (parent %s)", creds.ClientEmail, cfg.Parent())
	return NewClientWithAPI(clientAPI{client: sm}, cfg, logger), nil
}

func clientOptions(cfg config.Config, keyJSON []byte) []option.ClientOption {
	opts := []option.ClientOption{option.WithAuthCredentialsJSON(option.ServiceAccount, keyJSON)}
	if endpoint := cfg.Endpoint(); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// NewClientWithAPI builds a Client over an existing API implementation.
func NewClientWithAPI(api API, cfg config.Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = config.DefaultCallTimeout
	}
	return &Client{
		api:     api,
		parent:  cfg.Parent(),
		timeout: timeout,
		logger:  logger,
	}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// ListSecrets returns every secret under the configured parent, across all
// result pages. The call timeout bounds each page request, not the listing.
func (c *Client) ListSecrets(ctx context.Context) ([]inventory.Secret, error) {
	it := c.api.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: c.parent}, gax.WithTimeout(c.timeout))

	secrets := []inventory.Secret{}
	for {
		s, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			retErr := dserrors.RetrievalError{Op: dserrors.OpListSecrets, Resource: c.parent, Err: err}
			if dserrors.IsAuthFailure(err) {
				return nil, dserrors.AuthError{
					Message:    "Secret Manager rejected the credentials",
					Suggestion: dserrors.GCPSuggestion(err),
					Err:        retErr,
				}
			}
			return nil, retErr
		}
		secrets = append(secrets, secretFromProto(s))
	}

	c.logger.Debug("Listed %d secrets under %s", len(secrets), c.parent)
	return secrets, nil
}

// ListVersions returns every version of secret, across all result pages.
func (c *Client) ListVersions(ctx context.Context, secret inventory.Secret) ([]inventory.Version, error) {
	it := c.api.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{Parent: secret.Name}, gax.WithTimeout(c.timeout))

	versions := []inventory.Version{}
	for {
		v, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, dserrors.RetrievalError{Op: dserrors.OpListVersions, Resource: secret.Name, Err: err}
		}
		versions = append(versions, versionFromProto(v))
	}

	c.logger.Debug("Listed %d versions of %s", len(versions), secret.ID)
	return versions, nil
}

// DisableVersion transitions version to DISABLED.
func (c *Client) DisableVersion(ctx context.Context, version inventory.Version) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.DisableSecretVersion(ctx, &secretmanagerpb.DisableSecretVersionRequest{Name: version.Name})
	if err != nil {
		return err
	}
	if resp != nil && resp.GetState() != secretmanagerpb.SecretVersion_DISABLED {
		return fmt.Errorf("version %s is %s after disable", version.Name, resp.GetState())
	}
	return nil
}

func secretFromProto(s *secretmanagerpb.Secret) inventory.Secret {
	out := inventory.Secret{
		Name:   s.GetName(),
		ID:     inventory.ShortName(s.GetName()),
		Labels: s.GetLabels(),
	}
	if s.GetCreateTime() != nil {
		out.CreateTime = s.GetCreateTime().AsTime()
	}
	return out
}

func versionFromProto(v *secretmanagerpb.SecretVersion) inventory.Version {
	out := inventory.Version{
		Name:   v.GetName(),
		Secret: inventory.SecretName(v.GetName()),
		ID:     inventory.ShortName(v.GetName()),
		State:  inventory.ParseState(v.GetState().String()),
	}
	if v.GetCreateTime() != nil {
		out.CreateTime = v.GetCreateTime().AsTime()
	}
	return out
}
