// Package fakes provides test doubles for the secret pruning ports.
//
// This package contains fake implementations of external client interfaces
// that allow unit testing without a real Secret Manager project. Fakes are
// manually implemented (not generated) to provide precise control over test
// behavior.
//
// Usage:
//
//	api := fakes.NewFakeGCPSecretManagerClient()
//	api.AddSecretVersion("my-project", "db-password", "1", secretmanagerpb.SecretVersion_ENABLED, t1)
//	client := gcpsm.NewClientWithAPI(api, cfg, logger)
//
//	source := fakes.NewFakeSource().
//	    WithVersions("a", fakes.Enabled("1", t1), fakes.Disabled("2", t2))
//	pruner := prune.New(source, source, logger)
package fakes
