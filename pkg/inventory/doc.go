// Package inventory defines the data model and ports used to prune secret versions.
//
// A Secret is a named container in Google Cloud Secret Manager and a Version is
// one payload revision of it with a lifecycle State. Both are read-only views:
// their lifecycle is owned by the backing service.
//
// Two ports decouple the pruning logic from where the data comes from and how
// versions are disabled:
//
//   - Source lists secrets and their versions. Implementations exist for the
//     live service (internal/gcpsm), for local snapshot files
//     (internal/snapshot) and for in-memory fixtures (tests/fakes).
//   - Disabler transitions a single version from ENABLED to DISABLED.
//
// A Dataset bundles a full listing so it can be persisted and replayed.
package inventory
