package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Retrieval operations, used in RetrievalError.Op.
const (
	OpListSecrets  = "list-secrets"
	OpListVersions = "list-versions"
)

// Snapshot operations, used in SnapshotError.Op.
const (
	OpSave = "save"
	OpLoad = "load"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a missing or invalid run option. It is raised before
// any call to the backing service.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// AuthError reports that the service-account credential could not be loaded
// or was rejected.
type AuthError struct {
	Path       string
	Message    string
	Suggestion string
	Err        error
}

func (e AuthError) Error() string {
	msg := "Authentication error"
	if e.Path != "" {
		msg += fmt.Sprintf(" for credentials '%s'", e.Path)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

func (e AuthError) Unwrap() error {
	return e.Err
}

// RetrievalError reports a failed listing call. Op identifies the call and
// Resource the parent that was listed.
type RetrievalError struct {
	Op       string
	Resource string
	Err      error
}

func (e RetrievalError) Error() string {
	msg := fmt.Sprintf("%s failed for %s: %v", e.Op, e.Resource, e.Err)
	if s := GCPSuggestion(e.Err); s != "" {
		msg += "\n  💡 " + s
	}
	return msg
}

func (e RetrievalError) Unwrap() error {
	return e.Err
}

// DisableError reports that a single version could not be disabled.
type DisableError struct {
	Secret  string
	Version string
	Err     error
}

func (e DisableError) Error() string {
	return fmt.Sprintf("disable %s version %s: %v", e.Secret, e.Version, e.Err)
}

func (e DisableError) Unwrap() error {
	return e.Err
}

// SnapshotError reports a failure reading or writing a snapshot artifact.
type SnapshotError struct {
	Op   string
	Path string
	Err  error
}

func (e SnapshotError) Error() string {
	msg := fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
	if e.Op == OpLoad {
		msg += "\n  💡 Cannot proceed without source data. Run once with READ_FROM_SNAPSHOT=false and SAVE_SNAPSHOT=true to create it"
	}
	return msg
}

func (e SnapshotError) Unwrap() error {
	return e.Err
}

// Stage names the pipeline stage an error belongs to, for the final message.
func Stage(err error) string {
	var (
		cfgErr  ConfigError
		authErr AuthError
		retErr  RetrievalError
		disErr  DisableError
		snapErr SnapshotError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &authErr):
		return "authentication"
	case errors.As(err, &snapErr):
		return "snapshot"
	case errors.As(err, &retErr):
		return "retrieval"
	case errors.As(err, &disErr):
		return "disable"
	default:
		return "run"
	}
}

// IsAuthFailure reports whether err carries a gRPC status that means the
// credentials were rejected.
func IsAuthFailure(err error) bool {
	switch grpcCode(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return true
	default:
		return false
	}
}

// GCPSuggestion provides helpful suggestions based on Secret Manager errors
func GCPSuggestion(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The call timed out. Check connectivity or raise CALL_TIMEOUT"
	}

	switch grpcCode(err) {
	case codes.PermissionDenied:
		return "Check IAM permissions: secretmanager.secrets.list, secretmanager.versions.list, secretmanager.versions.disable"
	case codes.NotFound:
		return "Verify the project ID and region. Check that the secret exists"
	case codes.Unauthenticated:
		return "Check the service-account key in GCP_CREDENTIALS_PATH"
	case codes.InvalidArgument:
		return "Check the project ID format"
	case codes.ResourceExhausted:
		return "Request was throttled. Wait a moment and run again"
	case codes.DeadlineExceeded:
		return "The call timed out. Check connectivity or raise CALL_TIMEOUT"
	case codes.Unavailable:
		return "Secret Manager is unreachable. Check your network and the region endpoint"
	default:
		return ""
	}
}

// grpcCode digs the first gRPC status out of an error chain.
func grpcCode(err error) codes.Code {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if s, ok := status.FromError(e); ok {
			return s.Code()
		}
	}
	return codes.Unknown
}
