package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
)

// Keys under which options are looked up in viper. Each key is also the
// environment variable name.
const (
	KeyProjectID        = "GCP_PROJECT_ID"
	KeyRegion           = "GCP_REGION"
	KeyCredentialsPath  = "GCP_CREDENTIALS_PATH"
	KeyDryRun           = "DRY_RUN"
	KeySaveSnapshot     = "SAVE_SNAPSHOT"
	KeyReadSnapshot     = "READ_FROM_SNAPSHOT"
	KeySnapshotSecrets  = "SNAPSHOT_SECRETS_PATH"
	KeySnapshotVersions = "SNAPSHOT_VERSIONS_PATH"
	KeyCallTimeout      = "CALL_TIMEOUT"
	KeyOutputFormat     = "OUTPUT_FORMAT"
	KeyMetricsFile      = "METRICS_FILE"
	KeyDebug            = "DEBUG"
	KeyNoColor          = "NO_COLOR"
)

// Defaults
const (
	DefaultRegion           = "global"
	DefaultCredentialsPath  = "./var/gcp_access_key.json"
	DefaultSnapshotSecrets  = "./var/data_secrets.json"
	DefaultSnapshotVersions = "./var/data_secrets_versions.json"
	DefaultCallTimeout      = 30 * time.Second
)

// Output formats for the run summary.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config is the run configuration. It is built once by Load and passed by
// value; nothing mutates it afterwards.
type Config struct {
	ProjectID        string
	Region           string
	CredentialsPath  string
	DryRun           bool
	SaveSnapshot     bool
	ReadFromSnapshot bool
	SnapshotSecrets  string
	SnapshotVersions string
	CallTimeout      time.Duration
	OutputFormat     string
	MetricsFile      string
	Debug            bool
	NoColor          bool
}

// SetDefaults registers the default value of every option on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyRegion, DefaultRegion)
	v.SetDefault(KeyCredentialsPath, DefaultCredentialsPath)
	v.SetDefault(KeyDryRun, true)
	v.SetDefault(KeySaveSnapshot, true)
	v.SetDefault(KeyReadSnapshot, false)
	v.SetDefault(KeySnapshotSecrets, DefaultSnapshotSecrets)
	v.SetDefault(KeySnapshotVersions, DefaultSnapshotVersions)
	v.SetDefault(KeyCallTimeout, DefaultCallTimeout)
	v.SetDefault(KeyOutputFormat, FormatText)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyNoColor, false)
}

// Load builds and validates a Config from v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		ProjectID:        strings.TrimSpace(v.GetString(KeyProjectID)),
		Region:           strings.TrimSpace(v.GetString(KeyRegion)),
		CredentialsPath:  strings.TrimSpace(v.GetString(KeyCredentialsPath)),
		DryRun:           v.GetBool(KeyDryRun),
		SaveSnapshot:     v.GetBool(KeySaveSnapshot),
		ReadFromSnapshot: v.GetBool(KeyReadSnapshot),
		SnapshotSecrets:  strings.TrimSpace(v.GetString(KeySnapshotSecrets)),
		SnapshotVersions: strings.TrimSpace(v.GetString(KeySnapshotVersions)),
		CallTimeout:      v.GetDuration(KeyCallTimeout),
		OutputFormat:     strings.ToLower(strings.TrimSpace(v.GetString(KeyOutputFormat))),
		MetricsFile:      strings.TrimSpace(v.GetString(KeyMetricsFile)),
		Debug:            v.GetBool(KeyDebug),
		NoColor:          v.GetBool(KeyNoColor),
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required options and option combinations.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return dserrors.ConfigError{
			Field:      "project",
			Message:    "project ID is required",
			Suggestion: fmt.Sprintf("Set %s or pass --project", KeyProjectID),
		}
	}
	if !c.ReadFromSnapshot && c.CredentialsPath == "" {
		return dserrors.ConfigError{
			Field:      "credentials",
			Message:    "credential file path is empty",
			Suggestion: fmt.Sprintf("Set %s to a service-account key file", KeyCredentialsPath),
		}
	}
	if (c.SaveSnapshot || c.ReadFromSnapshot) && (c.SnapshotSecrets == "" || c.SnapshotVersions == "") {
		return dserrors.ConfigError{
			Field:      "snapshot",
			Message:    "snapshot file paths must not be empty",
			Suggestion: fmt.Sprintf("Set %s and %s", KeySnapshotSecrets, KeySnapshotVersions),
		}
	}
	if c.SnapshotSecrets != "" && c.SnapshotSecrets == c.SnapshotVersions {
		return dserrors.ConfigError{
			Field:      "snapshot",
			Value:      c.SnapshotSecrets,
			Message:    "secrets and versions snapshots must be different files",
		}
	}
	if c.ReadFromSnapshot && !c.DryRun {
		return dserrors.ConfigError{
			Field:      "dry-run",
			Value:      false,
			Message:    "replaying a snapshot only supports dry-run",
			Suggestion: fmt.Sprintf("Set %s=true, or set %s=false to disable versions from live data", KeyDryRun, KeyReadSnapshot),
		}
	}
	if c.CallTimeout <= 0 {
		return dserrors.ConfigError{
			Field:      "call-timeout",
			Value:      c.CallTimeout,
			Message:    "call timeout must be positive",
			Suggestion: "Use a Go duration such as 30s or 2m",
		}
	}
	switch c.OutputFormat {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return dserrors.ConfigError{
			Field:      "output",
			Value:      c.OutputFormat,
			Message:    "unsupported output format",
			Suggestion: "Use one of: text, json, yaml",
		}
	}
	return nil
}

// Regional reports whether the client should talk to a regional endpoint.
func (c Config) Regional() bool {
	return c.Region != "" && c.Region != DefaultRegion
}

// Parent returns the resource under which secrets are listed.
func (c Config) Parent() string {
	if c.Regional() {
		return fmt.Sprintf("projects/%s/locations/%s", c.ProjectID, c.Region)
	}
	return fmt.Sprintf("projects/%s", c.ProjectID)
}

// Endpoint returns the regional API endpoint, or "" for the global one.
func (c Config) Endpoint() string {
	if !c.Regional() {
		return ""
	}
	return fmt.Sprintf("secretmanager.%s.rep.googleapis.com:443", c.Region)
}
