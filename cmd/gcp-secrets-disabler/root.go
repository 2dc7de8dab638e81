package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/config"
	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/gcpsm"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/logging"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/prune"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/snapshot"
	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

// flagKeys maps each command-line flag to the viper key (and environment
// variable) it overrides.
var flagKeys = map[string]string{
	"project":            config.KeyProjectID,
	"region":             config.KeyRegion,
	"credentials":        config.KeyCredentialsPath,
	"dry-run":            config.KeyDryRun,
	"save-snapshot":      config.KeySaveSnapshot,
	"read-from-snapshot": config.KeyReadSnapshot,
	"snapshot-secrets":   config.KeySnapshotSecrets,
	"snapshot-versions":  config.KeySnapshotVersions,
	"call-timeout":       config.KeyCallTimeout,
	"output":             config.KeyOutputFormat,
	"metrics-file":       config.KeyMetricsFile,
	"debug":              config.KeyDebug,
	"no-color":           config.KeyNoColor,
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var configFile string
	v := viper.New()
	config.SetDefaults(v)

	rootCmd := &cobra.Command{
		Use:   "gcp-secrets-disabler",
		Short: "Disable all but the latest enabled version of every GCP secret",
		Long: `gcp-secrets-disabler walks every secret in a Google Cloud project, keeps the
most recent ENABLED version and disables the others.

Runs are dry-run by default: pass --dry-run=false (or DRY_RUN=false) to
actually disable versions. Every option can also be set through the
environment variable shown in its help text.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfig(v, configFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := logging.NewWithWriter(stderr, cfg.Debug, cfg.NoColor)
			return execute(cmd.Context(), cfg, logger, stdout)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "Optional YAML config file")
	flags.String("project", "", "GCP project ID ($GCP_PROJECT_ID)")
	flags.String("region", config.DefaultRegion, "Secret Manager location, or global ($GCP_REGION)")
	flags.String("credentials", config.DefaultCredentialsPath, "Service-account key file ($GCP_CREDENTIALS_PATH)")
	flags.Bool("dry-run", true, "Report what would be disabled without changing anything ($DRY_RUN)")
	flags.Bool("save-snapshot", true, "Save the fetched listing to the snapshot files ($SAVE_SNAPSHOT)")
	flags.Bool("read-from-snapshot", false, "Read the listing from the snapshot files instead of the API; dry-run only ($READ_FROM_SNAPSHOT)")
	flags.String("snapshot-secrets", config.DefaultSnapshotSecrets, "Secrets snapshot file ($SNAPSHOT_SECRETS_PATH)")
	flags.String("snapshot-versions", config.DefaultSnapshotVersions, "Versions snapshot file ($SNAPSHOT_VERSIONS_PATH)")
	flags.Duration("call-timeout", config.DefaultCallTimeout, "Timeout for each API call ($CALL_TIMEOUT)")
	flags.StringP("output", "o", config.FormatText, "Summary format: text, json or yaml ($OUTPUT_FORMAT)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile ($METRICS_FILE)")
	flags.Bool("debug", false, "Enable debug logging ($DEBUG)")
	flags.Bool("no-color", false, "Disable colored output ($NO_COLOR)")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	return rootCmd
}

// readConfig layers the environment and the optional config file under the
// bound flags. A flag that was not set falls through to env, then file, then
// default.
func readConfig(v *viper.Viper, configFile string) error {
	v.AutomaticEnv()
	if configFile == "" {
		return nil
	}

	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return dserrors.ConfigError{
			Field:      "config",
			Value:      configFile,
			Message:    err.Error(),
			Suggestion: "Pass a readable YAML file whose keys are the environment variable names, e.g. gcp_project_id",
		}
	}
	return nil
}

// execute wires the data source, disabler and snapshot store for cfg and runs
// one prune pass, writing the summary to out.
func execute(ctx context.Context, cfg config.Config, logger *logging.Logger, out io.Writer) error {
	store := snapshot.NewStore(cfg.SnapshotSecrets, cfg.SnapshotVersions)
	opts := []prune.Option{prune.WithDryRun(cfg.DryRun)}

	var metrics *prune.Metrics
	if cfg.MetricsFile != "" {
		metrics = prune.NewMetrics()
		opts = append(opts, prune.WithMetrics(metrics))
	}

	var (
		source   inventory.Source
		disabler inventory.Disabler
	)
	if cfg.ReadFromSnapshot {
		ds, err := store.Load()
		if err != nil {
			return err
		}
		secretsPath, versionsPath := store.Paths()
		logger.Info("Loaded snapshot from %s and %s", secretsPath, versionsPath)
		source = snapshot.NewSource(ds)
	} else {
		creds, err := gcpsm.LoadCredentials(cfg.CredentialsPath)
		if err != nil {
			return err
		}
		warnProjectMismatch(cfg, creds, logger)
		client, err := gcpsm.NewClient(ctx, cfg, creds, logger)
		creds.Destroy()
		if err != nil {
			return err
		}
		defer client.Close()

		source, disabler = client, client
		if cfg.SaveSnapshot {
			opts = append(opts, prune.WithRecorder(store))
		}
	}

	if cfg.DryRun {
		logger.Info("Dry-run: no secret version will be disabled")
	}
	logger.Debug("Project %s, parent %s", cfg.ProjectID, cfg.Parent())

	summary, err := prune.New(source, disabler, logger, opts...).Run(ctx)
	if err != nil {
		if summary == nil {
			return err
		}
		// Interrupted mid-pass: report what already happened.
		if renderErr := summary.Render(out, cfg.OutputFormat); renderErr != nil {
			logger.Warn("Partial summary not written: %v", renderErr)
		}
		return dserrors.UserError{
			Message:    "run interrupted before every secret was processed",
			Details:    fmt.Sprintf("%d versions disabled, %d would be disabled before the interruption", summary.VersionsDisabled, summary.VersionsWouldDisable),
			Suggestion: "Run again; versions that are already disabled are left alone",
			Err:        err,
		}
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("Metrics not written to %s: %v", cfg.MetricsFile, err)
		}
	}

	if summary.HasFailures() {
		logger.Warn("Completed with %d failures, see the summary", len(summary.Failures))
	}
	return summary.Render(out, cfg.OutputFormat)
}

// warnProjectMismatch flags a key issued for a different project than the one
// being pruned. The key may still have access, so this is not an error.
func warnProjectMismatch(cfg config.Config, creds *gcpsm.Credentials, logger *logging.Logger) {
	if creds.ProjectID != "" && creds.ProjectID != cfg.ProjectID {
		logger.Warn("Credentials belong to project %s but %s is being pruned (%s)",
			creds.ProjectID, cfg.ProjectID, creds.ClientEmail)
	}
}
