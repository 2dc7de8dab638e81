package prune

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/config"
	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
)

// Action results.
const (
	ResultDisabled     = "disabled"
	ResultWouldDisable = "would-disable"
)

// Action is one disabled (or, in dry-run, to-be-disabled) version.
type Action struct {
	Secret  string `json:"secret" yaml:"secret"`
	Version string `json:"version" yaml:"version"`
	Result  string `json:"result" yaml:"result"`
}

// Failure is a non-fatal error recorded during the run.
type Failure struct {
	Stage   string `json:"stage" yaml:"stage"`
	Secret  string `json:"secret" yaml:"secret"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Error   string `json:"error" yaml:"error"`
}

// Summary aggregates the outcome of a run. Counts are independent of the
// order in which secrets were processed.
type Summary struct {
	DryRun bool `json:"dry_run" yaml:"dry_run"`

	SecretsTotal     int `json:"secrets_total" yaml:"secrets_total"`
	SecretsProcessed int `json:"secrets_processed" yaml:"secrets_processed"`
	SecretsSkipped   int `json:"secrets_skipped" yaml:"secrets_skipped"`
	SecretsFailed    int `json:"secrets_failed" yaml:"secrets_failed"`

	VersionsTotal           int `json:"versions_total" yaml:"versions_total"`
	VersionsDisabled        int `json:"versions_disabled" yaml:"versions_disabled"`
	VersionsWouldDisable    int `json:"versions_would_disable" yaml:"versions_would_disable"`
	VersionsKeptLatest      int `json:"versions_kept_latest" yaml:"versions_kept_latest"`
	VersionsAlreadyInactive int `json:"versions_already_inactive" yaml:"versions_already_inactive"`
	VersionsFailed          int `json:"versions_failed" yaml:"versions_failed"`

	Actions  []Action  `json:"actions" yaml:"actions"`
	Failures []Failure `json:"failures" yaml:"failures"`
	Warnings []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newSummary(dryRun bool) *Summary {
	return &Summary{
		DryRun:   dryRun,
		Actions:  []Action{},
		Failures: []Failure{},
	}
}

// HasFailures reports whether any per-secret or per-version error was recorded.
func (s *Summary) HasFailures() bool {
	return len(s.Failures) > 0
}

func (s *Summary) recordAction(secretID, versionID, result string) {
	s.Actions = append(s.Actions, Action{Secret: secretID, Version: versionID, Result: result})
	switch result {
	case ResultDisabled:
		s.VersionsDisabled++
	case ResultWouldDisable:
		s.VersionsWouldDisable++
	}
}

func (s *Summary) recordRetrievalFailure(secretID string, err error) {
	s.SecretsFailed++
	s.Failures = append(s.Failures, Failure{
		Stage:  dserrors.OpListVersions,
		Secret: secretID,
		Error:  err.Error(),
	})
}

func (s *Summary) recordDisableFailure(err dserrors.DisableError) {
	s.VersionsFailed++
	s.Failures = append(s.Failures, Failure{
		Stage:   "disable",
		Secret:  err.Secret,
		Version: err.Version,
		Error:   err.Err.Error(),
	})
}

// Render writes the summary in the given format (text, json or yaml).
func (s *Summary) Render(w io.Writer, format string) error {
	switch format {
	case config.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(s)
	case config.FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(s); err != nil {
			return err
		}
		return encoder.Close()
	case config.FormatText, "":
		return s.renderText(w)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func (s *Summary) renderText(w io.Writer) error {
	mode := "live"
	if s.DryRun {
		mode = "dry-run"
	}
	fmt.Fprintf(w, "Run summary (%s)\n\n", mode)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Secrets listed:\t%d\n", s.SecretsTotal)
	fmt.Fprintf(tw, "Secrets processed:\t%d\n", s.SecretsProcessed)
	fmt.Fprintf(tw, "Secrets skipped (no enabled version):\t%d\n", s.SecretsSkipped)
	fmt.Fprintf(tw, "Secrets failed:\t%d\n", s.SecretsFailed)
	fmt.Fprintf(tw, "Versions listed:\t%d\n", s.VersionsTotal)
	if s.DryRun {
		fmt.Fprintf(tw, "Versions that would be disabled:\t%d\n", s.VersionsWouldDisable)
	} else {
		fmt.Fprintf(tw, "Versions disabled:\t%d\n", s.VersionsDisabled)
	}
	fmt.Fprintf(tw, "Versions kept (latest):\t%d\n", s.VersionsKeptLatest)
	fmt.Fprintf(tw, "Versions already inactive:\t%d\n", s.VersionsAlreadyInactive)
	fmt.Fprintf(tw, "Versions failed:\t%d\n", s.VersionsFailed)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Actions) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SECRET\tVERSION\tRESULT")
		for _, a := range s.Actions {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Secret, a.Version, a.Result)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FAILED\tSECRET\tVERSION\tERROR")
		for _, f := range s.Failures {
			version := f.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Stage, f.Secret, version, firstLine(f.Error))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, warning := range s.Warnings {
		fmt.Fprintf(w, "\nWarning: %s\n", firstLine(warning))
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
