// Package prune keeps the newest enabled version of every secret and disables
// the rest.
package prune

import (
	"context"
	"errors"
	"fmt"
	"time"

	dserrors "github.com/muehlemann-popp/gcp-secrets-disabler/internal/errors"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/logging"
	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

// Recorder persists the listing fetched during a run.
type Recorder interface {
	Record(ds *inventory.Dataset) error
}

// Pruner runs one single-pass prune over a Source.
type Pruner struct {
	source   inventory.Source
	disabler inventory.Disabler
	logger   *logging.Logger
	dryRun   bool
	recorder Recorder
	metrics  *Metrics
	now      func() time.Time
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithDryRun makes the pruner report instead of disable.
func WithDryRun(dryRun bool) Option {
	return func(p *Pruner) {
		p.dryRun = dryRun
	}
}

// WithRecorder saves the fetched listing before any version is disabled.
func WithRecorder(r Recorder) Option {
	return func(p *Pruner) {
		p.recorder = r
	}
}

// WithMetrics records run counters into m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pruner) {
		p.metrics = m
	}
}

// New creates a Pruner. disabler may be nil when the pruner runs in dry-run.
func New(source inventory.Source, disabler inventory.Disabler, logger *logging.Logger, opts ...Option) *Pruner {
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Pruner{
		source:   source,
		disabler: disabler,
		logger:   logger,
		dryRun:   true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches every secret and its versions, then keeps the latest enabled
// version of each and disables the others.
//
// A failure to list secrets aborts the run. A failure to list one secret's
// versions, or to disable one version, is recorded in the Summary and the run
// goes on. Run returns an error only when the pass could not complete; the
// Summary is returned whenever any secret was processed.
func (p *Pruner) Run(ctx context.Context) (*Summary, error) {
	started := p.now()
	summary := newSummary(p.dryRun)

	if !p.dryRun && p.disabler == nil {
		return nil, errors.New("live run requires a disabler")
	}

	secrets, err := p.source.ListSecrets(ctx)
	if err != nil {
		return nil, err
	}
	summary.SecretsTotal = len(secrets)
	p.logger.Info("Retrieved secrets: %d", len(secrets))

	ds := inventory.NewDataset()
	ds.Secrets = secrets
	for _, secret := range secrets {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run interrupted while listing versions: %w", err)
		}

		versions, err := p.source.ListVersions(ctx, secret)
		if err != nil {
			p.logger.Warn("Skipping %s: %v", secretLabel(secret), firstLine(err.Error()))
			summary.recordRetrievalFailure(secretLabel(secret), err)
			p.metrics.recordSecret(outcomeFailed)
			continue
		}
		ds.Versions[secret.Name] = versions
	}
	summary.VersionsTotal = ds.VersionCount()
	p.logger.Info("Retrieved secret versions: %d", summary.VersionsTotal)

	if p.recorder != nil {
		if err := p.recorder.Record(ds); err != nil {
			p.logger.Warn("Snapshot not saved: %v", firstLine(err.Error()))
			summary.Warnings = append(summary.Warnings, err.Error())
		} else {
			p.logger.Debug("Snapshot saved")
		}
	}

	for _, secret := range secrets {
		versions, ok := ds.Versions[secret.Name]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run interrupted while disabling versions: %w", err)
		}
		p.pruneSecret(ctx, secret, versions, summary)
	}

	p.metrics.recordRun(started, p.now())
	return summary, nil
}

func (p *Pruner) pruneSecret(ctx context.Context, secret inventory.Secret, versions []inventory.Version, summary *Summary) {
	label := secretLabel(secret)
	plan := Plan(versions)

	summary.SecretsProcessed++
	summary.VersionsAlreadyInactive += len(plan.Inactive)
	p.metrics.recordVersions(resultInactive, p.dryRun, len(plan.Inactive))

	if !plan.HasLatest {
		p.logger.Debug("%s has no enabled version, skipping", label)
		summary.SecretsSkipped++
		p.metrics.recordSecret(outcomeSkipped)
		return
	}

	summary.VersionsKeptLatest++
	p.metrics.recordSecret(outcomeProcessed)
	p.metrics.recordVersions(resultKept, p.dryRun, 1)
	p.logger.Debug("%s: keeping version %s (%s)", label, plan.Keep.ID, plan.Keep.CreateTime.Format(time.RFC3339))

	for _, v := range plan.Candidates {
		if p.dryRun {
			p.logger.Info("[dry-run] would disable %s version %s", label, v.ID)
			summary.recordAction(label, v.ID, ResultWouldDisable)
			p.metrics.recordVersions(ResultWouldDisable, p.dryRun, 1)
			continue
		}

		if err := p.disabler.DisableVersion(ctx, v); err != nil {
			disErr := dserrors.DisableError{Secret: label, Version: v.ID, Err: err}
			p.logger.Error("%v", disErr)
			summary.recordDisableFailure(disErr)
			p.metrics.recordVersions(resultFailed, p.dryRun, 1)
			continue
		}
		p.logger.Info("Disabled %s version %s", label, v.ID)
		summary.recordAction(label, v.ID, ResultDisabled)
		p.metrics.recordVersions(ResultDisabled, p.dryRun, 1)
	}
}

func secretLabel(s inventory.Secret) string {
	if s.ID != "" {
		return s.ID
	}
	return inventory.ShortName(s.Name)
}
