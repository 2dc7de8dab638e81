package prune_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/config"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/logging"
	"github.com/muehlemann-popp/gcp-secrets-disabler/internal/prune"
)

func liveSummary(t *testing.T) *prune.Summary {
	t.Helper()

	src := fixture().WithDisableError("A", "1", errors.New("rpc error: code = Unavailable\nretry later"))
	summary, err := prune.New(src, src, logging.Discard(), prune.WithDryRun(false)).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func TestSummaryRenderText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, liveSummary(t).Render(&buf, config.FormatText))
	out := buf.String()

	assert.Contains(t, out, "Run summary (live)")
	assert.Regexp(t, `Secrets listed:\s+3`, out)
	assert.Regexp(t, `Secrets skipped \(no enabled version\):\s+1`, out)
	assert.Regexp(t, `Versions disabled:\s+0`, out)
	assert.Regexp(t, `Versions failed:\s+1`, out)
	assert.Contains(t, out, "FAILED")
	assert.Regexp(t, `disable\s+A\s+1\s+rpc error: code = Unavailable`, out)
	assert.NotContains(t, out, "retry later", "only the first line of an error is shown")
	assert.NotContains(t, out, "Versions that would be disabled")
}

func TestSummaryRenderTextDryRun(t *testing.T) {
	t.Parallel()

	src := fixture()
	summary, err := prune.New(src, nil, logging.Discard()).Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, summary.Render(&buf, ""))
	out := buf.String()

	assert.Contains(t, out, "Run summary (dry-run)")
	assert.Regexp(t, `Versions that would be disabled:\s+1`, out)
	assert.Regexp(t, `A\s+1\s+would-disable`, out)
	assert.NotContains(t, out, "FAILED")
}

func TestSummaryRenderJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, liveSummary(t).Render(&buf, config.FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["dry_run"])
	assert.EqualValues(t, 3, decoded["secrets_total"])
	assert.EqualValues(t, 2, decoded["versions_kept_latest"])
	assert.Equal(t, []interface{}{}, decoded["actions"])

	failures, ok := decoded["failures"].([]interface{})
	require.True(t, ok)
	require.Len(t, failures, 1)
	assert.Equal(t, "disable", failures[0].(map[string]interface{})["stage"])
}

func TestSummaryRenderYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, liveSummary(t).Render(&buf, config.FormatYAML))

	var decoded prune.Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.SecretsTotal)
	assert.Equal(t, 1, decoded.VersionsFailed)
	require.Len(t, decoded.Failures, 1)
	assert.Equal(t, "A", decoded.Failures[0].Secret)
	assert.Contains(t, buf.String(), "versions_already_inactive: 3")
}

func TestSummaryRenderUnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := liveSummary(t).Render(&buf, "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}
