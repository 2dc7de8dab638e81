package prune

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

func at(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, n, 0, time.UTC)
}

func v(id string, state inventory.State, ts time.Time) inventory.Version {
	return inventory.Version{
		Name:       "projects/p/secrets/s/versions/" + id,
		Secret:     "projects/p/secrets/s",
		ID:         id,
		State:      state,
		CreateTime: ts,
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		versions []inventory.Version
		wantID   string
		wantOK   bool
	}{
		{
			name:   "empty",
			wantOK: false,
		},
		{
			name: "single enabled",
			versions: []inventory.Version{
				v("1", inventory.StateEnabled, at(5)),
			},
			wantID: "1",
			wantOK: true,
		},
		{
			name: "newest disabled version is ignored",
			versions: []inventory.Version{
				v("1", inventory.StateEnabled, at(1)),
				v("2", inventory.StateEnabled, at(2)),
				v("3", inventory.StateDisabled, at(3)),
			},
			wantID: "2",
			wantOK: true,
		},
		{
			name: "unordered input",
			versions: []inventory.Version{
				v("7", inventory.StateEnabled, at(7)),
				v("9", inventory.StateEnabled, at(9)),
				v("8", inventory.StateEnabled, at(8)),
			},
			wantID: "9",
			wantOK: true,
		},
		{
			name: "all destroyed",
			versions: []inventory.Version{
				v("1", inventory.StateDestroyed, at(1)),
				v("2", inventory.StateDestroyed, at(2)),
			},
			wantOK: false,
		},
		{
			name: "unspecified state is not enabled",
			versions: []inventory.Version{
				v("1", inventory.StateUnspecified, at(1)),
			},
			wantOK: false,
		},
		{
			name: "timestamp tie picks numerically greater id",
			versions: []inventory.Version{
				v("10", inventory.StateEnabled, at(3)),
				v("9", inventory.StateEnabled, at(3)),
				v("2", inventory.StateEnabled, at(1)),
			},
			wantID: "10",
			wantOK: true,
		},
		{
			name: "timestamp tie picks lexicographically greater opaque id",
			versions: []inventory.Version{
				v("beta", inventory.StateEnabled, at(3)),
				v("alpha", inventory.StateEnabled, at(3)),
			},
			wantID: "beta",
			wantOK: true,
		},
		{
			name: "time beats id",
			versions: []inventory.Version{
				v("99", inventory.StateEnabled, at(1)),
				v("3", inventory.StateEnabled, at(2)),
			},
			wantID: "3",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Latest(tt.versions)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, got.ID)
			}
		})
	}
}

func TestLatestIsOrderIndependent(t *testing.T) {
	t.Parallel()

	versions := []inventory.Version{
		v("4", inventory.StateEnabled, at(3)),
		v("5", inventory.StateEnabled, at(3)),
		v("1", inventory.StateEnabled, at(1)),
		v("6", inventory.StateDisabled, at(9)),
	}

	for shift := range versions {
		rotated := append(append([]inventory.Version{}, versions[shift:]...), versions[:shift]...)
		got, ok := Latest(rotated)
		assert.True(t, ok)
		assert.Equal(t, "5", got.ID, "rotation %d", shift)
	}
}

func TestCompareVersionIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, CompareVersionIDs("10", "9"))
	assert.Equal(t, -1, CompareVersionIDs("2", "11"))
	assert.Equal(t, 0, CompareVersionIDs("7", "7"))
	assert.Equal(t, 1, CompareVersionIDs("b", "a"))
	assert.Equal(t, -1, CompareVersionIDs("10", "a"))
	assert.Equal(t, 0, CompareVersionIDs("x", "x"))
}

func TestPlan(t *testing.T) {
	t.Parallel()

	t.Run("scenario A", func(t *testing.T) {
		plan := Plan([]inventory.Version{
			v("1", inventory.StateEnabled, at(1)),
			v("2", inventory.StateEnabled, at(2)),
			v("3", inventory.StateDisabled, at(3)),
		})

		assert.True(t, plan.HasLatest)
		assert.Equal(t, "2", plan.Keep.ID)
		assert.Equal(t, []string{"1"}, ids(plan.Candidates))
		assert.Equal(t, []string{"3"}, ids(plan.Inactive))
	})

	t.Run("scenario B", func(t *testing.T) {
		plan := Plan([]inventory.Version{
			v("1", inventory.StateEnabled, at(5)),
		})

		assert.True(t, plan.HasLatest)
		assert.Equal(t, "1", plan.Keep.ID)
		assert.Empty(t, plan.Candidates)
		assert.Empty(t, plan.Inactive)
	})

	t.Run("scenario C", func(t *testing.T) {
		plan := Plan([]inventory.Version{
			v("1", inventory.StateDestroyed, at(1)),
			v("2", inventory.StateDestroyed, at(2)),
		})

		assert.False(t, plan.HasLatest)
		assert.Empty(t, plan.Candidates)
		assert.Equal(t, []string{"1", "2"}, ids(plan.Inactive))
	})
}

func ids(versions []inventory.Version) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.ID)
	}
	return out
}
