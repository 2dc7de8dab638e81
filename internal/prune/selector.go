package prune

import (
	"strconv"

	"github.com/muehlemann-popp/gcp-secrets-disabler/pkg/inventory"
)

// Latest returns the ENABLED version with the greatest CreateTime. When two
// ENABLED versions share that time, the one with the greater version ID wins
// (see CompareVersionIDs). The second result is false when no version is
// ENABLED. Input order does not matter.
func Latest(versions []inventory.Version) (inventory.Version, bool) {
	var (
		best  inventory.Version
		found bool
	)
	for _, v := range versions {
		if !v.Enabled() {
			continue
		}
		if !found || newer(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}

func newer(a, b inventory.Version) bool {
	if !a.CreateTime.Equal(b.CreateTime) {
		return a.CreateTime.After(b.CreateTime)
	}
	return CompareVersionIDs(a.ID, b.ID) > 0
}

// CompareVersionIDs orders version IDs. IDs that are both decimal integers
// compare numerically ("10" > "9"); anything else compares as strings.
func CompareVersionIDs(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SecretPlan is the decision for one secret.
type SecretPlan struct {
	// Keep is the version that stays ENABLED. Valid only when HasLatest.
	Keep      inventory.Version
	HasLatest bool
	// Candidates are the other ENABLED versions, to be disabled.
	Candidates []inventory.Version
	// Inactive are versions that are not ENABLED and are left alone.
	Inactive []inventory.Version
}

// Plan splits versions into the one to keep, the ones to disable and the ones
// already inactive. With no ENABLED version there is nothing to keep and
// nothing to disable.
func Plan(versions []inventory.Version) SecretPlan {
	var plan SecretPlan
	plan.Keep, plan.HasLatest = Latest(versions)

	for _, v := range versions {
		switch {
		case !v.Enabled():
			plan.Inactive = append(plan.Inactive, v)
		case v.Name == plan.Keep.Name && v.ID == plan.Keep.ID:
		default:
			plan.Candidates = append(plan.Candidates, v)
		}
	}
	return plan
}
