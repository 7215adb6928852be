package quorum

import (
	"testing"

	"github.com/ethosengine/elohim-recovery/internal/models"
	"github.com/stretchr/testify/assert"
)

func attestations(decisions ...models.Decision) []models.Attestation {
	var atts []models.Attestation
	for i, d := range decisions {
		atts = append(atts, models.Attestation{
			ID:       string(rune('a' + i)),
			Decision: d,
		})
	}
	return atts
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name          string
		decisions     []models.Decision
		required      int
		denyThreshold int
		want          models.Progress
	}{
		{
			name:          "empty list",
			decisions:     nil,
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				RequiredCount: 3,
			},
		},
		{
			name:          "two affirms of three",
			decisions:     []models.Decision{models.DecisionAffirm, models.DecisionAffirm},
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				AffirmCount:     2,
				RequiredCount:   3,
				ProgressPercent: 67,
			},
		},
		{
			name:          "quorum reached exactly",
			decisions:     []models.Decision{models.DecisionAffirm, models.DecisionAffirm, models.DecisionAffirm},
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				AffirmCount:     3,
				RequiredCount:   3,
				ProgressPercent: 100,
				ThresholdMet:    true,
			},
		},
		{
			name: "deny threshold reached regardless of affirms",
			decisions: []models.Decision{
				models.DecisionAffirm, models.DecisionAffirm, models.DecisionAffirm,
				models.DecisionDeny, models.DecisionDeny,
			},
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				AffirmCount:     3,
				DenyCount:       2,
				RequiredCount:   3,
				ProgressPercent: 100,
				ThresholdMet:    true,
				IsDenied:        true,
			},
		},
		{
			name: "abstain counts toward neither side",
			decisions: []models.Decision{
				models.DecisionAbstain, models.DecisionAbstain, models.DecisionAffirm,
			},
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				AffirmCount:     1,
				AbstainCount:    2,
				RequiredCount:   3,
				ProgressPercent: 33,
			},
		},
		{
			name: "percent capped at 100",
			decisions: []models.Decision{
				models.DecisionAffirm, models.DecisionAffirm,
				models.DecisionAffirm, models.DecisionAffirm,
			},
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				AffirmCount:     4,
				RequiredCount:   3,
				ProgressPercent: 100,
				ThresholdMet:    true,
			},
		},
		{
			name:          "zero required count is trivially met",
			decisions:     nil,
			required:      0,
			denyThreshold: 2,
			want: models.Progress{
				ThresholdMet: true,
			},
		},
		{
			name:          "single deny below threshold",
			decisions:     []models.Decision{models.DecisionDeny},
			required:      3,
			denyThreshold: 2,
			want: models.Progress{
				DenyCount:     1,
				RequiredCount: 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(attestations(tt.decisions...), tt.required, tt.denyThreshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_CountsPartitionList(t *testing.T) {
	atts := attestations(
		models.DecisionAffirm, models.DecisionDeny, models.DecisionAbstain,
		models.DecisionAffirm, models.DecisionDeny, models.DecisionAffirm,
	)

	p := Evaluate(atts, 3, 2)
	assert.Equal(t, len(atts), p.AffirmCount+p.DenyCount+p.AbstainCount,
		"every attestation must land in exactly one bucket")
}

func TestEvaluate_Deterministic(t *testing.T) {
	atts := attestations(models.DecisionAffirm, models.DecisionDeny, models.DecisionAffirm)

	first := Evaluate(atts, 3, 2)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Evaluate(atts, 3, 2))
	}
}
