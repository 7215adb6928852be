// Package quorum evaluates attestation lists against quorum rules.
//
// Evaluation is a pure fold over the full attestation history: no I/O, no
// side effects, deterministic, safe to call unboundedly. Denial and
// quorum-met are independent predicates; callers treat a reached deny
// threshold as terminal regardless of simultaneous quorum.
package quorum

import (
	"math"

	"github.com/ethosengine/elohim-recovery/internal/models"
)

// Evaluate computes the progress snapshot for the given attestations.
// Abstentions count toward neither side; they exist as an audit signal.
func Evaluate(attestations []models.Attestation, requiredCount, denyThreshold int) models.Progress {
	p := models.Progress{RequiredCount: requiredCount}

	for _, a := range attestations {
		switch a.Decision {
		case models.DecisionAffirm:
			p.AffirmCount++
		case models.DecisionDeny:
			p.DenyCount++
		case models.DecisionAbstain:
			p.AbstainCount++
		}
	}

	p.ThresholdMet = p.AffirmCount >= requiredCount
	p.IsDenied = denyThreshold > 0 && p.DenyCount >= denyThreshold

	if requiredCount > 0 {
		percent := math.Round(100 * float64(p.AffirmCount) / float64(requiredCount))
		p.ProgressPercent = int(math.Min(100, percent))
	}

	return p
}
