package service

import (
	"time"

	"github.com/famcare-id/famcare-api/pkg/config"
)

// CancellationOutcome is the result of evaluating the late-cancellation
// policy for a session.
type CancellationOutcome struct {
	FeeApplies bool `json:"fee_applies"`
	FeePercent int  `json:"fee_percent"`
}

// EvaluateCancellation decides whether a cancellation fee applies. A
// cancellation is penalty-free only when now is strictly more than the
// configured threshold before the slot start; cancelling at exactly the
// threshold already incurs the fee.
func EvaluateCancellation(slotStart, now time.Time, policy config.CancellationConfig) CancellationOutcome {
	if now.Add(policy.FreeThreshold).Before(slotStart) {
		return CancellationOutcome{}
	}
	return CancellationOutcome{FeeApplies: true, FeePercent: policy.FeePercent}
}
