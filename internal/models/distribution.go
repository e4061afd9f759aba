package models

// DistributionOutcome is the result of a single fulfillment attempt.
type DistributionOutcome struct {
	Success bool
	Details string
}
