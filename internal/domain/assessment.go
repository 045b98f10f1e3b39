package domain

import "context"

// RiskLevel is a coarse risk label attached to a pair assessment.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// CorrelationAssessment is an external model's qualitative view of a pair.
type CorrelationAssessment struct {
	CorrelationScore    float64
	Explanation         string
	InvestmentScore     float64
	InvestmentRationale string
	RiskLevel           RiskLevel
}

// CorrelationAssessor asks an external model how two markets relate.
type CorrelationAssessor interface {
	Assess(ctx context.Context, a, b Market) (CorrelationAssessment, error)
}
