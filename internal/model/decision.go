package model

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// DenialMarker is the phrase that marks a recommendation as a denial
const DenialMarker = "not covered"

// PolicyQueries holds the search queries generated for a claim
type PolicyQueries struct {
	Queries []string `json:"queries"`
}

// SchemaName identifies the schema in structured generation requests
func (PolicyQueries) SchemaName() string { return "PolicyQueries" }

// JSONSchema describes the expected model output
func (PolicyQueries) JSONSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type:        jsonschema.Object,
		Description: "Search queries used to find relevant policy clauses for a claim.",
		Properties: map[string]jsonschema.Definition{
			"queries": {
				Type:        jsonschema.Array,
				Description: "Between 3 and 5 search queries.",
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			},
		},
	}
}

// PolicyRecommendation is the model's reading of the policy text for a claim
type PolicyRecommendation struct {
	PolicySection         string   `json:"policy_section"`
	RecommendationSummary string   `json:"recommendation_summary"`
	Deductible            *float64 `json:"deductible,omitempty"`
	SettlementAmount      *float64 `json:"settlement_amount,omitempty"`
}

// SchemaName identifies the schema in structured generation requests
func (PolicyRecommendation) SchemaName() string { return "PolicyRecommendation" }

// JSONSchema describes the expected model output
func (PolicyRecommendation) JSONSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type:        jsonschema.Object,
		Description: "Coverage recommendation for a claim based on the policy text.",
		Properties: map[string]jsonschema.Definition{
			"policy_section": {
				Type:        jsonschema.String,
				Description: "Policy section the recommendation relies on.",
			},
			"recommendation_summary": {
				Type:        jsonschema.String,
				Description: "Short summary; say \"not covered\" when the claim is denied.",
			},
			"deductible": {
				Type:        jsonschema.Number,
				Description: "Applicable deductible. Omit when unknown.",
			},
			"settlement_amount": {
				Type:        jsonschema.Number,
				Description: "Recommended settlement amount. Omit when unknown.",
			},
		},
		Required: []string{"policy_section", "recommendation_summary"},
	}
}

// Validate rejects amounts no well-formed recommendation carries
func (r PolicyRecommendation) Validate() error {
	if r.Deductible != nil && *r.Deductible < 0 {
		return fmt.Errorf("deductible must be >= 0, got %v", *r.Deductible)
	}
	if r.SettlementAmount != nil && *r.SettlementAmount < 0 {
		return fmt.Errorf("settlement_amount must be >= 0, got %v", *r.SettlementAmount)
	}
	return nil
}

// ClaimDecision is the terminal artifact of one pipeline run
type ClaimDecision struct {
	ClaimNumber       string  `json:"claim_number"`
	Covered           bool    `json:"covered"`
	Deductible        float64 `json:"deductible"`
	RecommendedPayout float64 `json:"recommended_payout"`
	Notes             string  `json:"notes"`
}

// IsCovered applies the coverage rule: the summary must not mention
// "not covered" (any case) and a positive settlement amount must be present.
func IsCovered(rec PolicyRecommendation) bool {
	if strings.Contains(strings.ToLower(rec.RecommendationSummary), DenialMarker) {
		return false
	}
	return rec.SettlementAmount != nil && *rec.SettlementAmount > 0
}

// NewClaimDecision derives the decision for a claim from a recommendation.
// Missing amounts become 0; negative amounts pass through unchanged.
func NewClaimDecision(claim ClaimInfo, rec PolicyRecommendation) ClaimDecision {
	return ClaimDecision{
		ClaimNumber:       claim.ClaimNumber,
		Covered:           IsCovered(rec),
		Deductible:        valueOrZero(rec.Deductible),
		RecommendedPayout: valueOrZero(rec.SettlementAmount),
		Notes:             rec.RecommendationSummary,
	}
}

// Verdict returns the headline shown to the user
func (d ClaimDecision) Verdict() string {
	if d.Covered {
		return "Claim Approved"
	}
	return "Claim Denied"
}

// FormatCurrency formats an amount the way decisions are displayed
func FormatCurrency(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-$%.2f", -amount)
	}
	return fmt.Sprintf("$%.2f", amount)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
