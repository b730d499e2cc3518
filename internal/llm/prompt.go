package llm

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompt is a named chat template rendered with named arguments.
// Referencing an argument that was not supplied is an error.
type Prompt struct {
	name string
	tmpl *template.Template
}

// NewPrompt parses text as a template; arguments are referenced as {{.name}}
func NewPrompt(name, text string) (*Prompt, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Prompt{name: name, tmpl: tmpl}, nil
}

// MustPrompt is like NewPrompt but panics on a malformed template
func MustPrompt(name, text string) *Prompt {
	p, err := NewPrompt(name, text)
	if err != nil {
		panic(err)
	}
	return p
}

// Name returns the prompt name
func (p *Prompt) Name() string {
	return p.name
}

// Render executes the template with args
func (p *Prompt) Render(args map[string]string) (string, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, args); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.name, err)
	}
	return sb.String(), nil
}

// PolicyQueriesPrompt asks for search queries that locate the policy clauses relevant to a claim.
// Arguments: claim_info.
var PolicyQueriesPrompt = MustPrompt("policy_queries", `
You're an expert assistant trained in processing auto insurance claims.
# Task:
Identify the key policy sections to review based on claim details.
# Instructions:
- Review the claim
- Generate 3 to 5 queries to find relevant clauses
# Result:
Return JSON matching PolicyQueries schema.
Claim Info:
{{.claim_info}}
`)

// PolicyRecommendationPrompt asks for a coverage recommendation given the matched policy text.
// Arguments: claim_info, policy_text.
var PolicyRecommendationPrompt = MustPrompt("policy_recommendation", `
You're an expert assistant analyzing insurance policy documents.
# Task:
Evaluate the claim and recommend coverage.
# Instructions:
- Determine if covered, deductible, payout, and policy section
# Result:
Return JSON matching PolicyRecommendation schema.
Claim Info:
{{.claim_info}}
Policy Text:
{{.policy_text}}
`)
