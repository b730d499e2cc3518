package retrieval

import (
	"context"
	"fmt"

	"github.com/ppiankov/autoclaim/internal/model"
)

// PolicyNumberKey is the metadata field declarations pages are filtered on
const PolicyNumberKey = "policy_number"

// DefaultRerankTopN is the number of policy passages kept per query
const DefaultRerankTopN = 3

// Service serves the two corpora a claim decision reads from
type Service struct {
	policy       Index
	declarations Index
	rerankTopN   int
}

// NewService creates a retrieval service over a policy index and a declarations index
func NewService(policy, declarations Index, rerankTopN int) *Service {
	if rerankTopN <= 0 {
		rerankTopN = DefaultRerankTopN
	}
	return &Service{
		policy:       policy,
		declarations: declarations,
		rerankTopN:   rerankTopN,
	}
}

// DeclarationQuery is the query text used to find the declarations page for a policy
func DeclarationQuery(policyNumber string) string {
	return "declarations page for " + policyNumber
}

// RetrievePolicyPassages returns the top reranked policy passages for query.
// An empty result is not an error.
func (s *Service) RetrievePolicyPassages(ctx context.Context, query string) ([]Document, error) {
	docs, err := s.policy.Retrieve(ctx, Query{Text: query, TopN: s.rerankTopN})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrRetrieval, s.policy.Name(), err)
	}
	return docs, nil
}

// RetrieveDeclaration returns the declarations pages whose policy_number
// equals policyNumber, best match first. The result may be empty.
func (s *Service) RetrieveDeclaration(ctx context.Context, policyNumber string) ([]Document, error) {
	docs, err := s.declarations.Retrieve(ctx, Query{
		Text:    DeclarationQuery(policyNumber),
		Filters: map[string]string{PolicyNumberKey: policyNumber},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrRetrieval, s.declarations.Name(), err)
	}
	return docs, nil
}

// Indexes returns the policy and declarations indexes
func (s *Service) Indexes() (Index, Index) {
	return s.policy, s.declarations
}
