package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/autoclaim/internal/llm"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/sirupsen/logrus"
)

func loadClaim(st *runState, claim model.ClaimInfo) error {
	claimJSON, err := claim.JSON()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	st.claim = claim
	st.claimJSON = claimJSON
	return nil
}

func (p *Pipeline) generateQueries(ctx context.Context, st *runState) error {
	var queries model.PolicyQueries
	err := p.generator.GenerateStructured(ctx, queries, llm.PolicyQueriesPrompt, map[string]string{
		"claim_info": st.claimJSON,
	}, &queries)
	if err != nil {
		return err
	}
	st.queries = queries
	return nil
}

// retrievePolicyText merges the passages for every query, in query order,
// then the first declarations page for the claim's policy.
func (p *Pipeline) retrievePolicyText(ctx context.Context, st *runState, log logrus.FieldLogger) error {
	perQuery, err := p.retrievePassages(ctx, st.queries.Queries)
	if err != nil {
		return err
	}

	for _, docs := range perQuery {
		for _, doc := range docs {
			st.documents.Add(doc)
		}
	}

	decls, err := p.retriever.RetrieveDeclaration(ctx, st.claim.PolicyNumber)
	if err != nil {
		return err
	}
	if len(decls) == 0 {
		return fmt.Errorf("%w: no declarations page for policy %s", model.ErrNotFound, st.claim.PolicyNumber)
	}
	if len(decls) > 1 {
		msg := fmt.Sprintf("%d declarations pages matched policy %s; using %s", len(decls), st.claim.PolicyNumber, decls[0].ID)
		st.warnings = append(st.warnings, msg)
		log.WithField("policy_number", st.claim.PolicyNumber).Warn(msg)
	}
	st.documents.Add(decls[0])

	st.policyText = st.documents.Text()
	log.WithFields(logrus.Fields{
		"queries":   len(st.queries.Queries),
		"documents": st.documents.Len(),
	}).Debug("policy text assembled")
	return nil
}

func (p *Pipeline) generateRecommendation(ctx context.Context, st *runState) error {
	var rec model.PolicyRecommendation
	err := p.generator.GenerateStructured(ctx, rec, llm.PolicyRecommendationPrompt, map[string]string{
		"claim_info":  st.claimJSON,
		"policy_text": st.policyText,
	}, &rec)
	if err != nil {
		return err
	}
	st.recommendation = rec
	return nil
}

func finalizeDecision(st *runState) error {
	st.decision = model.NewClaimDecision(st.claim, st.recommendation)
	return nil
}
