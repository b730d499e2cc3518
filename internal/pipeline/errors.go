package pipeline

import (
	"fmt"
)

// Stage names one step of a claim decision run
type Stage string

const (
	StageLoadClaim              Stage = "load_claim"
	StageGenerateQueries        Stage = "generate_queries"
	StageRetrievePolicyText     Stage = "retrieve_policy_text"
	StageGenerateRecommendation Stage = "generate_recommendation"
	StageFinalizeDecision       Stage = "finalize_decision"
)

// StageError reports the stage a run failed in. The wrapped error carries
// the model error kind (ErrRetrieval, ErrTimeout, ...).
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
