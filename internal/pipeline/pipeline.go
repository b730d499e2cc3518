package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/autoclaim/internal/llm"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/retrieval"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a whole run when no timeout is configured
const DefaultTimeout = 180 * time.Second

// Retriever is the retrieval port the pipeline reads policy text through
type Retriever interface {
	RetrievePolicyPassages(ctx context.Context, query string) ([]retrieval.Document, error)
	RetrieveDeclaration(ctx context.Context, policyNumber string) ([]retrieval.Document, error)
}

// StructuredGenerator is the inference port used for both model calls
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, schema llm.Schema, prompt *llm.Prompt, args map[string]string, out any) error
}

// Options tunes a Pipeline
type Options struct {
	// Timeout bounds a whole run; zero uses DefaultTimeout
	Timeout time.Duration

	// ConcurrentRetrieval runs the per-query policy retrievals in parallel
	ConcurrentRetrieval bool

	// RetrievalWorkers caps parallel retrievals when ConcurrentRetrieval is set
	RetrievalWorkers int

	// Logger receives per-stage debug entries; nil uses the standard logger
	Logger logrus.FieldLogger
}

// OptionsFromConfig maps the pipeline section of the configuration
func OptionsFromConfig(cfg model.PipelineConfig, logger logrus.FieldLogger) Options {
	return Options{
		Timeout:             cfg.Timeout,
		ConcurrentRetrieval: cfg.ConcurrentRetrieval,
		RetrievalWorkers:    cfg.RetrievalWorkers,
		Logger:              logger,
	}
}

// Pipeline turns one claim into one decision: load the claim, generate
// policy queries, retrieve policy text, generate a recommendation, and
// finalize the decision. Stages run strictly in that order and the first
// failure aborts the run.
type Pipeline struct {
	retriever Retriever
	generator StructuredGenerator
	opts      Options
	logger    logrus.FieldLogger
	newRunID  func() string
}

// Result is the outcome of a successful run
type Result struct {
	RunID       string              `json:"run_id"`
	Decision    model.ClaimDecision `json:"decision"`
	Queries     []string            `json:"queries"`
	DocumentIDs []string            `json:"document_ids"`
	Warnings    []string            `json:"warnings,omitempty"`
	Duration    time.Duration       `json:"duration"`
}

// New creates a pipeline over the given ports
func New(retriever Retriever, generator StructuredGenerator, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetrievalWorkers <= 0 {
		opts.RetrievalWorkers = 4
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Pipeline{
		retriever: retriever,
		generator: generator,
		opts:      opts,
		logger:    logger,
		newRunID:  uuid.NewString,
	}
}

type stage struct {
	name Stage
	run  func(ctx context.Context, st *runState) error
}

// Run executes one claim decision. On failure no decision is returned and
// the error is a *StageError naming the failed stage.
func (p *Pipeline) Run(ctx context.Context, claim model.ClaimInfo) (*Result, error) {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	st := newRunState(p.newRunID())
	log := p.logger.WithFields(logrus.Fields{
		"run_id":       st.id,
		"claim_number": claim.ClaimNumber,
	})

	stages := []stage{
		{StageLoadClaim, func(_ context.Context, st *runState) error { return loadClaim(st, claim) }},
		{StageGenerateQueries, p.generateQueries},
		{StageRetrievePolicyText, func(ctx context.Context, st *runState) error { return p.retrievePolicyText(ctx, st, log) }},
		{StageGenerateRecommendation, p.generateRecommendation},
		{StageFinalizeDecision, func(_ context.Context, st *runState) error { return finalizeDecision(st) }},
	}

	for _, s := range stages {
		stageStart := time.Now()
		err := runCtx.Err()
		if err == nil {
			err = s.run(runCtx, st)
		}
		if err != nil {
			err = p.classify(runCtx, err)
			log.WithField("stage", s.name).WithError(err).Debug("stage failed")
			return nil, &StageError{Stage: s.name, Err: err}
		}
		log.WithFields(logrus.Fields{
			"stage":    s.name,
			"duration": time.Since(stageStart).Round(time.Millisecond),
		}).Debug("stage complete")
	}

	return &Result{
		RunID:       st.id,
		Decision:    st.decision,
		Queries:     append([]string(nil), st.queries.Queries...),
		DocumentIDs: st.documents.IDs(),
		Warnings:    st.warnings,
		Duration:    time.Since(start),
	}, nil
}

// Decide runs the pipeline and returns only the decision
func (p *Pipeline) Decide(ctx context.Context, claim *model.ClaimInfo) (*model.ClaimDecision, error) {
	if claim == nil {
		return nil, fmt.Errorf("%w: no claim", model.ErrValidation)
	}
	res, err := p.Run(ctx, *claim)
	if err != nil {
		return nil, err
	}
	return &res.Decision, nil
}

// classify marks failures caused by the run deadline as timeouts
func (p *Pipeline) classify(runCtx context.Context, err error) error {
	if errors.Is(err, model.ErrTimeout) {
		return err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: run exceeded %s: %w", model.ErrTimeout, p.opts.Timeout, err)
	}
	return err
}
