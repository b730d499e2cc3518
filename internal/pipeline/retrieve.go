package pipeline

import (
	"context"
	"sync"

	"github.com/ppiankov/autoclaim/internal/retrieval"
	"github.com/ppiankov/autoclaim/internal/worker"
)

// retrievePassages returns the policy passages for each query, indexed like queries
func (p *Pipeline) retrievePassages(ctx context.Context, queries []string) ([][]retrieval.Document, error) {
	if !p.opts.ConcurrentRetrieval || len(queries) < 2 {
		out := make([][]retrieval.Document, len(queries))
		for i, q := range queries {
			docs, err := p.retriever.RetrievePolicyPassages(ctx, q)
			if err != nil {
				return nil, err
			}
			out[i] = docs
		}
		return out, nil
	}
	return p.retrievePassagesConcurrently(ctx, queries)
}

// queryBatch records the first failure and abandons the remaining queries
type queryBatch struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func (b *queryBatch) fail(err error) {
	b.once.Do(func() {
		b.err = err
		b.cancel()
	})
}

type queryJob struct {
	index     int
	query     string
	retriever Retriever
	batch     *queryBatch
}

type queryResult struct {
	index int
	docs  []retrieval.Document
	err   error
}

func (r *queryResult) GetError() error {
	return r.err
}

func (j *queryJob) Execute(context.Context) worker.Result {
	docs, err := j.retriever.RetrievePolicyPassages(j.batch.ctx, j.query)
	if err != nil {
		j.batch.fail(err)
	}
	return &queryResult{index: j.index, docs: docs, err: err}
}

// retrievePassagesConcurrently fans queries out over a worker pool and
// re-serializes the results by query index so merge order stays deterministic.
func (p *Pipeline) retrievePassagesConcurrently(ctx context.Context, queries []string) ([][]retrieval.Document, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	batch := &queryBatch{ctx: batchCtx, cancel: cancel}

	pool := worker.NewPool(ctx, min(p.opts.RetrievalWorkers, len(queries)))
	pool.Start()

	for i, q := range queries {
		if !pool.Submit(&queryJob{index: i, query: q, retriever: p.retriever, batch: batch}) {
			break
		}
	}
	results := pool.Wait()

	if batch.err != nil {
		return nil, batch.err
	}

	out := make([][]retrieval.Document, len(queries))
	done := make([]bool, len(queries))
	for _, r := range results {
		qr := r.(*queryResult)
		out[qr.index] = qr.docs
		done[qr.index] = true
	}

	for _, ok := range done {
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, context.Canceled
		}
	}
	return out, nil
}
