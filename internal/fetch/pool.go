package fetch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Job pairs a source with its persisted fetch state.
type Job struct {
	Source Source
	State  SourceState
}

// Outcome is the write-once result slot for one fetched source.
type Outcome struct {
	Source Source
	Doc    Document
	Err    error
}

type progressFn func(done, total int, out Outcome)

// FetchAll fetches every job with a bounded worker pool. Each worker owns
// its own result; a failing or stalled source never blocks the others. A
// cancelled context surfaces as per-source errors, not a pool error.
func (f *Fetcher) FetchAll(ctx context.Context, jobs []Job, onResult progressFn) []Outcome {
	total := len(jobs)
	results := make([]Outcome, 0, total)
	if total == 0 {
		return results
	}
	if total == 1 {
		out := f.run(ctx, jobs[0])
		if onResult != nil {
			onResult(1, 1, out)
		}
		return append(results, out)
	}

	concurrency := f.cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 5
	}
	if concurrency > total {
		concurrency = total
	}

	in := make(chan Job)
	out := make(chan Outcome, total)
	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range in {
				out <- f.run(ctx, job)
			}
		}()
	}

	go func() {
		for _, job := range jobs {
			in <- job
		}
		close(in)
		wg.Wait()
		close(out)
	}()

	var done int64
	for result := range out {
		results = append(results, result)
		if onResult != nil {
			onResult(int(atomic.AddInt64(&done, 1)), total, result)
		}
	}
	return results
}

func (f *Fetcher) run(ctx context.Context, job Job) Outcome {
	doc, err := f.Fetch(ctx, job.Source, job.State)
	return Outcome{Source: job.Source, Doc: doc, Err: err}
}
