package pipeline

import (
	"log"
	"sync"

	"skydiff/pkg/smath"
)

// A Pair is one unit of batch work: two raw frames of the same field.
type Pair struct {
	Name string
	A    *smath.Grid
	B    *smath.Grid
}

type PairResult struct {
	Name   string
	Result *Result
	Err    error
}

type batchJob struct {
	idx  int
	pair Pair
}

// RunBatch processes independent pairs on a pool of workers. Each pair
// gets its own pipeline instance, so there is no shared mutable state
// to guard. A failed pair is recorded in its slot and never aborts the
// rest. Results come back in input order.
func RunBatch(cfg Config, pairs []Pair, nWorkers int) []PairResult {
	if nWorkers < 1 {
		nWorkers = 1
	}

	results := make([]PairResult, len(pairs))
	jobsChan := make(chan batchJob, len(pairs))

	var wg sync.WaitGroup
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobsChan {
				res, err := Run(cfg, job.pair.A, job.pair.B)
				results[job.idx] = PairResult{Name: job.pair.Name, Result: res, Err: err}
				if err != nil {
					log.Printf("pair %s failed: %v\n", job.pair.Name, err)
				}
			}
		}()
	}

	for i, p := range pairs {
		jobsChan <- batchJob{i, p}
	}
	close(jobsChan)
	wg.Wait()

	return results
}
