package sandbox

import (
	"context"
	"sync"
)

// Check is the outcome of evaluating one request with CheckAll.
type Check struct {
	Request Request
	Frame   Frame
}

// Progress reports how far a CheckAll batch has come.
type Progress struct {
	Total      int
	Completed  int
	InProgress []string
}

// CheckAll evaluates reqs concurrently on at most Options.Workers workers
// without mounting them. Results are returned in the same order as reqs.
// progress receives updates as checks start and finish (can be nil).
func (r *Runner) CheckAll(ctx context.Context, reqs []Request, progress chan<- Progress) []Check {
	if len(reqs) == 0 {
		return nil
	}

	results := make([]Check, len(reqs))
	taskCh := make(chan indexedRequest, len(reqs))
	resultCh := make(chan indexedCheck, len(reqs))

	var progressMu sync.Mutex
	completed := 0
	inProgress := make(map[int]string)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range taskCh {
				progressMu.Lock()
				inProgress[it.index] = label(it.req)
				if progress != nil {
					progress <- buildProgress(len(reqs), completed, inProgress)
				}
				progressMu.Unlock()

				f := r.evaluate(ctx, Frame{Slot: label(it.req), Request: it.req, Kind: KindOf(it.req.Language)})

				progressMu.Lock()
				delete(inProgress, it.index)
				completed++
				if progress != nil {
					progress <- buildProgress(len(reqs), completed, inProgress)
				}
				progressMu.Unlock()

				resultCh <- indexedCheck{index: it.index, check: Check{Request: it.req, Frame: f}}
			}
		}()
	}

	go func() {
		for i, req := range reqs {
			if ctx.Err() != nil {
				resultCh <- indexedCheck{index: i, check: Check{
					Request: req,
					Frame:   Frame{Request: req, Kind: KindOf(req.Language), Status: StatusError, Error: "check cancelled"},
				}}
				continue
			}
			taskCh <- indexedRequest{index: i, req: req}
		}
		close(taskCh)
	}()

	for i := 0; i < len(reqs); i++ {
		ic := <-resultCh
		results[ic.index] = ic.check
	}
	wg.Wait()

	return results
}

func label(req Request) string {
	if req.Filename != "" {
		return req.Filename
	}
	return req.Key
}

type indexedRequest struct {
	index int
	req   Request
}

type indexedCheck struct {
	index int
	check Check
}

func buildProgress(total, completed int, inProgress map[int]string) Progress {
	names := make([]string, 0, len(inProgress))
	for _, name := range inProgress {
		names = append(names, name)
	}
	return Progress{
		Total:      total,
		Completed:  completed,
		InProgress: names,
	}
}
